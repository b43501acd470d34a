package dataset

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockArchive struct {
	entries map[uuid.UUID]*ArchiveEntry
	saveErr error
}

func newMockArchive() *mockArchive {
	return &mockArchive{entries: map[uuid.UUID]*ArchiveEntry{}}
}

func (m *mockArchive) Save(_ context.Context, e *ArchiveEntry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries[e.ID] = e
	return nil
}

func (m *mockArchive) GetByID(_ context.Context, id uuid.UUID) (*ArchiveEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return e, nil
}

func (m *mockArchive) List(_ context.Context, limit, offset int) ([]*ArchiveEntry, int, error) {
	var items []*ArchiveEntry
	for _, e := range m.entries {
		items = append(items, e)
	}
	return items, len(items), nil
}

func newTestService(archive Archive) *Service {
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return NewService(NewStore(), archive, NewNormalizer(nil), cutoff)
}

const sampleExport = `{"data":{"result":[
	{"id":"p1","createdAt":"2025-03-10T00:00:00Z"},
	{"id":"p2","createdAt":"2025-01-10T00:00:00Z"},
	{"id":"p3","createdAt":"2025-04-01T00:00:00Z"}
]}}`

func TestService_Ingest(t *testing.T) {
	svc := newTestService(nil)
	snap, err := svc.Ingest(context.Background(), strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.RawCount != 3 {
		t.Errorf("expected 3 raw records, got %d", snap.RawCount)
	}
	if snap.CohortSize() != 2 {
		t.Errorf("expected cohort of 2, got %d", snap.CohortSize())
	}
	cur, err := svc.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur.ID != snap.ID {
		t.Error("ingested snapshot should become current")
	}
}

func TestService_Current_NoDataset(t *testing.T) {
	svc := newTestService(nil)
	if _, err := svc.Current(); !errors.Is(err, ErrNoDataset) {
		t.Errorf("expected ErrNoDataset, got %v", err)
	}
}

func TestService_Ingest_BadSchema(t *testing.T) {
	svc := newTestService(nil)
	if _, err := svc.Ingest(context.Background(), strings.NewReader(`{"rows":[]}`)); !errors.Is(err, ErrUnexpectedSchema) {
		t.Errorf("expected ErrUnexpectedSchema, got %v", err)
	}
	if _, err := svc.Current(); !errors.Is(err, ErrNoDataset) {
		t.Error("a failed upload must not replace the current snapshot")
	}
}

func TestService_Ingest_ReplacesSnapshot(t *testing.T) {
	svc := newTestService(nil)
	first, _ := svc.Ingest(context.Background(), strings.NewReader(sampleExport))
	second, _ := svc.Ingest(context.Background(), strings.NewReader(sampleExport))
	cur, _ := svc.Current()
	if cur.ID != second.ID || cur.ID == first.ID {
		t.Error("new upload should replace the previous snapshot")
	}
}

func TestService_Ingest_Archives(t *testing.T) {
	arch := newMockArchive()
	svc := newTestService(arch)
	snap, err := svc.Ingest(context.Background(), strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, ok := arch.entries[snap.ID]
	if !ok {
		t.Fatal("expected upload to be archived")
	}
	if entry.CohortSize != 2 || entry.RawCount != 3 {
		t.Errorf("unexpected archive metadata: %+v", entry)
	}
}

func TestService_Ingest_ArchiveFailureIsNotFatal(t *testing.T) {
	arch := newMockArchive()
	arch.saveErr = errors.New("db down")
	svc := newTestService(arch)
	if _, err := svc.Ingest(context.Background(), strings.NewReader(sampleExport)); err != nil {
		t.Fatalf("archive failure must not fail ingest: %v", err)
	}
	if _, err := svc.Current(); err != nil {
		t.Error("snapshot should still be current after archive failure")
	}
}

func TestService_Restore(t *testing.T) {
	arch := newMockArchive()
	svc := newTestService(arch)
	orig, _ := svc.Ingest(context.Background(), strings.NewReader(sampleExport))

	restored, err := svc.Restore(context.Background(), orig.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.CohortSize() != orig.CohortSize() || restored.RawCount != orig.RawCount {
		t.Error("restored snapshot should match the original upload")
	}
}

func TestService_Restore_NoArchive(t *testing.T) {
	svc := newTestService(nil)
	if _, err := svc.Restore(context.Background(), uuid.New()); err == nil {
		t.Error("expected error when no archive is configured")
	}
}
