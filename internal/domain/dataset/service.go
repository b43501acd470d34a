package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNoDataset is returned when insights are requested before any upload.
var ErrNoDataset = errors.New("no dataset has been ingested")

// Service ingests uploaded exports and serves the current snapshot. The
// cohort cutoff and naive-timestamp location are injected once at
// construction; nothing downstream re-derives them.
type Service struct {
	store   *Store
	archive Archive // nil when no database is configured
	norm    *Normalizer
	cutoff  time.Time
}

func NewService(store *Store, archive Archive, norm *Normalizer, cutoff time.Time) *Service {
	return &Service{store: store, archive: archive, norm: norm, cutoff: cutoff}
}

// Normalizer exposes the service's timestamp normalizer so downstream
// consumers interpret naive timestamps identically.
func (s *Service) Normalizer() *Normalizer { return s.norm }

// Cutoff returns the registration cutoff applied to every upload.
func (s *Service) Cutoff() time.Time { return s.cutoff }

// Ingest parses an uploaded export, applies the cohort filter and makes the
// result the current snapshot. The raw body is archived when an archive is
// configured; archive failures are logged, not fatal — the in-memory
// snapshot is the authoritative copy for the running process.
func (s *Service) Ingest(ctx context.Context, r io.Reader) (*Snapshot, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	records, err := DecodeExport(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:         uuid.New(),
		UploadedAt: time.Now().UTC(),
		Cutoff:     s.cutoff,
		RawCount:   len(records),
		Cohort:     BuildSnapshotCohort(records, s.norm, s.cutoff),
	}
	s.store.Put(snap)

	log.Info().
		Str("snapshot_id", snap.ID.String()).
		Int("raw_count", snap.RawCount).
		Int("cohort_size", snap.CohortSize()).
		Msg("dataset ingested")

	if s.archive != nil {
		entry := &ArchiveEntry{
			ID:         snap.ID,
			UploadedAt: snap.UploadedAt,
			Cutoff:     snap.Cutoff,
			RawCount:   snap.RawCount,
			CohortSize: snap.CohortSize(),
			Body:       body,
		}
		if err := s.archive.Save(ctx, entry); err != nil {
			log.Error().Err(err).Str("snapshot_id", snap.ID.String()).Msg("archive upload failed")
		}
	}

	return snap, nil
}

// Current returns the active snapshot or ErrNoDataset.
func (s *Service) Current() (*Snapshot, error) {
	snap := s.store.Current()
	if snap == nil {
		return nil, ErrNoDataset
	}
	return snap, nil
}

// Restore re-ingests an archived upload, making it the current snapshot.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	if s.archive == nil {
		return nil, errors.New("no archive configured")
	}
	entry, err := s.archive.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load archived upload: %w", err)
	}
	return s.Ingest(ctx, bytes.NewReader(entry.Body))
}

// ListArchive pages through archived uploads, newest first.
func (s *Service) ListArchive(ctx context.Context, limit, offset int) ([]*ArchiveEntry, int, error) {
	if s.archive == nil {
		return nil, 0, errors.New("no archive configured")
	}
	return s.archive.List(ctx, limit, offset)
}

// HasArchive reports whether uploads are being persisted.
func (s *Service) HasArchive() bool { return s.archive != nil }
