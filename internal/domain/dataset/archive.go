package dataset

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ArchiveEntry is the durable record of one upload: metadata plus the raw
// export body, kept so an analysis can be reproduced after a restart.
type ArchiveEntry struct {
	ID         uuid.UUID `json:"id"`
	UploadedAt time.Time `json:"uploaded_at"`
	Cutoff     time.Time `json:"cutoff"`
	RawCount   int       `json:"raw_count"`
	CohortSize int       `json:"cohort_size"`
	Body       []byte    `json:"-"`
}

// Archive persists uploaded exports. The in-memory store stays authoritative
// for the running process; the archive exists for audit and replay.
type Archive interface {
	Save(ctx context.Context, entry *ArchiveEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*ArchiveEntry, error)
	List(ctx context.Context, limit, offset int) ([]*ArchiveEntry, int, error)
}
