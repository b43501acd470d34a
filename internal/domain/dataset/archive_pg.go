package dataset

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type archivePG struct{ pool *pgxpool.Pool }

func NewArchivePG(pool *pgxpool.Pool) Archive {
	return &archivePG{pool: pool}
}

// EnsureArchiveSchema creates the upload archive table if it does not exist.
func EnsureArchiveSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS upload_archive (
			id UUID PRIMARY KEY,
			uploaded_at TIMESTAMPTZ NOT NULL,
			cutoff TIMESTAMPTZ NOT NULL,
			raw_count INT NOT NULL,
			cohort_size INT NOT NULL,
			body BYTEA NOT NULL
		)`)
	return err
}

const archiveCols = `id, uploaded_at, cutoff, raw_count, cohort_size`

func scanEntry(row pgx.Row) (*ArchiveEntry, error) {
	var e ArchiveEntry
	err := row.Scan(&e.ID, &e.UploadedAt, &e.Cutoff, &e.RawCount, &e.CohortSize)
	return &e, err
}

func (r *archivePG) Save(ctx context.Context, entry *ArchiveEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO upload_archive (id, uploaded_at, cutoff, raw_count, cohort_size, body)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID, entry.UploadedAt, entry.Cutoff, entry.RawCount, entry.CohortSize, entry.Body)
	return err
}

func (r *archivePG) GetByID(ctx context.Context, id uuid.UUID) (*ArchiveEntry, error) {
	var e ArchiveEntry
	err := r.pool.QueryRow(ctx, `
		SELECT `+archiveCols+`, body FROM upload_archive WHERE id = $1`, id).
		Scan(&e.ID, &e.UploadedAt, &e.Cutoff, &e.RawCount, &e.CohortSize, &e.Body)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *archivePG) List(ctx context.Context, limit, offset int) ([]*ArchiveEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM upload_archive`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+archiveCols+` FROM upload_archive
		ORDER BY uploaded_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ArchiveEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}
