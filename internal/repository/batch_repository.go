package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockmeta/internal/models"
)

var ErrBatchNotFound = errors.New("batch not found")

type BatchRepository struct {
	pool *pgxpool.Pool
}

func NewBatchRepository(pool *pgxpool.Pool) *BatchRepository {
	return &BatchRepository{pool: pool}
}

func (r *BatchRepository) Create(ctx context.Context, batch models.Batch) error {
	const query = `
		INSERT INTO batches (id, status, options, files, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`
	_, err := r.pool.Exec(ctx, query, batch.ID, batch.Status, batch.Options, batch.Files)
	return err
}

func (r *BatchRepository) GetByID(ctx context.Context, id string) (models.Batch, error) {
	const query = `
		SELECT id, status, options, files, created_at, updated_at
		FROM batches WHERE id = $1
	`

	var batch models.Batch
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&batch.ID,
		&batch.Status,
		&batch.Options,
		&batch.Files,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Batch{}, ErrBatchNotFound
		}
		return models.Batch{}, err
	}
	return batch, nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error {
	const query = `
		UPDATE batches
		SET status = $2,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// UpsertRow stores a finished row, replacing any earlier row for the same file.
// position keeps the upload order stable across regenerations.
func (r *BatchRepository) UpsertRow(ctx context.Context, batchID string, position int, row models.Row) error {
	const query = `
		INSERT INTO batch_rows (
			batch_id, position, filename, platform, title, description, keywords,
			asset_type, extension, error, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (batch_id, filename) DO UPDATE
		SET platform = EXCLUDED.platform,
		    title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    keywords = EXCLUDED.keywords,
		    asset_type = EXCLUDED.asset_type,
		    extension = EXCLUDED.extension,
		    error = EXCLUDED.error,
		    updated_at = NOW()
	`
	keywords := row.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		batchID,
		position,
		row.Filename,
		row.Platform,
		row.Title,
		row.Description,
		keywords,
		row.AssetType,
		row.Extension,
		row.Error,
	)
	return err
}

func (r *BatchRepository) ListRows(ctx context.Context, batchID string) ([]models.Row, error) {
	const query = `
		SELECT filename, platform, title, description, keywords, asset_type, extension, error
		FROM batch_rows
		WHERE batch_id = $1
		ORDER BY position, filename
	`
	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Row
	for rows.Next() {
		var row models.Row
		if err := rows.Scan(
			&row.Filename,
			&row.Platform,
			&row.Title,
			&row.Description,
			&row.Keywords,
			&row.AssetType,
			&row.Extension,
			&row.Error,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes batches created before cutoff together with their rows
// and returns them so their stored objects can be removed.
func (r *BatchRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) ([]models.Batch, error) {
	const query = `
		DELETE FROM batches
		WHERE created_at < $1
		RETURNING id, status, files, created_at, updated_at
	`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Batch
	for rows.Next() {
		var batch models.Batch
		if err := rows.Scan(
			&batch.ID,
			&batch.Status,
			&batch.Files,
			&batch.CreatedAt,
			&batch.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, batch)
	}
	return out, rows.Err()
}
