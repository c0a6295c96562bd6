package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"minerva-backend/internal/models"
)

type DocumentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

func (r *DocumentRepo) Create(ctx context.Context, d *models.Document) error {
	d.ID = uuid.New()
	if d.Status == "" {
		d.Status = "pending"
	}

	query := `INSERT INTO documents (id, user_id, source_type, file_name, source_url, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		d.ID, d.UserID, d.SourceType, d.FileName, d.SourceURL, d.Status,
	).Scan(&d.CreatedAt)
}

func (r *DocumentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	d := &models.Document{}
	query := `SELECT id, user_id, source_type, file_name, source_url, status, chunk_count, created_at
		FROM documents WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.UserID, &d.SourceType, &d.FileName, &d.SourceURL, &d.Status, &d.ChunkCount, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DocumentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, source_type, file_name, source_url, status, chunk_count, created_at
		 FROM documents WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		d := &models.Document{}
		err := rows.Scan(&d.ID, &d.UserID, &d.SourceType, &d.FileName, &d.SourceURL, &d.Status, &d.ChunkCount, &d.CreatedAt)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) MarkCompleted(ctx context.Context, id uuid.UUID, chunkCount int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE documents SET status = 'completed', chunk_count = $1 WHERE id = $2",
		chunkCount, id,
	)
	return err
}

func (r *DocumentRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE documents SET status = 'failed' WHERE id = $1", id)
	return err
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, "UPDATE documents SET status = $1 WHERE id = $2", status, id)
	return err
}
