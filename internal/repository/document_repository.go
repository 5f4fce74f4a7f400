package repository

import (
	"context"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository handles uploaded document metadata.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Create inserts a document row.
func (r *DocumentRepository) Create(ctx context.Context, d *model.Document) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO documents (id, filename, content_type, file_size, storage_key,
		                        extracted_text, processed, upload_timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.Filename, d.ContentType, d.FileSize, d.StorageKey,
		d.ExtractedText, d.Processed, d.UploadTimestamp,
	)
	return translate(err)
}

// GetByID retrieves a document by its UUID.
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	d := &model.Document{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, filename, content_type, file_size, storage_key,
		        extracted_text, processed, upload_timestamp
		 FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Filename, &d.ContentType, &d.FileSize, &d.StorageKey,
		&d.ExtractedText, &d.Processed, &d.UploadTimestamp)
	if err != nil {
		return nil, translate(err)
	}
	return d, nil
}
