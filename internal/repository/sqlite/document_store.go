package sqlite

import (
	"context"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DocumentStore is the SQLite document metadata store.
type DocumentStore struct {
	db *sqlx.DB
}

func (s *DocumentStore) Create(ctx context.Context, d *model.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, content_type, file_size, storage_key,
		                        extracted_text, processed, upload_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Filename, d.ContentType, d.FileSize, d.StorageKey,
		d.ExtractedText, d.Processed, utc(d.UploadTimestamp),
	)
	return translate(err)
}

func (s *DocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	d := &model.Document{}
	err := s.db.GetContext(ctx, d,
		`SELECT id, filename, content_type, file_size, storage_key,
		        extracted_text, processed, upload_timestamp
		 FROM documents WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return d, nil
}
