package model

import (
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded source file and the text extracted from it.
type Document struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Filename        string    `json:"filename" db:"filename"`
	ContentType     string    `json:"content_type" db:"content_type"`
	FileSize        int64     `json:"file_size" db:"file_size"`
	StorageKey      string    `json:"-" db:"storage_key"`
	ExtractedText   string    `json:"extracted_text" db:"extracted_text"`
	Processed       bool      `json:"processed" db:"processed"`
	UploadTimestamp time.Time `json:"upload_timestamp" db:"upload_timestamp"`
}
