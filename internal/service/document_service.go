package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/examflow/examflow-backend/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var pdfMagic = []byte("%PDF-")

// UploadInput describes one uploaded file.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// DocumentService stores uploaded PDFs and their extracted text.
type DocumentService struct {
	docs      repository.DocumentStore
	blobs     storage.BlobStore
	extractor TextExtractor
	maxBytes  int64
	now       func() time.Time
	log       zerolog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(docs repository.DocumentStore, blobs storage.BlobStore, extractor TextExtractor, maxBytes int64, log zerolog.Logger) *DocumentService {
	return &DocumentService{
		docs:      docs,
		blobs:     blobs,
		extractor: extractor,
		maxBytes:  maxBytes,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "document_service").Logger(),
	}
}

// Upload validates a PDF, extracts its text, keeps the original in the
// blob store and records the document.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	isPDF := strings.EqualFold(filepath.Ext(in.Filename), ".pdf") ||
		strings.HasPrefix(in.ContentType, "application/pdf")
	if !isPDF {
		return nil, fmt.Errorf("%w: %s (allowed: application/pdf)", ErrUnsupportedFileType, in.ContentType)
	}
	if in.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, in.Size, s.maxBytes)
	}

	// Size comes from the client; the limited read is the real bound.
	data, err := io.ReadAll(io.LimitReader(in.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, s.maxBytes)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("%w: not a PDF document", ErrUnsupportedFileType)
	}

	text, err := s.extractor.Extract(data)
	if err != nil {
		s.log.Warn().Err(err).Str("filename", in.Filename).Msg("PDF extraction failed")
		if errors.Is(err, ErrExtractionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	id := uuid.New()
	key, err := s.blobs.Put("documents/"+id.String()+".pdf", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	doc := &model.Document{
		ID:              id,
		Filename:        filepath.Base(in.Filename),
		ContentType:     "application/pdf",
		FileSize:        int64(len(data)),
		StorageKey:      key,
		ExtractedText:   text,
		Processed:       true,
		UploadTimestamp: s.now(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	s.log.Info().
		Str("document_id", id.String()).
		Str("filename", doc.Filename).
		Int("text_length", len(text)).
		Msg("Document processed")
	return doc, nil
}

// Get returns a document or ErrDocumentNotFound.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	return doc, err
}

// Texts resolves the extracted text of each document id, in order.
// Unknown or malformed ids are skipped and reported back.
func (s *DocumentService) Texts(ctx context.Context, ids []string) (texts []string, missing []string, err error) {
	for _, raw := range ids {
		id, perr := uuid.Parse(strings.TrimSpace(raw))
		if perr != nil {
			missing = append(missing, raw)
			continue
		}
		doc, gerr := s.Get(ctx, id)
		if errors.Is(gerr, ErrDocumentNotFound) {
			missing = append(missing, raw)
			continue
		}
		if gerr != nil {
			return nil, nil, gerr
		}
		if doc.ExtractedText != "" {
			texts = append(texts, doc.ExtractedText)
		}
	}
	return texts, missing, nil
}
