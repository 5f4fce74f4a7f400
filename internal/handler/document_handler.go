package handler

import (
	"errors"
	"net/http"

	"github.com/examflow/examflow-backend/internal/response"
	"github.com/examflow/examflow-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DocumentHandler handles source document uploads.
type DocumentHandler struct {
	documentService *service.DocumentService
	log             zerolog.Logger
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(documentService *service.DocumentService, log zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		log:             log.With().Str("component", "document_handler").Logger(),
	}
}

// UploadDocument godoc
// POST /api/documents/upload
// Stores a PDF and extracts its text for question generation.
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	doc, err := h.documentService.Upload(c.Request.Context(), service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
		case errors.Is(err, service.ErrExtractionFailed):
			h.log.Warn().Err(err).Str("filename", header.Filename).Msg("PDF extraction failed")
			response.FailWithMessage(c, http.StatusBadGateway, response.ErrUpstream, err.Error())
		default:
			h.log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to store document")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"text_length": len(doc.ExtractedText),
	})
}

// GetDocument godoc
// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("document_id", id.String()).Msg("Failed to get document")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, doc)
}
