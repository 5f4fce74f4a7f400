package service

import "errors"

// Sentinel errors returned by the services. Handlers map them to status codes.
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrTokenNotFound      = errors.New("token not found")

	ErrAlreadySubmitted = errors.New("session has already been submitted")
	ErrSessionClosed    = errors.New("session is no longer in progress")

	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrExtractionFailed    = errors.New("text extraction failed")

	ErrInvalidQuestion    = errors.New("invalid question")
	ErrInvalidTokenInput  = errors.New("invalid token parameters")
	ErrCodeSpaceExhausted = errors.New("could not find an unused token code")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
