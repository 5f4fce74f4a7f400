package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response wraps admin and listing endpoints. The student exam flow answers
// with flat {"success": ...} bodies instead.
type Response struct {
	Data       interface{} `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody carries a stable code for clients and a readable message.
// Fields maps JSON field names to validation messages.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Pagination describes one page of an exam or submission listing.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// NewPagination derives TotalPages; a zero perPage yields zero pages.
func NewPagination(page, perPage, total int) *Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return &Pagination{Page: page, PerPage: perPage, TotalItems: total, TotalPages: pages}
}

func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope(c, data, nil, nil))
}

// SuccessWithPagination is Success for paged listings.
func SuccessWithPagination(c *gin.Context, status int, data interface{}, p *Pagination) {
	c.JSON(status, envelope(c, data, nil, p))
}

// Fail reports code with its catalogue message.
func Fail(c *gin.Context, status int, code ErrCode) {
	c.JSON(status, envelope(c, nil, &ErrorBody{Code: code, Message: GetMessage(code)}, nil))
}

// FailWithFields is Fail plus per-field validation messages.
func FailWithFields(c *gin.Context, status int, code ErrCode, fields map[string]string) {
	c.JSON(status, envelope(c, nil, &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields}, nil))
}

// FailWithMessage overrides the catalogue message, e.g. with a parser or
// generator error the admin needs to see.
func FailWithMessage(c *gin.Context, status int, code ErrCode, message string) {
	c.JSON(status, envelope(c, nil, &ErrorBody{Code: code, Message: message}, nil))
}

// AbortFail is Fail for middleware; later handlers do not run.
func AbortFail(c *gin.Context, status int, code ErrCode) {
	c.AbortWithStatusJSON(status, envelope(c, nil, &ErrorBody{Code: code, Message: GetMessage(code)}, nil))
}

func envelope(c *gin.Context, data interface{}, errBody *ErrorBody, p *Pagination) Response {
	id := RequestID(c)
	if id == "" {
		// RequestIDMiddleware is not mounted, as in unit tests.
		id = uuid.NewString()
	}
	return Response{
		Data:       data,
		Error:      errBody,
		Pagination: p,
		Metadata: Metadata{
			RequestID: id,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}
