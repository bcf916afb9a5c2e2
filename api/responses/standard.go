package responses

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Aidin1998/instapay/pkg/errors"
)

// StandardResponse represents a standard API response format
type StandardResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	StandardResponse
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// PaginationMeta contains pagination metadata
type PaginationMeta struct {
	CurrentPage  int   `json:"current_page"`
	PerPage      int   `json:"per_page"`
	TotalPages   int   `json:"total_pages"`
	TotalRecords int64 `json:"total_records"`
	HasNext      bool  `json:"has_next"`
	HasPrev      bool  `json:"has_prev"`
}

func respond(c *gin.Context, status int, data interface{}, fallback string, message []string) {
	msg := fallback
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	c.JSON(status, StandardResponse{
		Success:   true,
		Data:      data,
		Message:   msg,
		Timestamp: time.Now().UTC(),
		TraceID:   getTraceID(c),
	})
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}, message ...string) {
	respond(c, http.StatusOK, data, "Operation successful", message)
}

// Created sends a 201 Created response
func Created(c *gin.Context, data interface{}, message ...string) {
	respond(c, http.StatusCreated, data, "Resource created successfully", message)
}

// Paginated sends a paginated response
func Paginated(c *gin.Context, data interface{}, pagination *PaginationMeta, message ...string) {
	msg := "Data retrieved successfully"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		StandardResponse: StandardResponse{
			Success:   true,
			Data:      data,
			Message:   msg,
			Timestamp: time.Now().UTC(),
			TraceID:   getTraceID(c),
		},
		Pagination: pagination,
	})
}

// Error sends an error response using RFC 7807 format
func Error(c *gin.Context, problemDetails *errors.ProblemDetails) {
	if problemDetails.TraceID == "" {
		if traceID := getTraceID(c); traceID != "" {
			problemDetails.WithTraceID(traceID)
		}
	}
	problemDetails.WithExtra("timestamp", time.Now().UTC().Format(time.RFC3339))

	c.Header("Content-Type", "application/problem+json")
	c.JSON(problemDetails.Status, problemDetails)
}

// Fail maps any error onto its problem details and status
func Fail(c *gin.Context, err error) {
	Error(c, errors.NewProblem(err, c.Request.URL.Path))
}

// BadRequest sends a 400 Bad Request response
func BadRequest(c *gin.Context, detail string, validationErrors ...errors.ValidationError) {
	problemDetails := errors.NewValidationError(detail, c.Request.URL.Path)
	if len(validationErrors) > 0 {
		problemDetails.WithValidationErrors(validationErrors)
	}
	Error(c, problemDetails)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(c *gin.Context, detail string) {
	Error(c, errors.NewUnauthorizedError(detail, c.Request.URL.Path))
}

// NotFound sends a 404 Not Found response
func NotFound(c *gin.Context, detail string) {
	Error(c, errors.NewNotFoundError(detail, c.Request.URL.Path))
}

// ServiceUnavailable sends a 503 Service Unavailable response
func ServiceUnavailable(c *gin.Context, detail string) {
	p := errors.Status(http.StatusServiceUnavailable).Reason("ServiceUnavailableError").
		Explain("%s", detail).ToProblemDetails(c.Request.URL.Path)
	Error(c, p)
}

// getTraceID extracts trace ID from context
func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}

// CreatePaginationMeta creates pagination metadata
func CreatePaginationMeta(currentPage, perPage int, totalRecords int64) *PaginationMeta {
	totalPages := int((totalRecords + int64(perPage) - 1) / int64(perPage))
	if totalPages < 1 {
		totalPages = 1
	}

	return &PaginationMeta{
		CurrentPage:  currentPage,
		PerPage:      perPage,
		TotalPages:   totalPages,
		TotalRecords: totalRecords,
		HasNext:      currentPage < totalPages,
		HasPrev:      currentPage > 1,
	}
}
