package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidCustomerID),
		errors.Is(err, service.ErrInvalidOrderID),
		errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidDeliveryID),
		errors.Is(err, service.ErrInvalidServiceType),
		errors.Is(err, service.ErrInvalidAddress),
		errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrCustomerHasActiveOrder),
		errors.Is(err, service.ErrOrderNoLongerAvailable),
		errors.Is(err, service.ErrOrderNotCancellable),
		errors.Is(err, service.ErrServiceTypeMismatch),
		errors.Is(err, domain.ErrTransitionNotPermitted),
		errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict

	// Default to internal server error. ErrInconsistentState lands here
	// deliberately.
	default:
		return http.StatusInternalServerError
	}
}
