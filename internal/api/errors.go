package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/library-circulation/internal/models"
	"github.com/rongwang/library-circulation/internal/service"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

// respondError maps service errors onto HTTP responses.
// Anything that is not a business error is logged and reported generically.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		notFoundErr   *service.NotFoundError
		conflictErr   *service.ConflictError
	)

	switch {
	case errors.As(err, &validationErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "VALIDATION_ERROR",
			Message: validationErr.Message,
			Fields:  validationErr.Fields,
		})
	case errors.As(err, &notFoundErr):
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", notFoundErr.Error())
	case errors.As(err, &conflictErr):
		abortWithError(c, http.StatusConflict, "CONFLICT", conflictErr.Message)
	case errors.Is(err, service.ErrForbidden):
		abortWithError(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		abortWithError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
	default:
		h.logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// bindJSON decodes the request body and reports malformed input as a validation error
func (h *Handler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return false
	}
	return true
}
