package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/crane-billing/internal/domain/entity"
)

// Error codes returned in Response.Code
const (
	CodeValidation      = "validation_error"
	CodeDuplicatePeriod = "duplicate_period"
	CodeInvalidState    = "invalid_state"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal_error"
)

// writeError maps a service error to its status code and envelope.
// Unexpected errors are logged and hidden behind a generic message.
func (h *Handlers) writeError(c *gin.Context, operation string, err error) {
	var (
		validation *entity.ValidationError
		duplicate  *entity.DuplicatePeriodError
	)

	switch {
	case errors.As(err, &duplicate):
		c.JSON(http.StatusBadRequest, Response{
			Success:    false,
			Error:      err.Error(),
			Code:       CodeDuplicatePeriod,
			ExistingID: duplicate.ExistingID,
		})
	case errors.Is(err, entity.ErrDuplicatePeriod):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error(), Code: CodeDuplicatePeriod})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
			Code:    CodeValidation,
			Field:   validation.Field,
		})
	case errors.Is(err, entity.ErrValidation):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error(), Code: CodeValidation})
	case errors.Is(err, entity.ErrInvalidState):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error(), Code: CodeInvalidState})
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error(), Code: CodeNotFound})
	default:
		h.logger.Error("Failed to "+operation, "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to " + operation,
			Code:    CodeInternal,
		})
	}
}

func (h *Handlers) badRequest(c *gin.Context, field, message string) {
	h.writeError(c, "", entity.NewValidationError(field, message))
}
