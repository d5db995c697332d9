package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/dtos"
	"github.com/preetsinghmakkar/MentorLink/internal/middlewares"
	"github.com/preetsinghmakkar/MentorLink/internal/services"
)

func init() {
	// gin validates request bodies with its own engine; report fields by
	// their JSON names there too
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(dtos.JSONFieldName)
	}
}

type errorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Fields  []apperrors.FieldError `json:"fields,omitempty"`
}

// respondError renders err with the status its kind maps to. Internal
// details are attached to the gin context for the request log only.
func respondError(c *gin.Context, err error) {
	c.Error(err)

	body := errorResponse{
		Error:   apperrors.PublicMessage(err),
		Message: apperrors.PublicMessage(err),
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body.Fields = appErr.Fields
	}
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), body)
}

// bindJSON decodes and validates the request body, writing a 400 on failure
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, dtos.ValidationError(err))
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for bodies that may be omitted entirely
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst)
}

func currentUser(c *gin.Context) (*services.Identity, bool) {
	identity, ok := middlewares.CurrentIdentity(c)
	if !ok {
		respondError(c, apperrors.Authentication("not authenticated"))
		return nil, false
	}
	return identity, true
}

func idParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperrors.Validation("validation failed", apperrors.FieldError{Field: name, Error: "must be a valid id"}))
		return uuid.Nil, false
	}
	return id, true
}
