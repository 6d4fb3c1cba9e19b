package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

// bearerError is a missing or malformed Authorization header.
type bearerError string

func (e bearerError) Error() string { return string(e) }

func (e bearerError) Is(target error) bool { return target == calendar.ErrUnauthorized }

// bearerToken extracts the access token from the Authorization header.
func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if strings.TrimSpace(header) == "" {
		return "", bearerError("Authorization header with Bearer token is required")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", bearerError("Authorization header must start with Bearer")
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	if token == "" {
		return "", bearerError("Bearer token is required")
	}
	return token, nil
}

// respondError maps err onto a status code. title describes the failed action
// and is only used for upstream and internal failures.
func respondError(c *gin.Context, p calendar.Provider, title string, err error) {
	var validationErr *calendar.ValidationError
	var upstreamErr *calendar.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, calendar.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calendar.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, calendar.ErrNotConnected):
		c.JSON(http.StatusNotFound, gin.H{"error": string(p) + " account is not connected"})
	case errors.Is(err, calendar.ErrUnsupported):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.Is(err, calendar.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &upstreamErr):
		message := upstreamErr.Message
		if message == "" {
			message = upstreamErr.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": title, "message": message})
	default:
		zap.L().Error("request failed",
			zap.String("provider", string(p)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": title, "message": err.Error()})
	}
}

// bindJSON decodes an optional JSON body; an empty body leaves dst untouched.
func bindJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &calendar.ValidationError{Field: "body", Message: "request body must be valid JSON"}
	}
	return nil
}
