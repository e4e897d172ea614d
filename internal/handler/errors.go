package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/gazemap-backend-go/internal/export"
	"github.com/jengzang/gazemap-backend-go/internal/heatmap"
	"github.com/jengzang/gazemap-backend-go/internal/repository"
	"github.com/jengzang/gazemap-backend-go/internal/screenshot"
	"github.com/jengzang/gazemap-backend-go/internal/service"
	"github.com/jengzang/gazemap-backend-go/pkg/response"
)

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrFrozen), errors.Is(err, service.ErrNotFrozen):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidSession),
		errors.Is(err, heatmap.ErrInvalidConfig),
		errors.Is(err, screenshot.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, heatmap.ErrInvalidCanvas), errors.Is(err, export.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrCapture):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrNoProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status it maps to. message is used for
// unexpected errors only.
func fail(c *gin.Context, err error, message string) {
	code := statusOf(err)
	if code != http.StatusInternalServerError {
		message = err.Error()
	}
	response.Error(c, code, message, err)
}
