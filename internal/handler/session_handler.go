package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/gazemap-backend-go/internal/models"
	"github.com/jengzang/gazemap-backend-go/internal/service"
	"github.com/jengzang/gazemap-backend-go/pkg/response"
)

// SessionHandler handles HTTP requests for gaze sessions
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Start handles POST /api/v1/sessions
func (h *SessionHandler) Start(c *gin.Context) {
	var req service.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	rec, err := h.service.Start(req)
	if err != nil {
		fail(c, err, "Failed to start session")
		return
	}
	response.Created(c, rec)
}

// Import handles POST /api/v1/sessions/import
func (h *SessionHandler) Import(c *gin.Context) {
	var rec models.SessionRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		response.BadRequest(c, "Invalid session record", err)
		return
	}

	imported, err := h.service.Import(&rec)
	if err != nil {
		fail(c, err, "Failed to import session")
		return
	}
	response.Created(c, imported)
}

type appendRequest struct {
	Samples []models.GazeSample `json:"samples" binding:"required"`
}

// AppendSamples handles POST /api/v1/sessions/:id/samples
func (h *SessionHandler) AppendSamples(c *gin.Context) {
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	count, err := h.service.AppendSamples(c.Param("id"), req.Samples)
	if err != nil {
		fail(c, err, "Failed to append samples")
		return
	}
	response.Success(c, gin.H{"sampleCount": count})
}

type completeRequest struct {
	PageHeight int `json:"pageHeight"`
}

// Complete handles POST /api/v1/sessions/:id/complete
func (h *SessionHandler) Complete(c *gin.Context) {
	var req completeRequest
	// body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body", err)
			return
		}
	}

	rec, err := h.service.Complete(c.Param("id"), req.PageHeight)
	if err != nil {
		fail(c, err, "Failed to complete session")
		return
	}
	response.Success(c, rec)
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(c *gin.Context) {
	var filter models.SessionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}

	sessions, total, err := h.service.List(filter)
	if err != nil {
		response.InternalError(c, "Failed to list sessions", err)
		return
	}

	if filter.PageSize < 1 {
		filter.PageSize = 50
	}
	if sessions == nil {
		sessions = []models.SessionRecord{}
	}
	response.Success(c, response.NewPage(sessions, total, filter.Page, filter.PageSize))
}

// Get handles GET /api/v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	rec, err := h.service.Get(c.Param("id"))
	if err != nil {
		fail(c, err, "Failed to get session")
		return
	}
	response.Success(c, rec)
}

// Delete handles DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Param("id")); err != nil {
		fail(c, err, "Failed to delete session")
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats handles GET /api/v1/sessions/:id/stats
func (h *SessionHandler) Stats(c *gin.Context) {
	band, err := intQuery(c, "bandHeight", 0)
	if err != nil {
		response.BadRequest(c, "Invalid bandHeight", err)
		return
	}

	stats, err := h.service.Stats(c.Param("id"), band)
	if err != nil {
		fail(c, err, "Failed to compute stats")
		return
	}
	response.Success(c, stats)
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
