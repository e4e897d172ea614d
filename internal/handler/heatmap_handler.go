package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/gazemap-backend-go/internal/export"
	"github.com/jengzang/gazemap-backend-go/internal/models"
	"github.com/jengzang/gazemap-backend-go/internal/service"
	"github.com/jengzang/gazemap-backend-go/pkg/response"
)

// maxUploadBytes bounds screenshot uploads.
const maxUploadBytes = 64 << 20

// HeatmapHandler handles heatmap rendering and screenshot requests
type HeatmapHandler struct {
	service *service.HeatmapService
}

// NewHeatmapHandler creates a new heatmap handler
func NewHeatmapHandler(service *service.HeatmapService) *HeatmapHandler {
	return &HeatmapHandler{service: service}
}

// Heatmap returns the handler for GET /api/v1/sessions/:id/heatmap.{png,jpg,pdf}
func (h *HeatmapHandler) Heatmap(format export.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params models.RenderParams
		if err := c.ShouldBindQuery(&params); err != nil {
			response.BadRequest(c, "Invalid query parameters", err)
			return
		}
		save, _ := strconv.ParseBool(c.Query("save"))

		res, err := h.service.Export(c.Request.Context(), c.Param("id"), service.ExportOptions{
			Format: format,
			Params: params,
			Save:   save,
		})
		if err != nil {
			fail(c, err, "Failed to render heatmap")
			return
		}

		disposition := "inline"
		if download, _ := strconv.ParseBool(c.Query("download")); download {
			disposition = "attachment"
		}
		c.Header("Content-Disposition", disposition+`; filename="`+res.FileName+`"`)
		if res.SavedPath != "" {
			c.Header("X-Saved-Path", res.SavedPath)
		}
		c.Data(http.StatusOK, res.MIMEType, res.Data)
	}
}

// DepthChart handles GET /api/v1/sessions/:id/depth-chart.png
func (h *HeatmapHandler) DepthChart(c *gin.Context) {
	band, err := intQuery(c, "bandHeight", 0)
	if err != nil {
		response.BadRequest(c, "Invalid bandHeight", err)
		return
	}
	width, err := intQuery(c, "width", 0)
	if err != nil {
		response.BadRequest(c, "Invalid width", err)
		return
	}
	height, err := intQuery(c, "height", 0)
	if err != nil {
		response.BadRequest(c, "Invalid height", err)
		return
	}

	data, err := h.service.DepthChart(c.Param("id"), band, width, height)
	if err != nil {
		fail(c, err, "Failed to render depth chart")
		return
	}
	c.Data(http.StatusOK, export.FormatPNG.MIMEType(), data)
}

// UploadScreenshot handles PUT /api/v1/sessions/:id/screenshot. The body is
// the raw PNG or JPEG; ?documentHeight= gives the page height in CSS pixels.
func (h *HeatmapHandler) UploadScreenshot(c *gin.Context) {
	docHeight, err := intQuery(c, "documentHeight", 0)
	if err != nil {
		response.BadRequest(c, "Invalid documentHeight", err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes))
	if err != nil {
		response.Error(c, http.StatusRequestEntityTooLarge, "Screenshot too large", err)
		return
	}

	shot, err := h.service.UploadScreenshot(c.Param("id"), data, docHeight)
	if err != nil {
		fail(c, err, "Failed to store screenshot")
		return
	}
	response.Success(c, shot)
}

// CaptureScreenshot handles POST /api/v1/sessions/:id/screenshot/capture
func (h *HeatmapHandler) CaptureScreenshot(c *gin.Context) {
	var req service.CaptureRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body", err)
			return
		}
	}

	shot, err := h.service.CaptureScreenshot(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err, "Failed to capture screenshot")
		return
	}
	response.Success(c, shot)
}
