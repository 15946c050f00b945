package api

import (
	"bytes"
	"errors"
	"image/jpeg"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qr-mac-backend/internal/camera"
)

// GetScan handles GET /api/scan.
func (h *Handler) GetScan(c *gin.Context) {
	c.JSON(http.StatusOK, h.scanner.Snapshot())
}

// ToggleScan handles POST /api/scan/toggle.
func (h *Handler) ToggleScan(c *gin.Context) {
	err := h.scanner.Toggle(c.Request.Context())
	snap := h.scanner.Snapshot()
	if err == nil {
		c.JSON(http.StatusOK, snap)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, camera.ErrTransitionInProgress):
		status = http.StatusConflict
	case errors.Is(err, camera.ErrCapabilityUnavailable), errors.Is(err, camera.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, camera.ErrAcquisitionFailed), errors.Is(err, camera.ErrEngineStartFailed):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"error":     err.Error(),
		"state":     snap.State,
		"label":     snap.Label,
		"sessionId": snap.SessionID,
	})
}

// GetPreview handles GET /api/scan/preview.jpg.
func (h *Handler) GetPreview(c *gin.Context) {
	frame, ok := h.preview.Preview()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no camera preview"})
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 80}); err != nil {
		log.Printf("Error encoding preview frame: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode preview"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

// GetNotices handles GET /api/notices. Notices are returned once.
func (h *Handler) GetNotices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notices": h.notices.Drain()})
}
