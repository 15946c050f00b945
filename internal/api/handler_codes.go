package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"qr-mac-backend/internal/store"
)

type addCodeRequest struct {
	Text string `json:"text" binding:"required"`
}

// ListCodes handles GET /api/codes.
func (h *Handler) ListCodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"codes": h.list.Rows()})
}

// AddCode handles POST /api/codes. Adding a code already in the list is
// accepted and changes nothing.
func (h *Handler) AddCode(c *gin.Context) {
	var req addCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be empty"})
		return
	}

	added := h.codes.Add(c.Request.Context(), req.Text)
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"added": added, "codes": h.list.Rows()})
}

// RemoveCode handles DELETE /api/codes/:index. With ?expect=<text> the row
// is removed only if it still shows that text.
func (h *Handler) RemoveCode(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid code index"})
		return
	}

	if expected, ok := c.GetQuery("expect"); ok {
		err = h.codes.RemoveAtIfMatch(c.Request.Context(), index, expected)
	} else {
		err = h.codes.RemoveAt(c.Request.Context(), index)
	}

	switch {
	case errors.Is(err, store.ErrIndexOutOfRange):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrStaleIndex):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "codes": h.list.Rows()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"codes": h.list.Rows()})
	}
}

// ReloadCodes handles POST /api/codes/reload, replacing memory with storage.
func (h *Handler) ReloadCodes(c *gin.Context) {
	h.codes.Load(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"codes": h.list.Rows()})
}
