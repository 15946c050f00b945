package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"qr-mac-backend/internal/render"
)

type cartImageResponse struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Src   string `json:"src"`
}

func cartResponse(visible bool, grid []render.CartImage) gin.H {
	images := make([]cartImageResponse, len(grid))
	for i, img := range grid {
		images[i] = cartImageResponse{Index: img.Index, Text: img.Text, Src: img.DataURI()}
	}
	return gin.H{"visible": visible, "images": images}
}

// GetCart handles GET /api/cart.
func (h *Handler) GetCart(c *gin.Context) {
	visible := h.cart.Visible()
	if !visible {
		c.JSON(http.StatusOK, cartResponse(false, nil))
		return
	}
	c.JSON(http.StatusOK, cartResponse(true, h.cart.Grid()))
}

// OpenCart handles POST /api/cart/open. The grid is rebuilt from the current
// list on every open.
func (h *Handler) OpenCart(c *gin.Context) {
	grid := h.cart.Open(h.codes.Codes())
	c.JSON(http.StatusOK, cartResponse(true, grid))
}

// CloseCart handles POST /api/cart/close.
func (h *Handler) CloseCart(c *gin.Context) {
	h.cart.Close()
	c.JSON(http.StatusOK, cartResponse(false, nil))
}

// GetCartImage handles GET /api/cart/:image, where image is "<index>.png".
func (h *Handler) GetCartImage(c *gin.Context) {
	name := c.Param("image")
	index, err := strconv.Atoi(strings.TrimSuffix(name, ".png"))
	if err != nil || !strings.HasSuffix(name, ".png") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart image"})
		return
	}

	img, err := h.cart.Image(index)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", img.PNG)
}
