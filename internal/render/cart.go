package render

import (
	"encoding/base64"
	"fmt"
	"log"
	"sync"
)

// CartImage is one QR image of the cart grid.
type CartImage struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	PNG   []byte `json:"-"`
}

// DataURI returns the image as an inline PNG data URI.
func (c CartImage) DataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(c.PNG)
}

// Cart renders the code list as a grid of QR images. Nothing is kept between
// opens; every Open re-renders from the list it is given.
type Cart struct {
	mu      sync.RWMutex
	painter QRPainter
	size    int
	grid    []CartImage
	visible bool
}

// NewCart creates a hidden cart painting images of size pixels.
func NewCart(painter QRPainter, size int) *Cart {
	return &Cart{painter: painter, size: size}
}

// Open clears the grid, paints one image per code and shows the grid.
// A code that fails to paint is logged and left out of the grid.
func (c *Cart) Open(codes []string) []CartImage {
	grid := make([]CartImage, 0, len(codes))
	for i, code := range codes {
		png, err := c.painter.Paint(code, c.size)
		if err != nil {
			log.Printf("Error rendering cart image %d: %v", i, err)
			continue
		}
		grid = append(grid, CartImage{Index: i, Text: code, PNG: png})
	}

	c.mu.Lock()
	c.grid = grid
	c.visible = true
	c.mu.Unlock()
	return grid
}

// Close hides the grid.
func (c *Cart) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = false
}

// Visible reports whether the grid is shown.
func (c *Cart) Visible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visible
}

// Grid returns the images of the last Open.
func (c *Cart) Grid() []CartImage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]CartImage{}, c.grid...)
}

// Image returns the grid image rendered for list position index.
func (c *Cart) Image(index int) (CartImage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, img := range c.grid {
		if img.Index == index {
			return img, nil
		}
	}
	return CartImage{}, fmt.Errorf("no cart image at index %d", index)
}
