package render

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRPainter paints value as a square QR image of size pixels and returns PNG bytes.
type QRPainter interface {
	Paint(value string, size int) ([]byte, error)
}

// GoQRCodePainter paints with skip2/go-qrcode.
type GoQRCodePainter struct {
	Level qrcode.RecoveryLevel
}

// NewQRPainter returns a painter using medium error correction.
func NewQRPainter() *GoQRCodePainter {
	return &GoQRCodePainter{Level: qrcode.Medium}
}

// Paint encodes value as PNG.
func (p *GoQRCodePainter) Paint(value string, size int) ([]byte, error) {
	png, err := qrcode.Encode(value, p.Level, size)
	if err != nil {
		return nil, fmt.Errorf("failed to paint qr code: %w", err)
	}
	return png, nil
}
