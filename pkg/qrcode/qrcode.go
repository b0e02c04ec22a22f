// Package qrcode renders registration tokens as scannable PNG images.
package qrcode

import (
	"fmt"

	qr "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered edge length in pixels.
const DefaultSize = 256

// PNG encodes token as a PNG QR code of size x size pixels.
func PNG(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("qrcode: empty token")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qr.Encode(token, qr.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qrcode: encode: %w", err)
	}
	return png, nil
}
