package service

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QREncoder renders content as an image ready to embed in a JSON response.
type QREncoder interface {
	Encode(content string) (string, error)
}

const (
	defaultQRSize   = 256
	pngDataURIStart = "data:image/png;base64,"
)

// PNGQREncoder produces base64 PNG data URIs.
type PNGQREncoder struct {
	Size  int
	Level qrcode.RecoveryLevel
}

// NewPNGQREncoder returns an encoder with medium error correction.
func NewPNGQREncoder(size int) PNGQREncoder {
	if size <= 0 {
		size = defaultQRSize
	}
	return PNGQREncoder{Size: size, Level: qrcode.Medium}
}

func (e PNGQREncoder) Encode(content string) (string, error) {
	size := e.Size
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := qrcode.Encode(content, e.Level, size)
	if err != nil {
		return "", fmt.Errorf("qr encode: %w", err)
	}
	return pngDataURIStart + base64.StdEncoding.EncodeToString(png), nil
}
