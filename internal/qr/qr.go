// Package qr renders pairing codes as PNG data URLs for the browser.
package qr

import (
	"encoding/base64"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 300

const dataURLPrefix = "data:image/png;base64,"

type Renderer struct {
	size int
}

func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Renderer{size: size}
}

// DataURL encodes code as a PNG QR image. An empty code yields "".
func (r *Renderer) DataURL(code string) (string, error) {
	if code == "" {
		return "", nil
	}
	png, err := qrcode.Encode(code, qrcode.Medium, r.size)
	if err != nil {
		return "", errors.Wrap(err, "encode qr code")
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
