package media

import (
	"bytes"
	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// Resizer produces fixed-width JPEG thumbnails.
type Resizer struct {
	quality int
}

// NewResizer builds a resizer encoding at the given JPEG quality.
func NewResizer(quality int) *Resizer {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Resizer{quality: quality}
}

// Resize scales data to targetWidth preserving aspect ratio and re-encodes
// as JPEG. Images already narrower than the target are never upscaled.
// Returns the encoded bytes and the width actually used.
func (r *Resizer) Resize(data []byte, targetWidth int) ([]byte, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, &ResizeError{Err: err}
	}

	width := targetWidth
	if src := img.Bounds().Dx(); src > 0 && src < width {
		width = src
	}
	img = imaging.Resize(img, width, 0, imaging.Lanczos)

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(r.quality)); err != nil {
		return nil, 0, &ResizeError{Err: err}
	}
	return buf.Bytes(), width, nil
}
