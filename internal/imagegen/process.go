package imagegen

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // register decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

const (
	defaultMaxDimension = 512
	defaultQuality      = 85
	// maxPixels caps the declared size of an image before it is decoded.
	maxPixels = 40 << 20
)

var (
	// ErrEmptyImage is returned when there is nothing to process.
	ErrEmptyImage = errors.New("imagegen: empty image")
	// ErrImageTooLarge is returned for images whose header declares more
	// than maxPixels pixels.
	ErrImageTooLarge = errors.New("imagegen: image too large")
)

// Processor normalizes generated images for the client: decode any supported
// format, flatten onto an opaque white background (RGB), shrink so the longest
// side is at most MaxDimension, and re-encode as base64 JPEG.
type Processor struct {
	MaxDimension int
	Quality      int
}

// Process is pure and synchronous.
func (p Processor) Process(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", ErrEmptyImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("imagegen: decode: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("imagegen: decode: %w", err)
	}
	maxDim := p.MaxDimension
	if maxDim <= 0 {
		maxDim = defaultMaxDimension
	}
	quality := p.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("imagegen: encode %s as jpeg: %w", format, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fit scales (w,h) down to fit within limit on the longest side, keeping aspect.
func fit(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		nh := h * limit / w
		if nh < 1 {
			nh = 1
		}
		return limit, nh
	}
	nw := w * limit / h
	if nw < 1 {
		nw = 1
	}
	return nw, limit
}
