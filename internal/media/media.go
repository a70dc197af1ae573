// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package media validates and prepares post images before they are sent to
// object storage. Wide raster images are downscaled to a JPEG so feed
// payloads stay small; GIFs pass through untouched to keep animation.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	// MaxUploadSize is the maximum accepted image size (10 MB).
	MaxUploadSize = 10 << 20

	// MaxWidth is the widest image stored as-is.
	MaxWidth = 1600

	// jpegQuality is used when a downscaled copy is re-encoded.
	jpegQuality = 85

	// maxImagePixels caps the number of pixels to prevent memory bombs.
	// 50 million pixels is ~200 MB decoded in RGBA.
	maxImagePixels = 50_000_000
)

var (
	ErrEmpty       = errors.New("image is empty")
	ErrTooLarge    = errors.New("image exceeds maximum size")
	ErrUnsupported = errors.New("image type not allowed")
	ErrCorrupt     = errors.New("image could not be decoded")
)

// allowedTypes defines MIME types accepted for upload.
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// scalableTypes are the types that get downscaled when too wide.
var scalableTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Image is a validated upload ready for storage.
type Image struct {
	Key         string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Prepare sniffs the content type, enforces the size and pixel limits,
// downscales wide images and assigns a storage key of the form
// posts/<yyyy>/<mm>/<uuid><ext>.
func Prepare(filename string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	// Detect content type by sniffing the first 512 bytes.
	sniff := data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	contentType := http.DetectContentType(sniff)
	if !allowedTypes[contentType] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, contentType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxImagePixels)
	}

	img := &Image{
		ContentType: contentType,
		Data:        data,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}

	if scalableTypes[contentType] && cfg.Width > MaxWidth {
		scaled, w, h, err := downscale(data, MaxWidth)
		if err != nil {
			return nil, err
		}
		img.Data, img.Width, img.Height = scaled, w, h
		img.ContentType = "image/jpeg"
	}

	ext := extensionFromType(img.ContentType)
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	now := time.Now().UTC()
	img.Key = fmt.Sprintf("posts/%d/%02d/%s%s", now.Year(), now.Month(), uuid.New().String(), ext)

	return img, nil
}

// downscale re-encodes data as a JPEG constrained to maxWidth while
// preserving aspect ratio.
func downscale(data []byte, maxWidth int) ([]byte, int, int, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	bounds := src.Bounds()
	ratio := float64(maxWidth) / float64(bounds.Dx())
	newWidth := maxWidth
	newHeight := max(int(float64(bounds.Dy())*ratio), 1)

	// JPEG has no alpha channel, so paint transparent areas white.
	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), newWidth, newHeight, nil
}

// extensionFromType returns a file extension for known MIME types.
func extensionFromType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
