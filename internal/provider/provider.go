package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/kiesman99/mosaic/pkg/tile"
)

var (
	// ErrTileUnavailable means the imagery source has nothing for a quad-key
	ErrTileUnavailable = errors.New("tile unavailable")

	// ErrProvider covers transport failures and unusable responses
	ErrProvider = errors.New("provider error")
)

// Provider turns a quad-key into a decoded tile image
type Provider interface {
	Fetch(ctx context.Context, key tile.QuadKey) (image.Image, error)
}

// Func adapts a function to the Provider interface
type Func func(ctx context.Context, key tile.QuadKey) (image.Image, error)

func (f Func) Fetch(ctx context.Context, key tile.QuadKey) (image.Image, error) {
	return f(ctx, key)
}

// StatusError carries the HTTP status of a failed tile request
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error {
	return ErrProvider
}

// Decode detects the image format by magic bytes and decodes it
func Decode(data []byte) (image.Image, error) {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x89, 0x50, 0x4E, 0x47}):
		return png.Decode(bytes.NewReader(data))
	case len(data) >= 2 && bytes.Equal(data[:2], []byte{0xFF, 0xD8}):
		return jpeg.Decode(bytes.NewReader(data))
	}

	return nil, fmt.Errorf("unrecognized image format")
}
