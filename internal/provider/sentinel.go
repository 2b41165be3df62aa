package provider

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/kiesman99/mosaic/pkg/tile"
)

// DefaultThreshold is the mean absolute channel difference below which a
// tile counts as the provider's "no imagery" placeholder
const DefaultThreshold = 2.0

// Sentinel recognises the placeholder image a provider serves in place of
// missing imagery. Placeholders are re-encoded now and then, so the match is
// approximate.
type Sentinel struct {
	img       image.Image
	threshold float64
}

// NewSentinel wraps an already decoded placeholder image
func NewSentinel(img image.Image, threshold float64) *Sentinel {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Sentinel{img: img, threshold: threshold}
}

// LoadSentinel reads the placeholder image from disk
func LoadSentinel(path string, threshold float64) (*Sentinel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sentinel image: %w", err)
	}

	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sentinel image %s: %w", path, err)
	}

	return NewSentinel(img, threshold), nil
}

// Matches reports whether img is the placeholder. Images of a different
// size never match.
func (s *Sentinel) Matches(img image.Image) bool {
	return s.meanDiff(img) < s.threshold
}

// meanDiff truncates the mean absolute RGB difference to a whole number
func (s *Sentinel) meanDiff(img image.Image) float64 {
	a, b := s.img.Bounds(), img.Bounds()
	if a.Dx() != b.Dx() || a.Dy() != b.Dy() || a.Empty() {
		return math.Inf(1)
	}

	var sum uint64
	for y := 0; y < a.Dy(); y++ {
		for x := 0; x < a.Dx(); x++ {
			r1, g1, b1, _ := s.img.At(a.Min.X+x, a.Min.Y+y).RGBA()
			r2, g2, b2, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			sum += absDiff(r1>>8, r2>>8) + absDiff(g1>>8, g2>>8) + absDiff(b1>>8, b2>>8)
		}
	}

	samples := uint64(a.Dx()) * uint64(a.Dy()) * 3
	return math.Floor(float64(sum) / float64(samples))
}

// Wrap reports placeholder tiles from p as unavailable
func (s *Sentinel) Wrap(p Provider) Provider {
	return Func(func(ctx context.Context, key tile.QuadKey) (image.Image, error) {
		img, err := p.Fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		if s.Matches(img) {
			return nil, fmt.Errorf("%w: %s matches the sentinel image", ErrTileUnavailable, key)
		}
		return img, nil
	})
}

func absDiff(a, b uint32) uint64 {
	if a > b {
		return uint64(a - b)
	}
	return uint64(b - a)
}
