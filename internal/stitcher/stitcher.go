package stitcher

import (
	"context"
	"errors"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/kiesman99/mosaic/internal/provider"
	"github.com/kiesman99/mosaic/pkg/tile"
)

// DefaultMaxPixels caps the mosaic at 10000x10000
const DefaultMaxPixels = 10000 * 10000

// Event is reported for every tile request
type Event struct {
	Stage     Stage
	Coord     tile.Coord
	Index     int // position within the stage's request sequence
	Total     int
	Available bool
}

// Options contains the stitcher's collaborators and limits
type Options struct {
	Logger    logrus.FieldLogger
	MaxPixels int64
	OnTile    func(Event)
}

// Stitcher estimates zoom levels and assembles tile grids from one provider
type Stitcher struct {
	provider  provider.Provider
	log       logrus.FieldLogger
	maxPixels int64
	onTile    func(Event)
}

// New creates a new stitcher instance
func New(p provider.Provider, opts Options) *Stitcher {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}

	return &Stitcher{
		provider:  p,
		log:       opts.Logger,
		maxPixels: opts.MaxPixels,
		onTile:    opts.OnTile,
	}
}

// fetch asks the provider for one tile. A missing tile is not an error: it
// comes back as (nil, false, nil).
func (s *Stitcher) fetch(ctx context.Context, c tile.Coord) (image.Image, bool, error) {
	key := c.QuadKey()
	log := s.log.WithFields(logrus.Fields{"zoom": c.Zoom, "x": c.X, "y": c.Y, "quadkey": key})

	img, err := s.provider.Fetch(ctx, key)
	switch {
	case err == nil:
		b := img.Bounds()
		if b.Dx() != tile.Size || b.Dy() != tile.Size {
			log.Warnf("got %dx%d tile, not %d", b.Dx(), b.Dy(), tile.Size)
			return nil, false, nil
		}
		log.Debug("tile available")
		return img, true, nil
	case errors.Is(err, provider.ErrTileUnavailable):
		log.Debugf("tile unavailable: %v", err)
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func (s *Stitcher) report(ev Event) {
	if s.onTile != nil {
		s.onTile(ev)
	}
}
