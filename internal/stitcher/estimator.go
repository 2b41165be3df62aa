package stitcher

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/kiesman99/mosaic/pkg/tile"
)

// Estimate is the deepest zoom at which both corner tiles exist
type Estimate struct {
	Grid     tile.Grid
	Zoom     int
	Attempts int

	// tiles under the two input points
	CornerA, CornerB image.Image
}

// Estimate walks down from maxZoom until the tiles under both points are
// available. It only looks at the corners, so tiles inside the grid may
// still be missing.
func (s *Stitcher) Estimate(ctx context.Context, a, b tile.GeoPoint, maxZoom, minZoom int) (*Estimate, error) {
	attempts := 0
	for zoom := maxZoom; zoom >= minZoom; zoom-- {
		attempts++
		ca, cb := tile.ToCoord(a, zoom), tile.ToCoord(b, zoom)

		imgA, imgB, ok, err := s.corners(ctx, ca, cb, attempts)
		if err != nil {
			return nil, &StageError{Stage: StageEstimation, Zoom: zoom, Attempts: attempts, Err: err}
		}
		if !ok {
			s.log.WithField("zoom", zoom).Debug("corner tiles unavailable")
			continue
		}

		grid, err := tile.NewGrid(ca, cb)
		if err != nil {
			return nil, &StageError{Stage: StageEstimation, Zoom: zoom, Attempts: attempts, Err: err}
		}

		s.log.WithFields(logrus.Fields{"zoom": zoom, "tiles": grid.Len()}).Info("maximum zoom level estimate")
		return &Estimate{
			Grid:     grid,
			Zoom:     zoom,
			Attempts: attempts,
			CornerA:  imgA,
			CornerB:  imgB,
		}, nil
	}

	return nil, &StageError{Stage: StageEstimation, Zoom: minZoom, Attempts: attempts, Err: ErrZoomExhausted}
}

// corners fetches the two corner tiles, stopping at the first missing one
func (s *Stitcher) corners(ctx context.Context, ca, cb tile.Coord, attempt int) (image.Image, image.Image, bool, error) {
	imgA, ok, err := s.fetch(ctx, ca)
	s.report(Event{Stage: StageEstimation, Coord: ca, Index: 2 * (attempt - 1), Available: ok})
	if err != nil || !ok {
		return nil, nil, false, err
	}

	if cb == ca {
		return imgA, imgA, true, nil
	}

	imgB, ok, err := s.fetch(ctx, cb)
	s.report(Event{Stage: StageEstimation, Coord: cb, Index: 2*(attempt-1) + 1, Available: ok})
	if err != nil || !ok {
		return nil, nil, false, err
	}

	return imgA, imgB, true, nil
}
