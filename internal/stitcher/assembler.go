package stitcher

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"

	"github.com/kiesman99/mosaic/pkg/tile"
)

// Mosaic is the full resolution image of a complete grid
type Mosaic struct {
	Image *image.RGBA
	Grid  tile.Grid

	// first and last tile of the grid, kept for diagnostics
	CornerA, CornerB image.Image
}

// Zoom is the level the mosaic was assembled at
func (m *Mosaic) Zoom() int {
	return m.Grid.Zoom()
}

// Assemble fetches every tile of grid column by column and stitches them.
// The first missing tile aborts the whole assembly with ErrNeedsLowerZoom;
// nothing after it is requested.
func (s *Stitcher) Assemble(ctx context.Context, grid tile.Grid) (*Mosaic, error) {
	width, height := grid.PixelSize()
	if int64(width)*int64(height) > s.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d at zoom %d", ErrMosaicTooLarge, width, height, grid.Zoom())
	}

	log := s.log.WithFields(logrus.Fields{"zoom": grid.Zoom(), "tiles": grid.Len()})
	log.Info("downloading grid")

	total := grid.Len()
	index := 0
	strips := make([]*image.RGBA, 0, grid.Columns())
	var first, last image.Image

	for x := grid.Min.X; x <= grid.Max.X; x++ {
		strip := image.NewRGBA(image.Rect(0, 0, tile.Size, height))

		for row, c := range grid.Column(x) {
			img, ok, err := s.fetch(ctx, c)
			s.report(Event{Stage: StageAssembly, Coord: c, Index: index, Total: total, Available: ok})
			index++
			if err != nil {
				return nil, err
			}
			if !ok {
				log.WithFields(logrus.Fields{"x": c.X, "y": c.Y}).Info("tile missing, abandoning zoom level")
				return nil, fmt.Errorf("%w: tile %v", ErrNeedsLowerZoom, c)
			}

			if first == nil {
				first = img
			}
			last = img

			b := img.Bounds()
			dst := image.Rect(0, row*tile.Size, tile.Size, (row+1)*tile.Size)
			xdraw.Draw(strip, dst, img, b.Min, xdraw.Src)
		}

		strips = append(strips, strip)
	}

	return &Mosaic{
		Image:   concatColumns(strips, width, height),
		Grid:    grid,
		CornerA: first,
		CornerB: last,
	}, nil
}

// concatColumns lays the column strips side by side in order
func concatColumns(strips []*image.RGBA, width, height int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, strip := range strips {
		dst := image.Rect(i*tile.Size, 0, (i+1)*tile.Size, height)
		xdraw.Draw(out, dst, strip, image.Point{}, xdraw.Src)
	}
	return out
}
