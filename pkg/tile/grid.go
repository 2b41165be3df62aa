package tile

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Grid is the inclusive rectangle of tiles between two corners at one zoom
type Grid struct {
	Min, Max Coord
}

// NewGrid spans the rectangle between two corners. The corners may be given
// in any order but must share a zoom level.
func NewGrid(a, b Coord) (Grid, error) {
	if a.Zoom != b.Zoom {
		return Grid{}, fmt.Errorf("corner zoom mismatch: %d vs %d", a.Zoom, b.Zoom)
	}

	return Grid{
		Min: Coord{X: min(a.X, b.X), Y: min(a.Y, b.Y), Zoom: a.Zoom},
		Max: Coord{X: max(a.X, b.X), Y: max(a.Y, b.Y), Zoom: a.Zoom},
	}, nil
}

// GridFor projects both points at zoom and spans the grid between them
func GridFor(a, b GeoPoint, zoom int) Grid {
	// same zoom by construction
	g, _ := NewGrid(ToCoord(a, zoom), ToCoord(b, zoom))
	return g
}

func (g Grid) Zoom() int {
	return g.Min.Zoom
}

// Columns is the number of distinct x values
func (g Grid) Columns() int {
	return int(g.Max.X-g.Min.X) + 1
}

// Rows is the number of distinct y values
func (g Grid) Rows() int {
	return int(g.Max.Y-g.Min.Y) + 1
}

// Len is the number of tiles in the grid
func (g Grid) Len() int {
	return g.Columns() * g.Rows()
}

// Coords enumerates the grid column by column: x outer, y inner. Assembly
// builds whole columns in this order, so it must not change.
func (g Grid) Coords() []Coord {
	coords := make([]Coord, 0, g.Len())
	for x := g.Min.X; x <= g.Max.X; x++ {
		for y := g.Min.Y; y <= g.Max.Y; y++ {
			coords = append(coords, Coord{X: x, Y: y, Zoom: g.Zoom()})
		}
	}
	return coords
}

// Column returns the tiles of column x in ascending y
func (g Grid) Column(x uint32) []Coord {
	col := make([]Coord, 0, g.Rows())
	for y := g.Min.Y; y <= g.Max.Y; y++ {
		col = append(col, Coord{X: x, Y: y, Zoom: g.Zoom()})
	}
	return col
}

// PixelSize is the width and height of the stitched grid
func (g Grid) PixelSize() (int, int) {
	return g.Columns() * Size, g.Rows() * Size
}

// Bound is the geographic extent covered by the whole grid
func (g Grid) Bound() orb.Bound {
	return g.Min.Bound().Union(g.Max.Bound())
}

func (g Grid) String() string {
	return fmt.Sprintf("z%d [%d..%d]x[%d..%d]", g.Zoom(), g.Min.X, g.Max.X, g.Min.Y, g.Max.Y)
}
