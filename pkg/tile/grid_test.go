package tile

import (
	"testing"
)

func TestNewGrid_CornerOrder(t *testing.T) {
	a := Coord{X: 10, Y: 3, Zoom: 5}
	b := Coord{X: 7, Y: 6, Zoom: 5}

	g, err := NewGrid(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Min != (Coord{X: 7, Y: 3, Zoom: 5}) || g.Max != (Coord{X: 10, Y: 6, Zoom: 5}) {
		t.Errorf("got grid %v", g)
	}

	g2, _ := NewGrid(b, a)
	if g2 != g {
		t.Errorf("corner order changed the grid: %v vs %v", g2, g)
	}
}

func TestNewGrid_ZoomMismatch(t *testing.T) {
	if _, err := NewGrid(Coord{Zoom: 3}, Coord{Zoom: 4}); err == nil {
		t.Error("expected error for corners at different zoom levels")
	}
}

func TestGridCoords_CompleteRectangle(t *testing.T) {
	g, _ := NewGrid(Coord{X: 4, Y: 9, Zoom: 6}, Coord{X: 6, Y: 7, Zoom: 6})
	coords := g.Coords()

	if want := (6 - 4 + 1) * (9 - 7 + 1); len(coords) != want || g.Len() != want {
		t.Fatalf("expected %d coords, got %d (Len %d)", want, len(coords), g.Len())
	}

	seen := make(map[Coord]bool)
	for _, c := range coords {
		if c.X < g.Min.X || c.X > g.Max.X || c.Y < g.Min.Y || c.Y > g.Max.Y {
			t.Errorf("%v outside %v", c, g)
		}
		if c.Zoom != 6 {
			t.Errorf("%v has wrong zoom", c)
		}
		if seen[c] {
			t.Errorf("%v enumerated twice", c)
		}
		seen[c] = true
	}
}

func TestGridCoords_ColumnMajorOrder(t *testing.T) {
	g, _ := NewGrid(Coord{X: 0, Y: 0, Zoom: 2}, Coord{X: 1, Y: 2, Zoom: 2})

	want := []Coord{
		{0, 0, 2}, {0, 1, 2}, {0, 2, 2},
		{1, 0, 2}, {1, 1, 2}, {1, 2, 2},
	}
	got := g.Coords()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %v, want %v (full: %v)", i, got[i], want[i], got)
		}
	}

	col := g.Column(1)
	if len(col) != 3 || col[0] != (Coord{1, 0, 2}) || col[2] != (Coord{1, 2, 2}) {
		t.Errorf("Column(1) = %v", col)
	}
}

func TestGrid_SingleTile(t *testing.T) {
	c := ToCoord(chicagoA, 12)
	g, err := NewGrid(c, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Len() != 1 || len(g.Coords()) != 1 || g.Coords()[0] != c {
		t.Errorf("expected single tile grid at %v, got %v", c, g.Coords())
	}

	w, h := g.PixelSize()
	if w != Size || h != Size {
		t.Errorf("PixelSize = %dx%d", w, h)
	}
}

func TestGridFor_ShrinksWithZoom(t *testing.T) {
	prev := GridFor(chicagoA, chicagoB, MaxZoom).Len()
	for zoom := MaxZoom - 1; zoom >= 1; zoom-- {
		n := GridFor(chicagoA, chicagoB, zoom).Len()
		if n > prev {
			t.Errorf("zoom %d has %d tiles, more than %d at zoom %d", zoom, n, prev, zoom+1)
		}
		prev = n
	}
}

func TestGrid_Bound(t *testing.T) {
	g := GridFor(chicagoA, chicagoB, 17)
	b := g.Bound()

	for _, p := range []GeoPoint{chicagoA, chicagoB} {
		if !b.Contains(p.Point()) {
			t.Errorf("grid bound %v does not contain %v", b, p)
		}
	}
}
