package tile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// Clip clamps v into [lo, hi]
func Clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// ToCoord projects a point onto the tile grid at the given zoom level.
// https://learn.microsoft.com/en-us/bingmaps/articles/bing-maps-tile-system
func ToCoord(p GeoPoint, zoom int) Coord {
	p = p.Clipped()

	sinLat := math.Sin(p.Lat * math.Pi / 180)
	mapSize := float64(Size) * math.Exp2(float64(zoom))

	pixelX := (p.Lon + 180) / 360 * mapSize
	pixelY := (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * mapSize

	// lon=180 and the southern limit land exactly on the far edge
	last := math.Exp2(float64(zoom)) - 1
	x := Clip(math.Floor(pixelX/Size), 0, last)
	y := Clip(math.Floor(pixelY/Size), 0, last)

	return Coord{X: uint32(x), Y: uint32(y), Zoom: zoom}
}

// QuadKey encodes the coordinate, one digit per level starting at the root
func (c Coord) QuadKey() QuadKey {
	var key strings.Builder
	key.Grow(c.Zoom)
	for i := c.Zoom; i > 0; i-- {
		digit := byte('0')
		mask := uint32(1) << (i - 1)
		if c.X&mask != 0 {
			digit++
		}
		if c.Y&mask != 0 {
			digit += 2
		}
		key.WriteByte(digit)
	}
	return QuadKey(key.String())
}

// ParseQuadKey recovers the coordinate a quad-key was built from
func ParseQuadKey(s string) (Coord, error) {
	if len(s) > MaxZoom {
		return Coord{}, fmt.Errorf("quadkey %q: deeper than zoom %d", s, MaxZoom)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '3' {
			return Coord{}, fmt.Errorf("quadkey %q: invalid digit %q", s, s[i])
		}
	}
	if s == "" {
		return Coord{}, nil
	}

	k, err := strconv.ParseUint(s, 4, 64)
	if err != nil {
		return Coord{}, fmt.Errorf("quadkey %q: %w", s, err)
	}

	t := maptile.FromQuadkey(k, maptile.Zoom(len(s)))
	return Coord{X: t.X, Y: t.Y, Zoom: len(s)}, nil
}

// Coord decodes the key
func (q QuadKey) Coord() (Coord, error) {
	return ParseQuadKey(string(q))
}
