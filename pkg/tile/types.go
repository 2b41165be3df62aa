package tile

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Projection limits of the spherical Mercator tile scheme
const (
	MinLatitude  = -85.05112878
	MaxLatitude  = 85.05112878
	MinLongitude = -180.0
	MaxLongitude = 180.0

	// Size is the edge length of a tile in pixels
	Size = 256

	// MaxZoom is the deepest level a quad-key can address
	MaxZoom = 23
)

// ErrInvalidCoordinate is returned for input that can't be projected at all
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// GeoPoint is a WGS84 position in decimal degrees
type GeoPoint struct {
	Lat, Lon float64
}

// Validate rejects values no amount of clipping can fix
func (p GeoPoint) Validate() error {
	for _, v := range []float64{p.Lat, p.Lon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v,%v", ErrInvalidCoordinate, p.Lat, p.Lon)
		}
	}
	return nil
}

// Clipped returns the point clamped into the projectable range
func (p GeoPoint) Clipped() GeoPoint {
	return GeoPoint{
		Lat: Clip(p.Lat, MinLatitude, MaxLatitude),
		Lon: Clip(p.Lon, MinLongitude, MaxLongitude),
	}
}

// Point converts to an orb point (lon, lat order)
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%.8f,%.8f", p.Lat, p.Lon)
}

// ParseGeoPoint parses "lat,lon"
func ParseGeoPoint(s string) (GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return GeoPoint{}, fmt.Errorf("%w: expected 'lat,lon', got %q", ErrInvalidCoordinate, s)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("%w: latitude %q", ErrInvalidCoordinate, parts[0])
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("%w: longitude %q", ErrInvalidCoordinate, parts[1])
	}

	p := GeoPoint{Lat: lat, Lon: lon}
	return p, p.Validate()
}

// Coord addresses a single tile. The same X,Y means a different patch of
// ground at every zoom, so the zoom always travels with it.
type Coord struct {
	X, Y uint32
	Zoom int
}

// Tile returns the orb representation of the coordinate
func (c Coord) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Zoom))
}

// Bound returns the geographic extent of the tile
func (c Coord) Bound() orb.Bound {
	return c.Tile().Bound()
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.X, c.Y)
}

// QuadKey is the base-4 path from the root tile, most significant level first
type QuadKey string

// Zoom is the level the key addresses
func (q QuadKey) Zoom() int {
	return len(q)
}
