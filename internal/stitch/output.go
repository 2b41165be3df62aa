package stitch

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"gopkg.in/yaml.v3"

	"github.com/kiesman99/mosaic/internal/stitcher"
	"github.com/kiesman99/mosaic/pkg/tile"
)

// originShift is half the circumference of the earth in EPSG:3857 meters
const originShift = 20037508.342789244

// Encode writes img in the format implied by the file extension
func Encode(w io.Writer, img image.Image, filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return png.Encode(w, img)
	case ".jpg", ".jpeg", "":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	default:
		return fmt.Errorf("unsupported output format %q", filepath.Ext(filename))
	}
}

// WriteImage encodes img to filename, creating parent directories
func WriteImage(filename string, img image.Image) error {
	var buf bytes.Buffer
	if err := Encode(&buf, img, filename); err != nil {
		return err
	}

	return writeFile(filename, buf.Bytes())
}

// writeFile writes data to filename, creating parent directories
func writeFile(filename string, data []byte) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filename, data, 0o644)
}

// Resize scales img to the given height keeping its aspect ratio. The
// source is never modified.
func Resize(img image.Image, height int) image.Image {
	b := img.Bounds()
	if height <= 0 || b.Dy() == 0 || b.Dy() == height {
		return img
	}

	width := int(float64(b.Dx()) * float64(height) / float64(b.Dy()))
	if width < 1 {
		width = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// WorldFile holds the affine georeference of a mosaic in EPSG:3857
type WorldFile struct {
	PixelSize float64
	MinX      float64
	MaxY      float64
}

// NewWorldFile georeferences the top left pixel of grid
func NewWorldFile(grid tile.Grid) WorldFile {
	n := float64(uint64(1) << uint(grid.Zoom()))
	return WorldFile{
		PixelSize: 2 * originShift / (n * tile.Size),
		MinX:      float64(grid.Min.X)/n*2*originShift - originShift,
		MaxY:      originShift - float64(grid.Min.Y)/n*2*originShift,
	}
}

// Bytes renders the six line world file
func (w WorldFile) Bytes() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%24.10f\n", w.PixelSize)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", -w.PixelSize)
	fmt.Fprintf(&buf, "%24.10f\n", w.MinX)
	fmt.Fprintf(&buf, "%24.10f\n", w.MaxY)
	return buf.Bytes()
}

// WorldFileName swaps the image extension for its world file counterpart
func WorldFileName(filename string) string {
	ext := ".jgw"
	if strings.EqualFold(filepath.Ext(filename), ".png") {
		ext = ".pgw"
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}

// Summary describes a finished retrieval
type Summary struct {
	PointA   [2]float64 `yaml:"point_a"`
	PointB   [2]float64 `yaml:"point_b"`
	Zoom     int        `yaml:"zoom"`
	Estimate int        `yaml:"estimated_zoom"`
	Attempts int        `yaml:"attempts"`
	Tiles    int        `yaml:"tiles"`
	Columns  int        `yaml:"columns"`
	Rows     int        `yaml:"rows"`
	Width    int        `yaml:"width"`
	Height   int        `yaml:"height"`
	Bounds   [4]float64 `yaml:"bounds"` // west, south, east, north
	Output   string     `yaml:"output"`
}

// NewSummary collects the facts about res worth keeping
func NewSummary(a, b tile.GeoPoint, res *stitcher.Result, output string) Summary {
	grid := res.Mosaic.Grid
	bound := grid.Bound()
	w, h := grid.PixelSize()

	s := Summary{
		PointA:   [2]float64{a.Lat, a.Lon},
		PointB:   [2]float64{b.Lat, b.Lon},
		Zoom:     res.Zoom,
		Attempts: res.Attempts,
		Tiles:    grid.Len(),
		Columns:  grid.Columns(),
		Rows:     grid.Rows(),
		Width:    w,
		Height:   h,
		Bounds:   [4]float64{bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y()},
		Output:   output,
	}
	if res.Estimate != nil {
		s.Estimate = res.Estimate.Zoom
	}
	return s
}

// WriteSummary stores s as YAML
func WriteSummary(filename string, s Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return writeFile(filename, data)
}
