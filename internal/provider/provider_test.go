package provider

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiesman99/mosaic/pkg/tile"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func solidTile(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, tile.Size, tile.Size))
	for y := 0; y < tile.Size; y++ {
		for x := 0; x < tile.Size; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode tile: %v", err)
	}
	return buf.Bytes()
}

func TestBuildURL(t *testing.T) {
	testCases := []struct {
		template string
		key      tile.QuadKey
		want     string
	}{
		{DefaultURL, "0231", "http://h1.ortho.tiles.virtualearth.net/tiles/h0231.jpeg?g=131"},
		{DefaultURL, "", "http://h0.ortho.tiles.virtualearth.net/tiles/h.jpeg?g=131"},
		{"https://example.com/a/{q}.png", "123", "https://example.com/a/123.png"},
	}

	for _, tc := range testCases {
		if got := BuildURL(tc.template, tc.key); got != tc.want {
			t.Errorf("BuildURL(%q, %q) = %q, want %q", tc.template, tc.key, got, tc.want)
		}
	}
}

func TestBingFetch(t *testing.T) {
	tileData := encodePNG(t, solidTile(color.RGBA{10, 120, 30, 255}))
	var gotUserAgent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		switch {
		case strings.HasSuffix(r.URL.Path, "/h0123"):
			w.Write(tileData)
		case strings.HasSuffix(r.URL.Path, "/h0000"):
			w.Header().Set("X-VE-Tile-Info", "no-tile")
			w.Write(tileData)
		case strings.HasSuffix(r.URL.Path, "/h3333"):
			w.WriteHeader(http.StatusBadGateway)
		case strings.HasSuffix(r.URL.Path, "/h2222"):
			w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewBing(Options{
		URL:       server.URL + "/tiles/h{q}",
		UserAgent: "mosaic-test",
		Timeout:   5 * time.Second,
		Logger:    quietLogger(),
	})
	ctx := context.Background()

	t.Run("available", func(t *testing.T) {
		img, err := client.Fetch(ctx, "0123")
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if img.Bounds().Dx() != tile.Size {
			t.Errorf("Expected %d px tile, got %v", tile.Size, img.Bounds())
		}
		if gotUserAgent != "mosaic-test" {
			t.Errorf("Expected User-Agent mosaic-test, got %q", gotUserAgent)
		}
	})

	testCases := []struct {
		name string
		key  tile.QuadKey
		want error
	}{
		{"not found", "0001", ErrTileUnavailable},
		{"no-tile header", "0000", ErrTileUnavailable},
		{"server error", "3333", ErrProvider},
		{"garbage body", "2222", ErrProvider},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Fetch(ctx, tc.key)
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	t.Run("status code", func(t *testing.T) {
		_, err := client.Fetch(ctx, "3333")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
			t.Errorf("Expected StatusError 502, got %v", err)
		}
	})
}

func TestBingFetch_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewBing(Options{URL: server.URL + "/{q}", Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, "01")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	if _, err := Decode([]byte("GIF89a")); err == nil {
		t.Error("Expected error for unsupported format")
	}

	img, err := Decode(encodePNG(t, solidTile(color.White)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds().Dy() != tile.Size {
		t.Errorf("Unexpected bounds %v", img.Bounds())
	}
}
