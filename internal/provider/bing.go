package provider

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiesman99/mosaic/pkg/tile"
)

const (
	// DefaultURL serves Bing aerial imagery by quad-key
	DefaultURL = "http://h{s}.ortho.tiles.virtualearth.net/tiles/h{q}.jpeg?g=131"

	DefaultUserAgent = "mosaic/1.0.0"

	// tileInfoHeader is set to "no-tile" when Bing has no imagery for a key
	tileInfoHeader = "X-VE-Tile-Info"
)

// Options configures the quad-key HTTP client
type Options struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
	Logger    logrus.FieldLogger
}

// Bing fetches tiles from a quad-key addressed imagery service
type Bing struct {
	client    *http.Client
	template  string
	userAgent string
	headers   map[string]string
	log       logrus.FieldLogger
}

// NewBing creates a new quad-key tile client
func NewBing(opts Options) *Bing {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	// idle keep-alive connections are closed after IdleConnTimeout
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment

	return &Bing{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		template:  opts.URL,
		userAgent: opts.UserAgent,
		headers:   opts.Headers,
		log:       opts.Logger,
	}
}

// Fetch downloads and decodes the tile for key
func (b *Bing) Fetch(ctx context.Context, key tile.QuadKey) (image.Image, error) {
	url := BuildURL(b.template, key)

	data, err := b.download(ctx, url)
	if err != nil {
		return nil, err
	}

	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrProvider, url, err)
	}

	return img, nil
}

func (b *Bing) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	req.Header.Set("User-Agent", b.userAgent)
	for key, value := range b.headers {
		req.Header.Set(key, value)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	b.log.WithFields(logrus.Fields{"url": url, "status": resp.StatusCode}).Debug("tile response")

	if resp.StatusCode == http.StatusNotFound || resp.Header.Get(tileInfoHeader) == "no-tile" {
		return nil, fmt.Errorf("%w: %s", ErrTileUnavailable, url)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrProvider, url, err)
	}

	return data, nil
}

// BuildURL replaces the {q} quad-key and {s} subdomain tokens
func BuildURL(template string, key tile.QuadKey) string {
	url := strings.ReplaceAll(template, "{q}", string(key))
	if strings.Contains(url, "{s}") {
		subdomain := "0"
		if len(key) > 0 {
			subdomain = string(key[len(key)-1])
		}
		url = strings.ReplaceAll(url, "{s}", subdomain)
	}
	return url
}
