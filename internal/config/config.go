package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/kiesman99/mosaic/internal/provider"
	"github.com/kiesman99/mosaic/pkg/tile"
)

// Default corner points, a block of downtown Chicago
const (
	DefaultLat1 = "41.882692"
	DefaultLon1 = "-87.623332"
	DefaultLat2 = "41.883692"
	DefaultLon2 = "-87.625332"
)

// Provider configures where tiles come from and how failures are treated
type Provider struct {
	URL         string
	UserAgent   string
	Sentinel    string
	Threshold   float64
	Timeout     time.Duration
	Retries     int
	Backoff     []time.Duration
	FatalErrors bool
}

// Config is everything a retrieval needs
type Config struct {
	A, B    tile.GeoPoint
	MaxZoom int
	MinZoom int

	// Release suppresses diagnostics: per-tile logging, progress and the
	// corner tile files
	Release bool

	Output        string
	Preview       string
	PreviewHeight int
	WorldFile     bool
	Summary       string

	Provider Provider
}

// SetDefaults registers defaults for every key Load reads
func SetDefaults(v *viper.Viper) {
	v.SetDefault("lat1", DefaultLat1)
	v.SetDefault("lon1", DefaultLon1)
	v.SetDefault("lat2", DefaultLat2)
	v.SetDefault("lon2", DefaultLon2)
	v.SetDefault("max-zoom", tile.MaxZoom)
	v.SetDefault("min-zoom", 1)
	v.SetDefault("output", "result/mosaic.jpeg")
	v.SetDefault("preview-height", 512)
	v.SetDefault("provider.url", provider.DefaultURL)
	v.SetDefault("provider.user-agent", provider.DefaultUserAgent)
	v.SetDefault("provider.threshold", provider.DefaultThreshold)
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.retries", 3)
	v.SetDefault("provider.backoff", []string{"250ms", "1s", "2s"})
	v.SetDefault("log.level", "info")
}

// Load reads the configuration from v. Coordinates are parsed here so
// malformed input never reaches the tile math.
func Load(v *viper.Viper) (*Config, error) {
	a, b, err := corners(v)
	if err != nil {
		return nil, err
	}

	backoff, err := durations(v.GetStringSlice("provider.backoff"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider.backoff: %w", err)
	}

	cfg := &Config{
		A:             a,
		B:             b,
		MaxZoom:       v.GetInt("max-zoom"),
		MinZoom:       v.GetInt("min-zoom"),
		Release:       v.GetBool("release"),
		Output:        v.GetString("output"),
		Preview:       v.GetString("preview"),
		PreviewHeight: v.GetInt("preview-height"),
		WorldFile:     v.GetBool("worldfile"),
		Summary:       v.GetString("summary"),
		Provider: Provider{
			URL:         v.GetString("provider.url"),
			UserAgent:   v.GetString("provider.user-agent"),
			Sentinel:    v.GetString("provider.sentinel"),
			Threshold:   v.GetFloat64("provider.threshold"),
			Timeout:     v.GetDuration("provider.timeout"),
			Retries:     v.GetInt("provider.retries"),
			Backoff:     backoff,
			FatalErrors: v.GetBool("provider.fatal-errors"),
		},
	}

	if cfg.MaxZoom < 1 || cfg.MaxZoom > tile.MaxZoom {
		return nil, fmt.Errorf("max-zoom must be between 1 and %d", tile.MaxZoom)
	}
	if cfg.MinZoom < 1 || cfg.MinZoom > cfg.MaxZoom {
		return nil, fmt.Errorf("min-zoom must be between 1 and max-zoom (%d)", cfg.MaxZoom)
	}
	if cfg.Output == "" {
		return nil, fmt.Errorf("output file is required (use --output)")
	}
	if !strings.Contains(cfg.Provider.URL, "{q}") {
		return nil, fmt.Errorf("provider.url must contain the {q} placeholder")
	}

	return cfg, nil
}

// corners reads either --bbox or the four lat/lon keys
func corners(v *viper.Viper) (tile.GeoPoint, tile.GeoPoint, error) {
	if bbox := v.GetString("bbox"); bbox != "" {
		parts := strings.Split(bbox, ",")
		if len(parts) != 4 {
			return tile.GeoPoint{}, tile.GeoPoint{}, fmt.Errorf("%w: bbox must be in format 'lat1,lon1,lat2,lon2'", tile.ErrInvalidCoordinate)
		}
		a, err := tile.ParseGeoPoint(parts[0] + "," + parts[1])
		if err != nil {
			return tile.GeoPoint{}, tile.GeoPoint{}, err
		}
		b, err := tile.ParseGeoPoint(parts[2] + "," + parts[3])
		return a, b, err
	}

	var vals [4]float64
	for i, key := range []string{"lat1", "lon1", "lat2", "lon2"} {
		raw := strings.TrimSpace(v.GetString(key))
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return tile.GeoPoint{}, tile.GeoPoint{}, fmt.Errorf("%w: %s %q", tile.ErrInvalidCoordinate, key, raw)
		}
		vals[i] = f
	}

	a := tile.GeoPoint{Lat: vals[0], Lon: vals[1]}
	b := tile.GeoPoint{Lat: vals[2], Lon: vals[3]}
	if err := a.Validate(); err != nil {
		return a, b, err
	}
	return a, b, b.Validate()
}

func durations(raw []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(raw))
	for _, s := range raw {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// NewProvider builds the tile source: HTTP client, sentinel check, retries
func (p Provider) NewProvider(log logrus.FieldLogger) (provider.Provider, error) {
	var src provider.Provider = provider.NewBing(provider.Options{
		URL:       p.URL,
		UserAgent: p.UserAgent,
		Timeout:   p.Timeout,
		Logger:    log,
	})

	if p.Sentinel != "" {
		s, err := provider.LoadSentinel(p.Sentinel, p.Threshold)
		if err != nil {
			return nil, err
		}
		src = s.Wrap(src)
	}

	return provider.Retry(src, &provider.RetryStrategy{
		Intervals:  p.Backoff,
		MaxRetries: p.Retries,
		Fatal:      p.FatalErrors,
	}, log), nil
}
