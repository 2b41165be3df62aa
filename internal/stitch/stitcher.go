package stitch

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/kiesman99/mosaic/internal/config"
	"github.com/kiesman99/mosaic/internal/provider"
	"github.com/kiesman99/mosaic/internal/stitcher"
)

// Runner handles a command line retrieval and writes its files
type Runner struct {
	cfg      *config.Config
	provider provider.Provider
	log      logrus.FieldLogger
	progress io.Writer
	bar      *progressbar.ProgressBar
}

// NewRunner creates a runner. A nil provider is built from the config.
func NewRunner(cfg *config.Config, p provider.Provider, log logrus.FieldLogger, progress io.Writer) (*Runner, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if p == nil {
		var err error
		if p, err = cfg.Provider.NewProvider(log); err != nil {
			return nil, err
		}
	}

	return &Runner{
		cfg:      cfg,
		provider: p,
		log:      log,
		progress: progress,
	}, nil
}

// Outputs lists the files a run wrote
type Outputs struct {
	Mosaic    string
	Preview   string
	Corners   []string
	WorldFile string
	Summary   string
}

// Run retrieves the mosaic and persists it. The full resolution image is
// written before any resized copy is made.
func (r *Runner) Run(ctx context.Context) (*stitcher.Result, *Outputs, error) {
	opts := stitcher.Options{Logger: r.log}
	if !r.cfg.Release && r.progress != nil {
		opts.OnTile = r.onTile
	}

	r.log.WithFields(logrus.Fields{
		"a": r.cfg.A.String(),
		"b": r.cfg.B.String(),
	}).Infof("retrieving mosaic, zoom %d..%d", r.cfg.MinZoom, r.cfg.MaxZoom)

	res, err := stitcher.New(r.provider, opts).Retrieve(ctx, stitcher.Request{
		A:       r.cfg.A,
		B:       r.cfg.B,
		MaxZoom: r.cfg.MaxZoom,
		MinZoom: r.cfg.MinZoom,
	})
	r.finishBar()
	if err != nil {
		return nil, nil, err
	}

	out := &Outputs{Mosaic: r.cfg.Output}
	if err := WriteImage(out.Mosaic, res.Mosaic.Image); err != nil {
		return res, nil, fmt.Errorf("failed to write mosaic: %w", err)
	}
	r.log.WithField("zoom", res.Zoom).Infof("mosaic written to %s", out.Mosaic)

	if !r.cfg.Release {
		corners, err := r.writeCorners(res)
		if err != nil {
			return res, nil, err
		}
		out.Corners = corners
	}

	if r.cfg.Preview != "" {
		if err := WriteImage(r.cfg.Preview, Resize(res.Mosaic.Image, r.cfg.PreviewHeight)); err != nil {
			return res, nil, fmt.Errorf("failed to write preview: %w", err)
		}
		out.Preview = r.cfg.Preview
	}

	if r.cfg.WorldFile {
		out.WorldFile = WorldFileName(out.Mosaic)
		if err := writeFile(out.WorldFile, NewWorldFile(res.Mosaic.Grid).Bytes()); err != nil {
			return res, nil, fmt.Errorf("failed to write world file: %w", err)
		}
	}

	if r.cfg.Summary != "" {
		if err := WriteSummary(r.cfg.Summary, NewSummary(r.cfg.A, r.cfg.B, res, out.Mosaic)); err != nil {
			return res, nil, fmt.Errorf("failed to write summary: %w", err)
		}
		out.Summary = r.cfg.Summary
	}

	return res, out, nil
}

// writeCorners stores the first and last grid tile next to the mosaic
func (r *Runner) writeCorners(res *stitcher.Result) ([]string, error) {
	ext := filepath.Ext(r.cfg.Output)
	base := strings.TrimSuffix(r.cfg.Output, ext)

	var files []string
	for i, img := range []image.Image{res.Mosaic.CornerA, res.Mosaic.CornerB} {
		name := fmt.Sprintf("%s_corner_%c%s", base, 'a'+i, ext)
		if err := WriteImage(name, img); err != nil {
			return nil, fmt.Errorf("failed to write corner tile: %w", err)
		}
		files = append(files, name)
	}
	return files, nil
}

func (r *Runner) onTile(ev stitcher.Event) {
	if ev.Stage != stitcher.StageAssembly {
		return
	}
	if ev.Index == 0 {
		r.finishBar()
		r.bar = progressbar.NewOptions(ev.Total,
			progressbar.OptionSetWriter(r.progress),
			progressbar.OptionSetDescription(fmt.Sprintf("zoom %d", ev.Coord.Zoom)),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
		)
	}
	if r.bar != nil {
		_ = r.bar.Add(1)
	}
}

func (r *Runner) finishBar() {
	if r.bar != nil {
		r.bar.Exit()
		r.bar = nil
	}
}
