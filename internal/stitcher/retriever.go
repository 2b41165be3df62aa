package stitcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kiesman99/mosaic/pkg/tile"
)

// State of a retrieval
type State int

const (
	Estimating State = iota
	Assembling
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Estimating:
		return "estimating"
	case Assembling:
		return "assembling"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Request describes the area to retrieve
type Request struct {
	A, B    tile.GeoPoint
	MaxZoom int // defaults to tile.MaxZoom
	MinZoom int // defaults to 1
}

func (r *Request) normalize() error {
	if err := r.A.Validate(); err != nil {
		return err
	}
	if err := r.B.Validate(); err != nil {
		return err
	}
	if r.MaxZoom == 0 {
		r.MaxZoom = tile.MaxZoom
	}
	if r.MinZoom == 0 {
		r.MinZoom = 1
	}
	if r.MaxZoom < 1 || r.MaxZoom > tile.MaxZoom {
		return fmt.Errorf("max zoom %d outside [1, %d]", r.MaxZoom, tile.MaxZoom)
	}
	if r.MinZoom < 1 || r.MinZoom > r.MaxZoom {
		return fmt.Errorf("min zoom %d outside [1, %d]", r.MinZoom, r.MaxZoom)
	}
	return nil
}

// Result of a completed retrieval
type Result struct {
	Mosaic   *Mosaic
	Zoom     int
	Attempts int // assembly attempts, 1 when the estimate held

	Estimate *Estimate
}

// Retriever drives one retrieval: estimate once, then assemble and step the
// zoom down one level per incomplete grid. It owns the zoom level.
type Retriever struct {
	stitcher *Stitcher
	req      Request
	log      logrus.FieldLogger

	state    State
	zoom     int
	grid     tile.Grid
	attempts int
	estimate *Estimate
	mosaic   *Mosaic
	err      error
}

// NewRetriever prepares a retrieval for req
func (s *Stitcher) NewRetriever(req Request) (*Retriever, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	return &Retriever{
		stitcher: s,
		req:      req,
		log:      s.log.WithFields(logrus.Fields{"a": req.A.String(), "b": req.B.String()}),
		state:    Estimating,
	}, nil
}

// Retrieve runs a retrieval to completion
func (s *Stitcher) Retrieve(ctx context.Context, req Request) (*Result, error) {
	r, err := s.NewRetriever(req)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// State is the retriever's current state
func (r *Retriever) State() State {
	return r.state
}

// Zoom is the zoom level currently (or last) attempted
func (r *Retriever) Zoom() int {
	return r.zoom
}

// Run steps the state machine until it reaches Done or Failed
func (r *Retriever) Run(ctx context.Context) (*Result, error) {
	for {
		switch r.state {
		case Estimating:
			r.runEstimate(ctx)
		case Assembling:
			r.runAssembly(ctx)
		case Done:
			return &Result{
				Mosaic:   r.mosaic,
				Zoom:     r.zoom,
				Attempts: r.attempts,
				Estimate: r.estimate,
			}, nil
		case Failed:
			return nil, r.err
		}
	}
}

func (r *Retriever) runEstimate(ctx context.Context) {
	est, err := r.stitcher.Estimate(ctx, r.req.A, r.req.B, r.req.MaxZoom, r.req.MinZoom)
	if err != nil {
		r.fail(err)
		return
	}

	r.estimate = est
	r.zoom = est.Zoom
	r.grid = est.Grid
	r.state = Assembling
}

func (r *Retriever) runAssembly(ctx context.Context) {
	r.attempts++
	m, err := r.stitcher.Assemble(ctx, r.grid)
	switch {
	case err == nil:
		r.mosaic = m
		r.state = Done
		r.log.WithFields(logrus.Fields{"zoom": r.zoom, "attempts": r.attempts}).Info("mosaic complete")
	case errors.Is(err, ErrNeedsLowerZoom), errors.Is(err, ErrMosaicTooLarge):
		r.lowerZoom(err)
	default:
		r.fail(&StageError{Stage: StageAssembly, Zoom: r.zoom, Attempts: r.attempts, Err: err})
	}
}

// lowerZoom recomputes the grid one level down from the corner points alone
func (r *Retriever) lowerZoom(cause error) {
	if r.zoom-1 < r.req.MinZoom {
		r.fail(&StageError{
			Stage:    StageAssembly,
			Zoom:     r.zoom,
			Attempts: r.attempts,
			Err:      fmt.Errorf("%w: %w", ErrZoomExhausted, cause),
		})
		return
	}

	r.zoom--
	r.grid = tile.GridFor(r.req.A, r.req.B, r.zoom)
	r.log.WithFields(logrus.Fields{"zoom": r.zoom, "tiles": r.grid.Len()}).Infof("retrying one level down: %v", cause)
}

func (r *Retriever) fail(err error) {
	r.err = err
	r.state = Failed
	zoom := r.zoom
	var se *StageError
	if errors.As(err, &se) {
		zoom = se.Zoom
	}
	r.log.WithField("zoom", zoom).Errorf("retrieval failed: %v", err)
}
