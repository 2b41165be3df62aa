package stitcher

import (
	"errors"
	"fmt"
)

var (
	// ErrNeedsLowerZoom aborts an assembly because a tile is missing
	ErrNeedsLowerZoom = errors.New("grid incomplete, needs lower zoom")

	// ErrZoomExhausted means no zoom level produced a complete mosaic
	ErrZoomExhausted = errors.New("no zoom level has complete coverage")

	// ErrMosaicTooLarge rejects grids that would exceed the pixel budget
	ErrMosaicTooLarge = errors.New("requested mosaic too large")
)

// Stage names the part of a retrieval that failed
type Stage string

const (
	StageEstimation Stage = "estimation"
	StageAssembly   Stage = "assembly"
)

// StageError reports which stage failed and the last zoom it attempted
type StageError struct {
	Stage    Stage
	Zoom     int
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed at zoom %d after %d attempts: %v", e.Stage, e.Zoom, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
