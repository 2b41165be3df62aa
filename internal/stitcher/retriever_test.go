package stitcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kiesman99/mosaic/internal/provider"
	"github.com/kiesman99/mosaic/pkg/tile"
)

func TestRetrieve_EstimateHolds(t *testing.T) {
	p := &fakeProvider{available: upTo(19)}
	s := newTestStitcher(p)

	res, err := s.Retrieve(context.Background(), Request{A: chicagoA, B: chicagoB, MaxZoom: 23})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if res.Zoom != 19 || res.Mosaic.Zoom() != 19 {
		t.Errorf("Expected zoom 19, got %d (mosaic %d)", res.Zoom, res.Mosaic.Zoom())
	}
	if res.Attempts != 1 {
		t.Errorf("Expected a single assembly, got %d", res.Attempts)
	}
	if res.Estimate == nil || res.Estimate.Zoom != 19 {
		t.Errorf("Expected estimate at zoom 19, got %+v", res.Estimate)
	}

	grid := tile.GridFor(chicagoA, chicagoB, 19)
	w, h := grid.PixelSize()
	if b := res.Mosaic.Image.Bounds(); b.Dx() != w || b.Dy() != h {
		t.Errorf("Expected %dx%d mosaic, got %v", w, h, b)
	}
}

// interiorTile returns a tile of the zoom level's grid that is not under
// either input point
func interiorTile(t *testing.T, zoom int) tile.Coord {
	t.Helper()
	grid := tile.GridFor(chicagoA, chicagoB, zoom)
	cornerA, cornerB := tile.ToCoord(chicagoA, zoom), tile.ToCoord(chicagoB, zoom)
	for _, c := range grid.Coords() {
		if c != cornerA && c != cornerB {
			return c
		}
	}
	t.Fatalf("grid %v has no tile besides its corners", grid)
	return tile.Coord{}
}

func TestRetrieve_InteriorTileMissing(t *testing.T) {
	grid19 := tile.GridFor(chicagoA, chicagoB, 19)
	missing := interiorTile(t, 19)

	p := &fakeProvider{available: func(c tile.Coord) bool {
		return c.Zoom <= 19 && c != missing
	}}
	s := newTestStitcher(p)

	r, err := s.NewRetriever(Request{A: chicagoA, B: chicagoB})
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}
	if r.State() != Estimating {
		t.Errorf("Expected initial state estimating, got %v", r.State())
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if r.State() != Done {
		t.Errorf("Expected state done, got %v", r.State())
	}

	if res.Zoom != 18 || res.Attempts != 2 {
		t.Errorf("Expected zoom 18 after 2 attempts, got zoom %d after %d", res.Zoom, res.Attempts)
	}
	if res.Estimate.Zoom != 19 {
		t.Errorf("Expected the estimate to stay at 19, got %d", res.Estimate.Zoom)
	}

	grid18 := tile.GridFor(chicagoA, chicagoB, 18)
	if res.Mosaic.Grid != grid18 {
		t.Errorf("Expected grid %v, got %v", grid18, res.Mosaic.Grid)
	}
	if grid18.Len() > grid19.Len() {
		t.Errorf("Grid grew from %d to %d tiles", grid19.Len(), grid18.Len())
	}

	// zoom 18 only sees the assembly requests, no second corner estimation
	calls18 := p.callsAt(18)
	if len(calls18) != grid18.Len() {
		t.Errorf("Expected %d requests at zoom 18, got %d", grid18.Len(), len(calls18))
	}
	for i, c := range grid18.Coords() {
		if calls18[i] != c {
			t.Fatalf("zoom 18 request %d was %v, want %v", i, calls18[i], c)
		}
	}
}

func TestRetrieve_NothingAvailable(t *testing.T) {
	p := &fakeProvider{available: func(tile.Coord) bool { return false }}
	s := newTestStitcher(p)

	res, err := s.Retrieve(context.Background(), Request{A: chicagoA, B: chicagoB, MaxZoom: 23})
	if res != nil {
		t.Error("Expected no result")
	}
	if !errors.Is(err, ErrZoomExhausted) {
		t.Fatalf("Expected ErrZoomExhausted, got %v", err)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Attempts != 23 || stageErr.Stage != StageEstimation {
		t.Errorf("Expected estimation failure after 23 attempts, got %v", err)
	}

	// one corner request per zoom level, none below 1
	if len(p.calls) != 23 {
		t.Errorf("Expected 23 requests, got %d", len(p.calls))
	}
	for _, c := range p.calls {
		if c.Zoom < 1 {
			t.Errorf("Requested tile below zoom 1: %v", c)
		}
	}
}

func TestRetrieve_FailureLogsStageZoom(t *testing.T) {
	l, hook := test.NewNullLogger()
	s := New(&fakeProvider{available: func(tile.Coord) bool { return false }}, Options{Logger: l})

	if _, err := s.Retrieve(context.Background(), Request{A: chicagoA, B: chicagoB, MaxZoom: 12, MinZoom: 4}); err == nil {
		t.Fatal("Expected error")
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("Expected an error log entry, got %v", entry)
	}
	if zoom, _ := entry.Data["zoom"].(int); zoom != 4 {
		t.Errorf("Expected failure logged at zoom 4, got %v", entry.Data["zoom"])
	}
}

func TestRetrieve_AssemblyExhausted(t *testing.T) {
	const top = 19
	interiorTile(t, top)
	cornerA, cornerB := tile.ToCoord(chicagoA, top), tile.ToCoord(chicagoB, top)
	p := &fakeProvider{available: func(c tile.Coord) bool {
		return c == cornerA || c == cornerB
	}}
	s := newTestStitcher(p)

	r, err := s.NewRetriever(Request{A: chicagoA, B: chicagoB, MaxZoom: top})
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}

	_, err = r.Run(context.Background())
	if !errors.Is(err, ErrZoomExhausted) {
		t.Fatalf("Expected ErrZoomExhausted, got %v", err)
	}
	if r.State() != Failed {
		t.Errorf("Expected state failed, got %v", r.State())
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Expected StageError, got %T", err)
	}
	if stageErr.Stage != StageAssembly || stageErr.Zoom != 1 || stageErr.Attempts != top {
		t.Errorf("Unexpected stage error: %+v", stageErr)
	}

	for _, c := range p.calls {
		if c.Zoom < 1 {
			t.Errorf("Requested tile below zoom 1: %v", c)
		}
	}
}

func TestRetrieve_TooLargeAtEveryZoom(t *testing.T) {
	p := &fakeProvider{}
	s := newTestStitcher(p)

	a := tile.GeoPoint{Lat: 60, Lon: -120}
	b := tile.GeoPoint{Lat: -40, Lon: 100}
	_, err := s.Retrieve(context.Background(), Request{A: a, B: b, MaxZoom: 9, MinZoom: 7})
	if !errors.Is(err, ErrMosaicTooLarge) {
		t.Fatalf("Expected ErrMosaicTooLarge, got %v", err)
	}
	if !errors.Is(err, ErrZoomExhausted) {
		t.Errorf("Expected ErrZoomExhausted, got %v", err)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAssembly || stageErr.Zoom != 7 || stageErr.Attempts != 3 {
		t.Errorf("Expected assembly failure at zoom 7 after 3 attempts, got %v", err)
	}

	// only the two corner tiles at zoom 9, oversized grids are never fetched
	if len(p.calls) != 2 || len(p.callsAt(9)) != 2 {
		t.Errorf("Expected 2 corner requests at zoom 9, got %v", p.calls)
	}
}

func TestRetrieve_MinZoom(t *testing.T) {
	p := &fakeProvider{available: upTo(5)}
	s := newTestStitcher(p)

	_, err := s.Retrieve(context.Background(), Request{A: chicagoA, B: chicagoB, MaxZoom: 12, MinZoom: 8})
	if !errors.Is(err, ErrZoomExhausted) {
		t.Fatalf("Expected ErrZoomExhausted, got %v", err)
	}
	for _, c := range p.calls {
		if c.Zoom < 8 {
			t.Errorf("Requested tile below the minimum zoom: %v", c)
		}
	}
}

func TestRetrieve_FatalProviderError(t *testing.T) {
	broken := interiorTile(t, 19)
	p := &fakeProvider{
		available: upTo(19),
		err: func(c tile.Coord) error {
			if c == broken {
				return fmt.Errorf("%w: broken pipe", provider.ErrProvider)
			}
			return nil
		},
	}
	s := newTestStitcher(p)

	_, err := s.Retrieve(context.Background(), Request{A: chicagoA, B: chicagoB, MaxZoom: 19})
	if !errors.Is(err, provider.ErrProvider) {
		t.Fatalf("Expected provider error to surface, got %v", err)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAssembly || stageErr.Zoom != 19 {
		t.Errorf("Expected assembly failure at zoom 19, got %v", err)
	}
	if len(p.callsAt(18)) != 0 {
		t.Error("Expected no retry at a lower zoom after a fatal error")
	}
}

func TestRetrieve_InvalidRequest(t *testing.T) {
	s := newTestStitcher(&fakeProvider{})

	testCases := []struct {
		name string
		req  Request
	}{
		{"nan point", Request{A: tile.GeoPoint{Lat: math.NaN()}, B: chicagoB}},
		{"zoom too deep", Request{A: chicagoA, B: chicagoB, MaxZoom: 24}},
		{"min above max", Request{A: chicagoA, B: chicagoB, MaxZoom: 10, MinZoom: 11}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Retrieve(context.Background(), tc.req); err == nil {
				t.Error("Expected error")
			}
		})
	}

	_, err := s.Retrieve(context.Background(), testCases[0].req)
	if !errors.Is(err, tile.ErrInvalidCoordinate) {
		t.Errorf("Expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestRetrieve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := provider.Func(func(ctx context.Context, key tile.QuadKey) (image.Image, error) {
		cancel()
		return nil, ctx.Err()
	})
	s := newTestStitcher(p)

	_, err := s.Retrieve(ctx, Request{A: chicagoA, B: chicagoB})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		Estimating: "estimating",
		Assembling: "assembling",
		Done:       "done",
		Failed:     "failed",
	} {
		if state.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(state), state.String(), want)
		}
	}
}
