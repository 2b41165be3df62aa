package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kiesman99/mosaic/internal/provider"
	"github.com/kiesman99/mosaic/internal/stitch"
	"github.com/kiesman99/mosaic/internal/stitcher"
	"github.com/kiesman99/mosaic/pkg/tile"
)

// Server implements ServerInterface. One provider is shared by all
// requests so its HTTP connections are pooled; it must be safe for
// concurrent use.
type Server struct {
	startTime time.Time
	version   string
	provider  provider.Provider
	log       logrus.FieldLogger
}

// NewServer creates a new server instance
func NewServer(version string, p provider.Provider, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		startTime: time.Now(),
		version:   version,
		provider:  p,
		log:       log,
	}
}

// NewRouter mounts the API under /api/v1 with the usual middleware
func NewRouter(s *Server, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(timeout))

	// CORS middleware for API access
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Mosaic-Zoom, X-Mosaic-Attempts")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		HandlerWithOptions(s, ChiServerOptions{
			BaseRouter: r,
			ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
				requestID := uuid.NewString()
				field := "query"
				var pe *InvalidParamFormatError
				if errors.As(err, &pe) {
					field = pe.ParamName
				}
				s.writeValidationErrorResponse(w, field, err.Error(), &requestID)
			},
		})
	})

	// Legacy health endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/v1/health", http.StatusMovedPermanently)
	})

	return r
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := HealthResponse{
		Status:    Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.WithError(err).Error("failed to encode health response")
	}
}

// GetMosaic retrieves the deepest complete mosaic for the two corners
func (s *Server) GetMosaic(w http.ResponseWriter, r *http.Request, params GetMosaicParams) {
	requestID := uuid.NewString()
	log := s.log.WithField("request_id", requestID)

	req, field, err := toRequest(params)
	if err != nil {
		s.writeValidationErrorResponse(w, field, err.Error(), &requestID)
		return
	}

	format := Jpeg
	if params.Format != nil {
		format = *params.Format
	}
	filename := "mosaic." + string(format)
	if format != Jpeg && format != Png {
		s.writeValidationErrorResponse(w, "format", fmt.Sprintf("unsupported format %q", format), &requestID)
		return
	}
	if params.Height != nil && *params.Height <= 0 {
		s.writeValidationErrorResponse(w, "height", "height must be positive", &requestID)
		return
	}

	res, err := stitcher.New(s.provider, stitcher.Options{Logger: log}).Retrieve(r.Context(), req)
	if err != nil {
		s.handleRetrievalError(w, log, err, &requestID)
		return
	}

	var img image.Image = res.Mosaic.Image
	if params.Height != nil {
		img = stitch.Resize(img, *params.Height)
	}
	var buf bytes.Buffer
	if err := stitch.Encode(&buf, img, filename); err != nil {
		log.WithError(err).Error("failed to encode mosaic")
		s.writeErrorResponse(w, http.StatusInternalServerError, ErrorResponse{
			Error:     INTERNALERROR,
			Message:   "Internal server error",
			RequestId: &requestID,
		})
		return
	}

	w.Header().Set("Content-Type", "image/"+string(format))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Mosaic-Zoom", strconv.Itoa(res.Zoom))
	w.Header().Set("X-Mosaic-Attempts", strconv.Itoa(res.Attempts))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

// toRequest validates params, naming the offending field on error
func toRequest(params GetMosaicParams) (stitcher.Request, string, error) {
	req := stitcher.Request{
		A:       tile.GeoPoint{Lat: params.Lat1, Lon: params.Lon1},
		B:       tile.GeoPoint{Lat: params.Lat2, Lon: params.Lon2},
		MaxZoom: tile.MaxZoom,
		MinZoom: 1,
	}
	if err := req.A.Validate(); err != nil {
		return req, "lat1,lon1", err
	}
	if err := req.B.Validate(); err != nil {
		return req, "lat2,lon2", err
	}

	if params.MaxZoom != nil {
		req.MaxZoom = *params.MaxZoom
	}
	if params.MinZoom != nil {
		req.MinZoom = *params.MinZoom
	}
	if req.MaxZoom < 1 || req.MaxZoom > tile.MaxZoom {
		return req, "max_zoom", fmt.Errorf("max_zoom must be between 1 and %d", tile.MaxZoom)
	}
	if req.MinZoom < 1 || req.MinZoom > req.MaxZoom {
		return req, "min_zoom", fmt.Errorf("min_zoom must be between 1 and max_zoom")
	}
	return req, "", nil
}

// handleRetrievalError maps a failed retrieval onto a status code
func (s *Server) handleRetrievalError(w http.ResponseWriter, log logrus.FieldLogger, err error, requestID *string) {
	response := ErrorResponse{RequestId: requestID}

	var se *stitcher.StageError
	if errors.As(err, &se) {
		stage := string(se.Stage)
		response.Stage = &stage
		response.Zoom = &se.Zoom
		response.Attempts = &se.Attempts
	}

	var status int
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		response.Error = TILESERVERTIMEOUT
		response.Message = "Tile server requests timed out"
	case errors.Is(err, stitcher.ErrMosaicTooLarge):
		status = http.StatusUnprocessableEntity
		response.Error = MOSAICTOOLARGE
		response.Message = "The requested area is too large at every allowed zoom level"
	case errors.Is(err, stitcher.ErrZoomExhausted):
		status = http.StatusUnprocessableEntity
		response.Error = ZOOMEXHAUSTED
		response.Message = "No zoom level has complete coverage for the requested area"
	case errors.Is(err, provider.ErrProvider):
		status = http.StatusBadGateway
		response.Error = TILESERVERERROR
		response.Message = err.Error()
	default:
		status = http.StatusInternalServerError
		response.Error = INTERNALERROR
		response.Message = "Internal server error"
	}

	log.WithError(err).WithField("status", status).Warn("retrieval failed")
	s.writeErrorResponse(w, status, response)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	if response.RequestId != nil {
		w.Header().Set("X-Request-ID", *response.RequestId)
	}
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.WithError(err).Error("failed to encode error response")
	}
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, field, message string, requestID *string) {
	response := ValidationErrorResponse{
		Error:     VALIDATIONERROR,
		Message:   message,
		RequestId: requestID,
		ValidationErrors: []ValidationError{
			{Field: field, Message: message},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", *requestID)
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.WithError(err).Error("failed to encode validation response")
	}
}
