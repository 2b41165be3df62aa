package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Defines values for HealthResponseStatus.
const (
	Healthy HealthResponseStatus = "healthy"
)

// Defines values for MosaicFormat.
const (
	Jpeg MosaicFormat = "jpeg"
	Png  MosaicFormat = "png"
)

// Defines values for error codes.
const (
	VALIDATIONERROR   = "VALIDATION_ERROR"
	ZOOMEXHAUSTED     = "ZOOM_EXHAUSTED"
	MOSAICTOOLARGE    = "MOSAIC_TOO_LARGE"
	TILESERVERERROR   = "TILE_SERVER_ERROR"
	TILESERVERTIMEOUT = "TILE_SERVER_TIMEOUT"
	INTERNALERROR     = "INTERNAL_ERROR"
)

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// MosaicFormat defines model for GetMosaicParams.Format.
type MosaicFormat string

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Uptime    *int                 `json:"uptime,omitempty"`
	Version   *string              `json:"version,omitempty"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error     string  `json:"error"`
	Message   string  `json:"message"`
	RequestId *string `json:"request_id,omitempty"`

	// Stage is the retrieval stage that failed, estimation or assembly
	Stage *string `json:"stage,omitempty"`

	// Zoom is the last zoom level attempted
	Zoom     *int `json:"zoom,omitempty"`
	Attempts *int `json:"attempts,omitempty"`
}

// ValidationError defines model for a single rejected parameter.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse defines model for ValidationErrorResponse.
type ValidationErrorResponse struct {
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	RequestId        *string           `json:"request_id,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors"`
}

// GetMosaicParams defines parameters for GetMosaic.
type GetMosaicParams struct {
	Lat1 float64 `form:"lat1" json:"lat1"`
	Lon1 float64 `form:"lon1" json:"lon1"`
	Lat2 float64 `form:"lat2" json:"lat2"`
	Lon2 float64 `form:"lon2" json:"lon2"`

	MaxZoom *int          `form:"max_zoom,omitempty" json:"max_zoom,omitempty"`
	MinZoom *int          `form:"min_zoom,omitempty" json:"min_zoom,omitempty"`
	Format  *MosaicFormat `form:"format,omitempty" json:"format,omitempty"`

	// Height resizes the mosaic to a preview of this many pixels
	Height *int `form:"height,omitempty" json:"height,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Health check
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// Retrieve the deepest complete mosaic for two corner points
	// (GET /mosaic)
	GetMosaic(w http.ResponseWriter, r *http.Request, params GetMosaicParams)
}

// ServerInterfaceWrapper converts requests into handler calls
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	siw.Handler.GetHealth(w, r)
}

// GetMosaic operation middleware
func (siw *ServerInterfaceWrapper) GetMosaic(w http.ResponseWriter, r *http.Request) {
	var params GetMosaicParams
	query := r.URL.Query()

	required := []struct {
		name string
		dest *float64
	}{
		{"lat1", &params.Lat1},
		{"lon1", &params.Lon1},
		{"lat2", &params.Lat2},
		{"lon2", &params.Lon2},
	}
	for _, p := range required {
		if err := runtime.BindQueryParameter("form", true, true, p.name, query, p.dest); err != nil {
			siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: p.name, Err: err})
			return
		}
	}

	if err := runtime.BindQueryParameter("form", true, false, "max_zoom", query, &params.MaxZoom); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "max_zoom", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "min_zoom", query, &params.MinZoom); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "min_zoom", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "format", query, &params.Format); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "format", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "height", query, &params.Height); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "height", Err: err})
		return
	}

	siw.Handler.GetMosaic(w, r, params)
}

// InvalidParamFormatError is returned when a query parameter cannot be bound
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ChiServerOptions configures HandlerWithOptions
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions creates http.Handler with routing matching the API
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:          si,
		ErrorHandlerFunc: options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.GetHealth)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/mosaic", wrapper.GetMosaic)
	})

	return r
}
