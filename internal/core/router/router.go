// Package router holds the dataset fetch HTTP handler.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mohammed-shakir/poi-cache/internal/core/model"
	"github.com/mohammed-shakir/poi-cache/internal/core/observability"
	"github.com/mohammed-shakir/poi-cache/internal/geojson"
	"github.com/mohammed-shakir/poi-cache/internal/pipeline"
	"github.com/mohammed-shakir/poi-cache/internal/query"
)

const (
	RouteFetch   = "/datasets/fetch"
	maxBodyBytes = 1 << 20

	headerCache    = "X-Cache"
	headerComplete = "X-Result-Complete"
)

// Resolver is satisfied by *pipeline.Orchestrator.
type Resolver interface {
	ResolveWithReport(ctx context.Context, req model.Request) (*geojson.Dataset, pipeline.Report, error)
}

type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// FetchDataset decodes a request body, resolves it and writes the
// FeatureCollection.
func FetchDataset(logger *slog.Logger, res Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, RouteFetch, sw.code, time.Since(start).Seconds())
		}()

		req, err := DecodeRequest(r)
		if err != nil {
			writeError(sw, http.StatusBadRequest, err.Error(), "")
			return
		}

		d, rep, err := res.ResolveWithReport(r.Context(), req)
		if err != nil {
			status, stage := classify(err)
			if status >= http.StatusInternalServerError {
				logger.ErrorContext(r.Context(), "resolve failed", "err", err, "stage", stage)
			}
			writeError(sw, status, err.Error(), stage)
			return
		}

		b, err := geojson.Encode(d)
		if err != nil {
			logger.ErrorContext(r.Context(), "encode dataset", "err", err)
			writeError(sw, http.StatusInternalServerError, "encode failed", "")
			return
		}

		if rep.CombinedHit {
			sw.Header().Set(headerCache, "HIT")
		} else {
			sw.Header().Set(headerCache, "MISS")
		}
		sw.Header().Set(headerComplete, fmt.Sprint(rep.FetchErr == nil))
		sw.Header().Set("Content-Type", "application/geo+json")
		sw.WriteHeader(http.StatusOK)
		_, _ = sw.Write(b)
	}
}

// DecodeRequest reads and validates a JSON fetch request body.
func DecodeRequest(r *http.Request) (model.Request, error) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return model.Request{}, fmt.Errorf("unsupported content type %q", ct)
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	var body struct {
		Lat          *float64          `json:"lat"`
		Lng          *float64          `json:"lng"`
		Radius       float64           `json:"radius"`
		BooleanQuery string            `json:"boolean_query"`
		Filters      map[string]string `json:"filters"`
	}
	if err := dec.Decode(&body); err != nil {
		return model.Request{}, fmt.Errorf("invalid body: %w", err)
	}
	if body.Lat == nil || body.Lng == nil {
		return model.Request{}, errors.New("lat and lng are required")
	}
	req := model.Request{
		Lat:          *body.Lat,
		Lng:          *body.Lng,
		Radius:       body.Radius,
		BooleanQuery: strings.TrimSpace(body.BooleanQuery),
		Filters:      body.Filters,
	}
	if err := req.Validate(); err != nil {
		return model.Request{}, err
	}
	return req, nil
}

func classify(err error) (int, string) {
	var pe *pipeline.PipelineError
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest, ""
	case errors.As(err, &pe) && pe.Stage == pipeline.StageDecompose && isQueryError(err):
		return http.StatusBadRequest, string(pe.Stage)
	case errors.As(err, &pe):
		return http.StatusBadGateway, string(pe.Stage)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ""
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads this
		return 499, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

// isQueryError reports a decomposition fault caused by the expression itself.
func isQueryError(err error) bool {
	return errors.Is(err, query.ErrSyntax) ||
		errors.Is(err, query.ErrUnknownCategory) ||
		errors.Is(err, query.ErrNoPositiveTerm) ||
		errors.Is(err, query.ErrTooComplex)
}

func writeError(w http.ResponseWriter, status int, msg, stage string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Stage: stage})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
