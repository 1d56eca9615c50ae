// Package places talks to the remote nearby-search API and converts its raw
// records into canonical datasets.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mohammed-shakir/poi-cache/internal/core/model"
	"github.com/mohammed-shakir/poi-cache/internal/core/observability"
)

const (
	DefaultNearbyURL = "https://places.googleapis.com/v1/places:searchNearby"
	DefaultFieldMask = "places.id,places.displayName,places.formattedAddress,places.location," +
		"places.types,places.primaryType,places.rating,places.userRatingCount,places.priceLevel," +
		"places.businessStatus,places.websiteUri,places.nationalPhoneNumber"

	headerAPIKey    = "X-Goog-Api-Key"
	headerFieldMask = "X-Goog-FieldMask"
)

var ErrUpstreamStatus = errors.New("places: upstream returned non-success status")

type Client struct {
	logger    *slog.Logger
	http      *http.Client
	url       string
	apiKey    string
	fieldMask string
}

type Config struct {
	URL       string
	APIKey    string
	FieldMask string
}

func NewClient(logger *slog.Logger, hc *http.Client, cfg Config) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	if cfg.URL == "" {
		cfg.URL = DefaultNearbyURL
	}
	if cfg.FieldMask == "" {
		cfg.FieldMask = DefaultFieldMask
	}
	return &Client{logger: logger, http: hc, url: cfg.URL, apiKey: cfg.APIKey, fieldMask: cfg.FieldMask}
}

// SearchNearby runs one type-filtered search bounded by the request's circle.
func (c *Client) SearchNearby(ctx context.Context, req model.Request, sq model.SubQuery) ([]Place, error) {
	body, err := json.Marshal(nearbyRequest{
		IncludedTypes: sq.Included,
		ExcludedTypes: sq.Excluded,
		LocationRestriction: locationRestriction{Circle: circle{
			Center: LatLng{Latitude: req.Lat, Longitude: req.Lng},
			Radius: req.Radius,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal nearby request: %w", err)
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set(headerAPIKey, c.apiKey)
	hr.Header.Set(headerFieldMask, c.fieldMask)

	c.logger.DebugContext(ctx, "nearby search",
		"included", sq.Included, "excluded", sq.Excluded)

	start := time.Now()
	resp, err := c.http.Do(hr)
	observability.ObserveUpstreamLatency("places_nearby", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", "err", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status=%d body=%q", ErrUpstreamStatus, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out nearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode nearby response: %w", err)
	}
	c.logger.DebugContext(ctx, "nearby search done", "results", len(out.Places))
	return out.Places, nil
}
