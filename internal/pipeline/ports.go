package pipeline

import (
	"context"

	"github.com/mohammed-shakir/poi-cache/internal/core/model"
	"github.com/mohammed-shakir/poi-cache/internal/geojson"
	"github.com/mohammed-shakir/poi-cache/internal/places"
)

type KeyBuilder interface {
	Combined(req model.Request) (string, error)
	Sub(req model.Request, sq model.SubQuery) (string, error)
}

// Store is the dataset cache. Get reports a miss as (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) (*geojson.Dataset, bool, error)
	GetMany(ctx context.Context, keys []string) (map[string]*geojson.Dataset, error)
	Put(ctx context.Context, key string, d *geojson.Dataset) error
}

type Decomposer interface {
	Decompose(expr string) ([]model.SubQuery, error)
}

type Fetcher interface {
	SearchNearby(ctx context.Context, req model.Request, sq model.SubQuery) ([]places.Place, error)
}

type Normalizer interface {
	Normalize(raw []places.Place, radius float64) *geojson.Dataset
}
