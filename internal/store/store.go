// Package store persists stores, current prices and price history.
package store

import (
	"context"
	"time"

	"github.com/oakcellar/pricewatch-cli/internal/model"
)

// PriceChangeFilter specifies criteria for listing recent price changes.
type PriceChangeFilter struct {
	// Query is a case-insensitive substring match on the price name.
	Query  string
	Limit  int
	Offset int
}

// PriceFilter specifies criteria for listing a store's current prices.
type PriceFilter struct {
	Limit  int
	Offset int
}

// Store defines the persistence interface for the price pipeline.
type Store interface {
	// Stores
	ListStores(ctx context.Context) ([]model.Store, error)
	GetStoreByKey(ctx context.Context, key string) (*model.Store, error)
	MarkStoreRun(ctx context.Context, storeID int64, at time.Time) error

	// Prices. UpsertStorePrice runs as one transaction per record: the
	// current-price upsert and the dated history insert land together or
	// not at all.
	UpsertStorePrice(ctx context.Context, storeID int64, sub model.PriceSubmission) error
	ListStorePrices(ctx context.Context, storeID int64, filter PriceFilter) ([]model.StorePrice, error)
	ListPriceChanges(ctx context.Context, filter PriceChangeFilter) ([]model.PriceChange, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
