// Package model defines the shared domain types for the price pipeline.
package model

import "time"

// Store is a retail source whose product pages are scraped for price data.
type Store struct {
	ID        int64      `json:"id"`
	Key       string     `json:"key"`
	Name      string     `json:"name"`
	Country   string     `json:"country"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
}

// PriceSubmission is a single normalized price record submitted for a store.
type PriceSubmission struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	URL   string `json:"url"`
}

// StorePrice is the current price of a bottle at a store, unique on
// (store_id, name). Upserts overwrite price, url and updated_at.
type StorePrice struct {
	ID        int64     `json:"id"`
	StoreID   int64     `json:"storeId"`
	BottleID  *int64    `json:"bottleId,omitempty"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Currency  string    `json:"currency"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StorePriceHistory is an append-only daily snapshot of a store price.
// At most one row exists per (price_id, date).
type StorePriceHistory struct {
	ID      int64     `json:"id"`
	PriceID int64     `json:"priceId"`
	Price   int64     `json:"price"`
	Date    time.Time `json:"date"`
}

// Bottle is the minimal catalog entry submitted prices are matched against.
type Bottle struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
}

// PriceChange pairs a recently updated store price with the most recent
// divergent history snapshot from the past week.
type PriceChange struct {
	StorePrice
	Store    Store             `json:"store"`
	Bottle   Bottle            `json:"bottle"`
	Previous StorePriceHistory `json:"previous"`
}

// Delta returns the absolute difference between the current price and the
// previous snapshot, in minor units.
func (c PriceChange) Delta() int64 {
	d := c.Price - c.Previous.Price
	if d < 0 {
		d = -d
	}
	return d
}
