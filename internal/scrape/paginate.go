package scrape

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DedupPolicy controls how repeated normalized names are handled within a
// single run. The reference behavior keeps the first occurrence and drops
// the rest; whether a genuinely repeated name on a later page should be
// kept is an open product question, so the policy is configurable.
type DedupPolicy string

const (
	// DedupFirstWins keeps the first record for each normalized name.
	DedupFirstWins DedupPolicy = "first-wins"
	// DedupOff keeps every record, including same-name repeats.
	DedupOff DedupPolicy = "off"
)

// Valid reports whether p is a known policy.
func (p DedupPolicy) Valid() bool {
	return p == DedupFirstWins || p == DedupOff
}

// Fetcher retrieves the raw HTML of a listing page.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Driver walks a site's category listings page by page, accumulating
// deduplicated products. Pagination stops when a page contributes zero new
// records.
type Driver struct {
	fetcher Fetcher
	policy  DedupPolicy
	log     *zap.Logger
}

// NewDriver creates a pagination driver. An invalid policy falls back to
// first-wins, the reference behavior.
func NewDriver(fetcher Fetcher, policy DedupPolicy) *Driver {
	if !policy.Valid() {
		policy = DedupFirstWins
	}
	return &Driver{fetcher: fetcher, policy: policy, log: zap.L()}
}

type driverState int

const (
	stateFetching driverState = iota
	stateDone
)

// Run scrapes every category of the site. The dedup accumulator is local to
// this call and shared across all categories, so a bottle listed in two
// categories is submitted once.
func (d *Driver) Run(ctx context.Context, site Site) ([]Product, error) {
	seen := make(map[string]struct{})
	var products []Product

	for _, tmpl := range site.Categories {
		var err error
		products, err = d.crawlCategory(ctx, site, tmpl, seen, products)
		if err != nil {
			return nil, err
		}
	}

	d.log.Info("scrape run complete",
		zap.String("site", site.Key),
		zap.Int("products", len(products)),
	)
	return products, nil
}

func (d *Driver) crawlCategory(ctx context.Context, site Site, tmpl string, seen map[string]struct{}, acc []Product) ([]Product, error) {
	state := stateFetching
	page := 1

	for state == stateFetching {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL := fmt.Sprintf(tmpl, page)
		body, err := d.fetcher.Get(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		items, err := ParsePage(pageURL, body, site)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, p := range items {
			if d.policy == DedupFirstWins {
				if _, dup := seen[p.Normalized]; dup {
					continue
				}
				seen[p.Normalized] = struct{}{}
			}
			acc = append(acc, p)
			added++
		}

		d.log.Debug("scraped page",
			zap.String("site", site.Key),
			zap.Int("page", page),
			zap.Int("new", added),
		)

		if added == 0 {
			state = stateDone
		} else {
			page++
		}
	}

	return acc, nil
}
