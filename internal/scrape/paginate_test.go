package scrape

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("unexpected fetch: %s", url)
	}
	return []byte(body), nil
}

func itemHTML(names ...string) string {
	var page string
	for _, n := range names {
		page += fmt.Sprintf(`
			<div class="item">
				<h2 class="title">%s</h2>
				<a class="detail" href="/products/x">view</a>
				<span class="price">$10.00</span>
			</div>`, n)
	}
	return page
}

func TestDriverRunStopsWhenPageAddsNothing(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/whiskey?page=1": itemHTML("Bottle A", "Bottle B"),
		"https://shop.example.com/whiskey?page=2": itemHTML("Bottle C", "Bottle A"),
		"https://shop.example.com/whiskey?page=3": itemHTML("Bottle A", "Bottle C"),
	}}

	products, err := NewDriver(f, DedupFirstWins).Run(context.Background(), testSite)
	require.NoError(t, err)

	// Two pages contributed records, plus the terminating all-duplicates
	// fetch.
	assert.Len(t, f.calls, 3)

	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Normalized)
	}
	assert.Equal(t, []string{"Bottle A", "Bottle B", "Bottle C"}, names)
}

func TestDriverRunDedupSpansCategories(t *testing.T) {
	site := testSite
	site.Categories = []string{
		"https://shop.example.com/bourbon?page=%d",
		"https://shop.example.com/scotch?page=%d",
	}

	f := &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/bourbon?page=1": itemHTML("Shared Bottle", "Bourbon Only"),
		"https://shop.example.com/bourbon?page=2": itemHTML("Shared Bottle"),
		"https://shop.example.com/scotch?page=1":  itemHTML("Shared Bottle", "Scotch Only"),
		"https://shop.example.com/scotch?page=2":  itemHTML("Shared Bottle"),
	}}

	products, err := NewDriver(f, DedupFirstWins).Run(context.Background(), site)
	require.NoError(t, err)
	require.Len(t, products, 3)

	counts := map[string]int{}
	for _, p := range products {
		counts[p.Normalized]++
	}
	assert.Equal(t, 1, counts["Shared Bottle"])
}

func TestDriverRunDedupOffKeepsRepeats(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/whiskey?page=1": itemHTML("Bottle A", "Bottle A"),
		"https://shop.example.com/whiskey?page=2": "",
	}}

	products, err := NewDriver(f, DedupOff).Run(context.Background(), testSite)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestDriverRunPropagatesFetchError(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{}}

	_, err := NewDriver(f, DedupFirstWins).Run(context.Background(), testSite)
	require.Error(t, err)
}

func TestNewDriverInvalidPolicyFallsBack(t *testing.T) {
	d := NewDriver(&fakeFetcher{}, DedupPolicy("bogus"))
	assert.Equal(t, DedupFirstWins, d.policy)
}
