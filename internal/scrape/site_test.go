package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSite = Site{
	Key:        "teststore",
	Name:       "Test Store",
	Categories: []string{"https://shop.example.com/whiskey?page=%d"},
	Selectors: Selectors{
		Container:  "div.item",
		Name:       "h2.title",
		DetailLink: "a.detail",
		PriceText:  "span.price",
	},
}

func TestParsePage(t *testing.T) {
	html := []byte(`
		<div class="item">
			<h2 class="title">EAGLE RARE 10 YEAR (750ml)</h2>
			<a class="detail" href="/products/eagle-rare">view</a>
			<span class="price">$42.50</span>
		</div>
		<div class="item">
			<h2 class="title">Weller Antique 107</h2>
			<a class="detail" href="https://shop.example.com/products/weller-107">view</a>
			<span class="price">$1,049.99</span>
		</div>`)

	products, err := ParsePage("https://shop.example.com/whiskey?page=1", html, testSite)
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "EAGLE RARE 10 YEAR (750ml)", products[0].Name)
	assert.Equal(t, "Eagle Rare 10 Year", products[0].Normalized)
	assert.Equal(t, int64(4250), products[0].Price)
	assert.Equal(t, "usd", products[0].Currency)
	assert.Equal(t, "https://shop.example.com/products/eagle-rare", products[0].URL)

	// Already-absolute links pass through untouched.
	assert.Equal(t, "https://shop.example.com/products/weller-107", products[1].URL)
	assert.Equal(t, int64(104999), products[1].Price)
}

func TestParsePageSkipsBadItems(t *testing.T) {
	html := []byte(`
		<div class="item">
			<a class="detail" href="/products/mystery">view</a>
			<span class="price">$10.00</span>
		</div>
		<div class="item">
			<h2 class="title">Priceless Bottle</h2>
			<a class="detail" href="/products/priceless">view</a>
			<span class="price">Call for price</span>
		</div>
		<div class="item">
			<h2 class="title">Good Bottle</h2>
			<a class="detail" href="/products/good">view</a>
			<span class="price">$25.00</span>
		</div>`)

	products, err := ParsePage("https://shop.example.com/whiskey?page=1", html, testSite)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Good Bottle", products[0].Normalized)
}

func TestParsePageMissingLinkFailsPage(t *testing.T) {
	html := []byte(`
		<div class="item">
			<h2 class="title">First Bottle</h2>
			<a class="detail" href="/products/first">view</a>
			<span class="price">$30.00</span>
		</div>
		<div class="item">
			<h2 class="title">Linkless Bottle</h2>
			<span class="price">$40.00</span>
		</div>`)

	_, err := ParsePage("https://shop.example.com/whiskey?page=1", html, testSite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Linkless Bottle")
}

func TestParsePageNameFromAttr(t *testing.T) {
	site := testSite
	site.Selectors.NameAttr = "title"

	html := []byte(`
		<div class="item">
			<h2 class="title" title="Attr Named Bottle">truncated disp...</h2>
			<a class="detail" href="/products/attr">view</a>
			<span class="price">$15.00</span>
		</div>`)

	products, err := ParsePage("https://shop.example.com/whiskey?page=1", html, site)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Attr Named Bottle", products[0].Name)
}

func TestSiteRegistry(t *testing.T) {
	assert.Equal(t, []string{"astorwines", "woodencork"}, SiteKeys())

	site, ok := SiteByKey("astorwines")
	require.True(t, ok)
	assert.Equal(t, "astorwines", site.Key)
	assert.Len(t, site.Categories, 2)
	for _, tmpl := range site.Categories {
		assert.Contains(t, tmpl, "%d")
	}

	_, ok = SiteByKey("nope")
	assert.False(t, ok)
}
