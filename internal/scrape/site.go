// Package scrape implements the retail price scraping pipeline: per-site
// page parsing, name/price normalization and the pagination driver.
package scrape

import (
	"bytes"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Selectors describes how to pull product fields out of a listing page.
// Name is extracted from NameAttr when set, otherwise from element text.
type Selectors struct {
	Container  string
	Name       string
	NameAttr   string
	DetailLink string
	PriceText  string
}

// Site is a scrapeable retail source. Categories are page-number URL
// templates (one %d verb each); a run walks every category sequentially
// with a shared dedup accumulator.
type Site struct {
	Key        string
	Name       string
	Categories []string
	Selectors  Selectors
}

// Product is a single scraped listing. It exists only within one scrape
// run and is discarded after submission.
type Product struct {
	Name       string
	Normalized string
	Price      int64
	Currency   string
	URL        string
}

// ParsePage extracts candidate products from a listing page. Items with a
// missing name or an unparsable price are skipped with a warning. A missing
// detail link fails the whole page: it signals the site changed its markup
// and every subsequent item would be garbage.
func ParsePage(pageURL string, html []byte, site Site) ([]Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: %s: parse document", site.Key)
	}

	log := zap.L().With(zap.String("site", site.Key), zap.String("page", pageURL))

	var products []Product
	var pageErr error
	doc.Find(site.Selectors.Container).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		name := extractName(el, site.Selectors)
		if name == "" {
			log.Warn("unable to identify product name")
			return true
		}

		href, ok := el.Find(site.Selectors.DetailLink).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			pageErr = eris.Errorf("scrape: %s: unable to identify product url for %q", site.Key, name)
			return false
		}

		priceText := strings.TrimSpace(el.Find(site.Selectors.PriceText).First().Text())
		price, ok := ParsePrice(priceText)
		if !ok {
			log.Warn("invalid price value", zap.String("name", name), zap.String("price", priceText))
			return true
		}

		products = append(products, Product{
			Name:       name,
			Normalized: NormalizeBottleName(name),
			Price:      price,
			Currency:   "usd",
			URL:        absoluteURL(strings.TrimSpace(href), pageURL),
		})
		return true
	})
	if pageErr != nil {
		return nil, pageErr
	}

	return products, nil
}

func extractName(el *goquery.Selection, sel Selectors) string {
	target := el.Find(sel.Name).First()
	if sel.NameAttr != "" {
		if v, ok := target.Attr(sel.NameAttr); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}
	return strings.TrimSpace(target.Text())
}

// absoluteURL resolves a root-relative href against the origin of the page
// it was found on. Already-absolute links pass through unchanged.
func absoluteURL(href, pageURL string) string {
	if !strings.HasPrefix(href, "/") {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	return base.Scheme + "://" + base.Host + href
}

// Sites returns the registered site adapters keyed by store key.
func Sites() map[string]Site {
	return map[string]Site{
		astorwines.Key: astorwines,
		woodencork.Key: woodencork,
	}
}

// SiteByKey looks up a registered site adapter.
func SiteByKey(key string) (Site, bool) {
	s, ok := Sites()[key]
	return s, ok
}

// SiteKeys returns all registered store keys in sorted order.
func SiteKeys() []string {
	sites := Sites()
	keys := make([]string, 0, len(sites))
	for k := range sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
