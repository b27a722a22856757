package scrape

// Site adapters. Each entry captures the listing markup of one retailer;
// the shared driver and parser do the rest. Category templates take the
// page number as their only verb.

var astorwines = Site{
	Key:  "astorwines",
	Name: "Astor Wines & Spirits",
	Categories: []string{
		// In-stock whiskey, both spirit styles the catalog tracks.
		"https://www.astorwines.com/SpiritsSearchResult.aspx?search=Advanced&searchtype=Contains&term=&cat=2&style=3_41&srt=1&instockonly=True&Page=%d",
		"https://www.astorwines.com/SpiritsSearchResult.aspx?search=Advanced&searchtype=Contains&term=&cat=2&style=2_32&srt=1&instockonly=True&Page=%d",
	},
	Selectors: Selectors{
		Container:  "#search-results .item-teaser",
		Name:       ".header > h2",
		NameAttr:   "title",
		DetailLink: "a.item-name",
		PriceText:  "span.price-bottle.display-2",
	},
}

var woodencork = Site{
	Key:  "woodencork",
	Name: "Wooden Cork",
	Categories: []string{
		"https://woodencork.com/collections/whiskey?page=%d",
	},
	Selectors: Selectors{
		Container:  "#CollectionAjaxContent div.grid-item",
		Name:       "div.grid-product__title",
		DetailLink: "a.grid-item__link",
		PriceText:  "span.grid-product__price--current > span.visually-hidden",
	},
}
