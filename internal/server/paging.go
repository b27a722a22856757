package server

import (
	"net/http"
	"strconv"

	"github.com/oakcellar/pricewatch-cli/pkg/priceapi"
)

// buildRel computes pagination cursors for a listing response. Links are
// relative URLs that preserve the request's other query parameters.
func buildRel(r *http.Request, page int, hasNext bool) priceapi.Rel {
	var rel priceapi.Rel
	if hasNext {
		next := page + 1
		rel.NextPage = &next
		link := pageLink(r, next)
		rel.Next = &link
	}
	if page > 1 {
		prev := page - 1
		rel.PrevPage = &prev
		link := pageLink(r, prev)
		rel.Prev = &link
	}
	return rel
}

func pageLink(r *http.Request, page int) string {
	u := *r.URL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.RequestURI()
}
