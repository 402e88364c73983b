package relay

import (
	"net/http"
	"strings"
)

// feedFilter parses the optional ?feeds=name1,name2 query parameter. A nil
// result accepts every feed.
func feedFilter(r *http.Request) map[string]bool {
	q := r.URL.Query().Get("feeds")
	if q == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, f := range strings.Split(q, ",") {
		if f = strings.TrimSpace(f); f != "" {
			filter[f] = true
		}
	}
	return filter
}
