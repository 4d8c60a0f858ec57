package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached response by URL and query parameters.
// Credentials are attached at the session layer and must not be part of
// the query passed here.
type Key struct {
	// URL is the request URL without query string.
	URL string

	// Query are the request's query parameters.
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: aq:<url>:query1=val1:query2=val2
func (k Key) String() string {
	parts := []string{"aq", strings.TrimRight(k.URL, "/")}

	if len(k.Query) > 0 {
		keys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.Query[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
