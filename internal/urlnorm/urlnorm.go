// Package urlnorm strips per-platform volatile query parameters from news
// URLs so that the storage layer can use the result as a stable identity
// key. The canonical form is what gets persisted; originals are discarded.
package urlnorm

import (
	"net/url"
	"strings"
)

// dropParams lists, per platform id, the query parameters that change
// between crawls without changing the linked story. Extend the table as new
// platforms are integrated.
var dropParams = map[string][]string{
	"weibo": {"band_rank"},
}

// Canonicalize returns the stable identity form of a URL for the given
// platform. Parameters not in the drop table are preserved in their
// original order. Empty input and unparseable input pass through unchanged.
func Canonicalize(raw, platformID string) string {
	if raw == "" {
		return ""
	}
	drops := dropParams[platformID]
	if len(drops) == 0 {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(u.RawQuery, "&") {
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if dropped(key, drops) {
			continue
		}
		kept = append(kept, pair)
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

func dropped(key string, drops []string) bool {
	for _, d := range drops {
		if key == d {
			return true
		}
	}
	return false
}
