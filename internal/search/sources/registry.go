// Package sources holds the built-in torrent index adapters and the
// registry that maps configured source ids onto them.
package sources

import (
	"net/http"
	"time"

	"github.com/littlejohn-app/littlejohn/internal/search"
)

const defaultHTTPTimeout = 15 * time.Second

// httpClient is shared by all adapters. Per-call deadlines come from the
// aggregator's context; the client timeout is only a hard upper bound.
var httpClient = &http.Client{Timeout: defaultHTTPTimeout}

// All returns every adapter implemented in this build, keyed by id.
func All() map[search.SourceID]search.Source {
	adapters := []search.Source{
		NewTPB(""),
		NewYTS(""),
	}
	out := make(map[search.SourceID]search.Source, len(adapters))
	for _, a := range adapters {
		out[a.ID()] = a
	}
	return out
}

// Select resolves the enabled ids against the registry, keeping the
// configured order and silently skipping ids with no adapter in this build.
func Select(enabled []string) []search.Source {
	all := All()
	var out []search.Source
	for _, name := range enabled {
		if src, ok := all[search.SourceID(name)]; ok {
			out = append(out, src)
		}
	}
	return out
}
