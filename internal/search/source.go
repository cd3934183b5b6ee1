package search

import "context"

// Source is the uniform query capability one torrent-index site exposes.
// Fetch is restartable per call and holds no state between calls; it fails
// with a source-specific error on network or decode problems.
type Source interface {
	// ID returns the stable source identifier.
	ID() SourceID

	// Fetch returns the site's results for the query and page index.
	Fetch(ctx context.Context, query string, page int) ([]RawResult, error)
}
