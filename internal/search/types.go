package search

import "errors"

// SourceID identifies one torrent-index site behind the uniform Source
// capability.
type SourceID string

// RawResult is one hit as reported by a single source, before merging.
type RawResult struct {
	Title    string
	Magnet   string
	Size     string
	Seeders  int
	Leechers int
	Source   SourceID
	PageURL  string
	Category string
}

// RankedResult is one post-merge entry of the aggregate result list.
// Sources lists every site that reported the entry, in request order.
type RankedResult struct {
	Title    string
	Magnet   string
	InfoHash string
	Size     string
	Seeders  int
	Leechers int
	Sources  []SourceID
	Rank     int
}

// Request is one query fanned out to a set of sources. The source set must
// be non-empty and the page index starts at 1.
type Request struct {
	Query   string
	Sources []SourceID
	Page    int
}

// Result is the merged outcome of one search call. Failed records
// per-source failures without failing the call, as long as at least one
// source responded.
type Result struct {
	Results []RankedResult
	Failed  map[SourceID]error
}

var (
	// ErrNoSourcesAvailable means every selected source failed or timed out.
	ErrNoSourcesAvailable = errors.New("no sources available")

	// ErrInvalidRequest means the request violated a precondition (empty
	// source set, page < 1). Rejected synchronously, nothing dispatched.
	ErrInvalidRequest = errors.New("invalid search request")
)
