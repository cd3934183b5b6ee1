package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/littlejohn-app/littlejohn/internal/utils"
)

// Aggregator fans one query out to the selected sources concurrently,
// isolates per-source failures, deduplicates and ranks the merged list.
//
// Pagination is delegated per source: page N of the merged view is the
// merge of page N from each source. The Aggregator does not re-paginate
// globally.
type Aggregator struct {
	sources map[SourceID]Source
	timeout time.Duration

	// priority maps source id to its tie-break rank (lower wins).
	priority map[SourceID]int
}

const DefaultSourceTimeout = 10 * time.Second

// NewAggregator builds an Aggregator over the given sources. priority is
// the fixed tie-break order for ranking; sources missing from it rank last.
func NewAggregator(sources []Source, timeout time.Duration, priority []SourceID) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}

	byID := make(map[SourceID]Source, len(sources))
	for _, s := range sources {
		byID[s.ID()] = s
	}

	prio := make(map[SourceID]int, len(priority))
	for i, id := range priority {
		prio[id] = i
	}

	return &Aggregator{
		sources:  byID,
		timeout:  timeout,
		priority: prio,
	}
}

// sourceOutcome is the fan-in record for one source call.
type sourceOutcome struct {
	id      SourceID
	results []RawResult
	err     error
}

// Search dispatches one call per selected source, each bounded by the
// per-source timeout, and returns the merged ranked list. Sources that
// fail or time out are reported in Result.Failed; the call only fails when
// zero sources respond.
func (a *Aggregator) Search(ctx context.Context, req Request) (*Result, error) {
	if len(req.Sources) == 0 {
		return nil, fmt.Errorf("%w: empty source set", ErrInvalidRequest)
	}
	if req.Page < 1 {
		return nil, fmt.Errorf("%w: page %d", ErrInvalidRequest, req.Page)
	}

	outcomes := make([]sourceOutcome, len(req.Sources))
	var wg sync.WaitGroup

	for i, id := range req.Sources {
		src, ok := a.sources[id]
		if !ok {
			outcomes[i] = sourceOutcome{id: id, err: fmt.Errorf("unknown source %q", id)}
			continue
		}

		wg.Add(1)
		go func(slot int, id SourceID, src Source) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			results, err := src.Fetch(callCtx, req.Query, req.Page)
			if err != nil {
				utils.Debug("source %s failed: %v", id, err)
			}
			outcomes[slot] = sourceOutcome{id: id, results: results, err: err}
		}(i, id, src)
	}

	wg.Wait()

	failed := make(map[SourceID]error)
	responded := 0
	// Flatten in request order so the final tie-break (arrival index) is
	// deterministic regardless of which goroutine finished first.
	var flat []RawResult
	for _, out := range outcomes {
		if out.err != nil {
			failed[out.id] = out.err
			continue
		}
		responded++
		flat = append(flat, out.results...)
	}

	if responded == 0 {
		return nil, fmt.Errorf("%w: all %d sources failed", ErrNoSourcesAvailable, len(req.Sources))
	}

	merged := dedupe(flat)
	rank(merged, a.priority)

	return &Result{Results: merged, Failed: failed}, nil
}

// dedupe collapses results whose normalized title and info-hash coincide,
// keeping the maximum seeder count observed and the union of sources.
func dedupe(raw []RawResult) []RankedResult {
	type slot struct{ idx int }
	seen := make(map[string]slot)
	var out []RankedResult

	for _, r := range raw {
		hash := InfoHash(r.Magnet)
		key := normalizeTitle(r.Title) + "|" + hash
		if hash == "" {
			// Unparsable reference: fall back to the raw magnet so distinct
			// links never collapse.
			key = normalizeTitle(r.Title) + "|" + r.Magnet
		}

		if s, ok := seen[key]; ok {
			entry := &out[s.idx]
			if r.Seeders > entry.Seeders {
				entry.Seeders = r.Seeders
			}
			if r.Leechers > entry.Leechers {
				entry.Leechers = r.Leechers
			}
			if !containsSource(entry.Sources, r.Source) {
				entry.Sources = append(entry.Sources, r.Source)
			}
			continue
		}

		seen[key] = slot{idx: len(out)}
		out = append(out, RankedResult{
			Title:    r.Title,
			Magnet:   r.Magnet,
			InfoHash: hash,
			Size:     r.Size,
			Seeders:  r.Seeders,
			Leechers: r.Leechers,
			Sources:  []SourceID{r.Source},
		})
	}

	return out
}

// rank orders the merged list: seeders descending, then the fixed source
// priority, then arrival order. The sort is stable, so arrival order is
// the natural final tie-break and identical inputs always produce
// identical output.
func rank(results []RankedResult, priority map[SourceID]int) {
	bestPrio := func(r *RankedResult) int {
		best := len(priority) + 1
		for _, id := range r.Sources {
			if p, ok := priority[id]; ok && p < best {
				best = p
			}
		}
		return best
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := &results[i], &results[j]
		if a.Seeders != b.Seeders {
			return a.Seeders > b.Seeders
		}
		return bestPrio(a) < bestPrio(b)
	})

	for i := range results {
		results[i].Rank = i
	}
}

// InfoHash extracts the lower-case hex btih from a magnet link, or ""
// when the reference cannot be parsed.
func InfoHash(magnet string) string {
	m, err := metainfo.ParseMagnetUri(magnet)
	if err != nil {
		return ""
	}
	if m.InfoHash == (metainfo.Hash{}) {
		return ""
	}
	return strings.ToLower(m.InfoHash.HexString())
}

var titleSeparators = strings.NewReplacer(".", " ", "_", " ", "-", " ")

// normalizeTitle lower-cases and collapses separator runs so cosmetic
// differences between sites don't defeat deduplication.
func normalizeTitle(title string) string {
	t := strings.ToLower(titleSeparators.Replace(title))
	return strings.Join(strings.Fields(t), " ")
}

func containsSource(ids []SourceID, id SourceID) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}
