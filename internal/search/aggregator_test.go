package search

import (
	"context"
	"errors"
	"testing"
	"time"
)

const (
	hashA = "magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa&dn=test"
	hashB = "magnet:?xt=urn:btih:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb&dn=test"
	hashC = "magnet:?xt=urn:btih:cccccccccccccccccccccccccccccccccccccccc&dn=test"
)

type fakeSource struct {
	id      SourceID
	results []RawResult
	err     error
	delay   time.Duration
}

func (f *fakeSource) ID() SourceID { return f.id }

func (f *fakeSource) Fetch(ctx context.Context, query string, page int) ([]RawResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func raw(id SourceID, title, magnet string, seeders int) RawResult {
	return RawResult{Title: title, Magnet: magnet, Seeders: seeders, Source: id}
}

func TestSearchPartialFailure(t *testing.T) {
	ok := &fakeSource{id: "alpha", results: []RawResult{raw("alpha", "Movie A", hashA, 10)}}
	bad := &fakeSource{id: "beta", err: errors.New("boom")}

	agg := NewAggregator([]Source{ok, bad}, time.Second, nil)
	res, err := agg.Search(context.Background(), Request{Query: "movie", Sources: []SourceID{"alpha", "beta"}, Page: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res.Results))
	}
	if len(res.Failed) != 1 {
		t.Fatalf("expected 1 failed source, got %d", len(res.Failed))
	}
	if _, ok := res.Failed["beta"]; !ok {
		t.Error("beta should be in Failed")
	}
}

func TestSearchAllSourcesFailed(t *testing.T) {
	a := &fakeSource{id: "alpha", err: errors.New("down")}
	b := &fakeSource{id: "beta", err: errors.New("down")}

	agg := NewAggregator([]Source{a, b}, time.Second, nil)
	_, err := agg.Search(context.Background(), Request{Query: "x", Sources: []SourceID{"alpha", "beta"}, Page: 1})
	if !errors.Is(err, ErrNoSourcesAvailable) {
		t.Fatalf("expected ErrNoSourcesAvailable, got %v", err)
	}
}

func TestSearchInvalidRequest(t *testing.T) {
	agg := NewAggregator(nil, time.Second, nil)

	if _, err := agg.Search(context.Background(), Request{Query: "x", Page: 1}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty source set: expected ErrInvalidRequest, got %v", err)
	}
	if _, err := agg.Search(context.Background(), Request{Query: "x", Sources: []SourceID{"alpha"}, Page: 0}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("page 0: expected ErrInvalidRequest, got %v", err)
	}
}

func TestSearchSourceTimeout(t *testing.T) {
	fast := &fakeSource{id: "fast", results: []RawResult{raw("fast", "Quick", hashA, 5)}}
	slow := &fakeSource{id: "slow", delay: 500 * time.Millisecond, results: []RawResult{raw("slow", "Late", hashB, 99)}}

	agg := NewAggregator([]Source{fast, slow}, 50*time.Millisecond, nil)
	res, err := agg.Search(context.Background(), Request{Query: "x", Sources: []SourceID{"fast", "slow"}, Page: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].Title != "Quick" {
		t.Fatalf("expected only the fast source's result, got %+v", res.Results)
	}
	if _, ok := res.Failed["slow"]; !ok {
		t.Error("slow source should be reported in Failed")
	}
}

func TestDedupeMergesByTitleAndHash(t *testing.T) {
	a := &fakeSource{id: "alpha", results: []RawResult{raw("alpha", "Some.Movie.2024", hashA, 10)}}
	b := &fakeSource{id: "beta", results: []RawResult{raw("beta", "some movie 2024", hashA, 40)}}

	agg := NewAggregator([]Source{a, b}, time.Second, nil)
	res, err := agg.Search(context.Background(), Request{Query: "some movie", Sources: []SourceID{"alpha", "beta"}, Page: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("expected duplicates merged into 1 result, got %d", len(res.Results))
	}

	got := res.Results[0]
	if got.Seeders != 40 {
		t.Errorf("expected max seeders 40, got %d", got.Seeders)
	}
	if len(got.Sources) != 2 {
		t.Errorf("expected union of 2 sources, got %v", got.Sources)
	}
}

func TestDedupeKeepsDistinctHashes(t *testing.T) {
	a := &fakeSource{id: "alpha", results: []RawResult{
		raw("alpha", "Same Title", hashA, 10),
		raw("alpha", "Same Title", hashB, 20),
	}}

	agg := NewAggregator([]Source{a}, time.Second, nil)
	res, err := agg.Search(context.Background(), Request{Query: "same", Sources: []SourceID{"alpha"}, Page: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("same title with different hashes must not merge, got %d results", len(res.Results))
	}
}

func TestRankingOrder(t *testing.T) {
	a := &fakeSource{id: "alpha", results: []RawResult{
		raw("alpha", "Low Seeds", hashA, 3),
		raw("alpha", "Tie From Alpha", hashB, 50),
	}}
	b := &fakeSource{id: "beta", results: []RawResult{
		raw("beta", "Tie From Beta", hashC, 50),
	}}

	// beta outranks alpha on ties.
	agg := NewAggregator([]Source{a, b}, time.Second, []SourceID{"beta", "alpha"})
	res, err := agg.Search(context.Background(), Request{Query: "x", Sources: []SourceID{"alpha", "beta"}, Page: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want := []string{"Tie From Beta", "Tie From Alpha", "Low Seeds"}
	if len(res.Results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(res.Results))
	}
	for i, title := range want {
		if res.Results[i].Title != title {
			t.Errorf("rank %d: expected %q, got %q", i, title, res.Results[i].Title)
		}
		if res.Results[i].Rank != i {
			t.Errorf("rank %d: Rank field is %d", i, res.Results[i].Rank)
		}
	}
}

func TestRankingDeterministic(t *testing.T) {
	// Mixed delays shuffle goroutine completion order; ranking must not care.
	mk := func(d1, d2 time.Duration) *Aggregator {
		a := &fakeSource{id: "alpha", delay: d1, results: []RawResult{raw("alpha", "First", hashA, 7)}}
		b := &fakeSource{id: "beta", delay: d2, results: []RawResult{raw("beta", "Second", hashB, 7)}}
		return NewAggregator([]Source{a, b}, time.Second, []SourceID{"alpha", "beta"})
	}

	req := Request{Query: "x", Sources: []SourceID{"alpha", "beta"}, Page: 1}

	fastFirst, err := mk(0, 20*time.Millisecond).Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	slowFirst, err := mk(20*time.Millisecond, 0).Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	for i := range fastFirst.Results {
		if fastFirst.Results[i].Title != slowFirst.Results[i].Title {
			t.Fatalf("ranking depends on completion order: %v vs %v", fastFirst.Results, slowFirst.Results)
		}
	}
}

func TestInfoHash(t *testing.T) {
	if h := InfoHash(hashA); h != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("unexpected hash %q", h)
	}
	if h := InfoHash("not a magnet"); h != "" {
		t.Errorf("expected empty hash for garbage input, got %q", h)
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := map[string]string{
		"Some.Movie.2024":      "some movie 2024",
		"Some_Movie-2024":      "some movie 2024",
		"  Some   Movie 2024 ": "some movie 2024",
	}
	for in, want := range cases {
		if got := normalizeTitle(in); got != want {
			t.Errorf("normalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
