package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/littlejohn-app/littlejohn/internal/search"
)

const (
	tpbID          search.SourceID = "tpb"
	defaultTPBBase                 = "https://apibay.org"
)

// tpbTrackers are appended to every constructed magnet link.
var tpbTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://exodus.desync.com:6969/announce",
}

// TPB queries The Pirate Bay through the apibay JSON endpoint.
type TPB struct {
	base string
}

func NewTPB(base string) *TPB {
	if base == "" {
		base = defaultTPBBase
	}
	return &TPB{base: base}
}

func (t *TPB) ID() search.SourceID { return tpbID }

type tpbEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	InfoHash string `json:"info_hash"`
	Seeders  string `json:"seeders"`
	Leechers string `json:"leechers"`
	Size     string `json:"size"`
	Category string `json:"category"`
}

func (t *TPB) Fetch(ctx context.Context, query string, page int) ([]search.RawResult, error) {
	// apibay has no pagination; page 1 is everything, further pages are empty.
	if page > 1 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/q.php?q=%s", t.base, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tpb: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tpb: unexpected status %d", resp.StatusCode)
	}

	var entries []tpbEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("tpb: decode: %w", err)
	}

	var out []search.RawResult
	for _, e := range entries {
		// apibay signals "no results" with a single sentinel row.
		if e.ID == "0" || e.InfoHash == "0000000000000000000000000000000000000000" {
			continue
		}

		seeders, _ := strconv.Atoi(e.Seeders)
		leechers, _ := strconv.Atoi(e.Leechers)
		sizeBytes, _ := strconv.ParseInt(e.Size, 10, 64)

		out = append(out, search.RawResult{
			Title:    e.Name,
			Magnet:   buildMagnet(e.InfoHash, e.Name, tpbTrackers),
			Size:     humanize.IBytes(uint64(sizeBytes)),
			Seeders:  seeders,
			Leechers: leechers,
			Source:   tpbID,
			PageURL:  "https://thepiratebay.org/description.php?id=" + e.ID,
			Category: e.Category,
		})
	}
	return out, nil
}

func buildMagnet(infoHash, name string, trackers []string) string {
	m := fmt.Sprintf("magnet:?xt=urn:btih:%s&dn=%s", infoHash, url.QueryEscape(name))
	for _, tr := range trackers {
		m += "&tr=" + url.QueryEscape(tr)
	}
	return m
}
