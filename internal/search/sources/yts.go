package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/littlejohn-app/littlejohn/internal/search"
)

const (
	ytsID          search.SourceID = "yts"
	defaultYTSBase                 = "https://yts.mx/api/v2"
)

var ytsTrackers = []string{
	"udp://open.demonii.com:1337/announce",
	"udp://tracker.openbittorrent.com:80",
	"udp://tracker.coppersurfer.tk:6969",
	"udp://glotorrents.pw:6969/announce",
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://p4p.arenabg.com:1337",
}

// YTS queries the yts.mx movie catalogue. One movie fans out into one
// result per quality variant.
type YTS struct {
	base string
}

func NewYTS(base string) *YTS {
	if base == "" {
		base = defaultYTSBase
	}
	return &YTS{base: base}
}

func (y *YTS) ID() search.SourceID { return ytsID }

type ytsResponse struct {
	Status string `json:"status"`
	Data   struct {
		MovieCount int `json:"movie_count"`
		Movies     []struct {
			Title    string `json:"title_long"`
			URL      string `json:"url"`
			Torrents []struct {
				Hash    string `json:"hash"`
				Quality string `json:"quality"`
				Type    string `json:"type"`
				Size    string `json:"size"`
				Seeds   int    `json:"seeds"`
				Peers   int    `json:"peers"`
			} `json:"torrents"`
		} `json:"movies"`
	} `json:"data"`
}

func (y *YTS) Fetch(ctx context.Context, query string, page int) ([]search.RawResult, error) {
	endpoint := fmt.Sprintf("%s/list_movies.json?query_term=%s&page=%d", y.base, url.QueryEscape(query), page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yts: unexpected status %d", resp.StatusCode)
	}

	var body ytsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("yts: decode: %w", err)
	}
	if body.Status != "ok" {
		return nil, fmt.Errorf("yts: api status %q", body.Status)
	}

	var out []search.RawResult
	for _, movie := range body.Data.Movies {
		for _, t := range movie.Torrents {
			if t.Hash == "" {
				continue
			}
			title := fmt.Sprintf("%s [%s] [%s]", movie.Title, t.Quality, t.Type)
			out = append(out, search.RawResult{
				Title:    title,
				Magnet:   buildMagnet(t.Hash, title, ytsTrackers),
				Size:     t.Size,
				Seeders:  t.Seeds,
				Leechers: t.Peers,
				Source:   ytsID,
				PageURL:  movie.URL,
				Category: "Movies",
			})
		}
	}
	return out, nil
}
