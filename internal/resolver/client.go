// Package resolver turns magnet links into direct download URLs through a
// debrid service: add the magnet, select files, poll until the service has
// cached the content, then unrestrict each selected file's link.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/littlejohn-app/littlejohn/internal/utils"
)

const DefaultBaseURL = "https://api.real-debrid.com/rest/1.0"

var (
	// ErrUnauthorized means the API token was rejected. Never retried.
	ErrUnauthorized = errors.New("debrid: unauthorized")

	// ErrRateLimited means the rate limit persisted through every backoff
	// attempt.
	ErrRateLimited = errors.New("debrid: rate limited")

	// ErrTimeout means the torrent did not become ready within the poll bound.
	ErrTimeout = errors.New("debrid: timed out waiting for torrent")
)

// APIError is a non-OK response that is neither an auth nor a rate problem.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("debrid: status %d: %s", e.StatusCode, e.Body)
}

// Client is a minimal Real-Debrid REST client covering the torrent
// resolution flow. Methods return ErrUnauthorized and ErrRateLimited for
// their respective HTTP conditions; everything else surfaces as *APIError.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

func WithRetry(maxRetries int, backoffBase time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.backoffBase = backoffBase
	}
}

func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  5,
		backoffBase: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddedTorrent is the response to adding a magnet.
type AddedTorrent struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// TorrentFile is one file inside an added torrent.
type TorrentFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

// TorrentInfo is the polled state of an added torrent.
type TorrentInfo struct {
	ID       string        `json:"id"`
	Filename string        `json:"filename"`
	Hash     string        `json:"hash"`
	Bytes    int64         `json:"bytes"`
	Status   string        `json:"status"`
	Progress float64       `json:"progress"`
	Files    []TorrentFile `json:"files"`
	Links    []string      `json:"links"`
}

// Torrent status values the resolution flow reacts to.
const (
	StatusWaitingFiles = "waiting_files_selection"
	StatusDownloaded   = "downloaded"
	StatusError        = "error"
	StatusDead         = "dead"
	StatusMagnetError  = "magnet_error"
	StatusVirus        = "virus"
)

// UnrestrictedLink is the outcome of unrestricting one hoster link.
type UnrestrictedLink struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Download string `json:"download"`
}

// AddMagnet registers a magnet link with the service.
func (c *Client) AddMagnet(ctx context.Context, magnet string) (*AddedTorrent, error) {
	form := url.Values{"magnet": {magnet}}
	var out AddedTorrent
	if err := c.do(ctx, http.MethodPost, "/torrents/addMagnet", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TorrentInfo fetches the current state of an added torrent.
func (c *Client) TorrentInfo(ctx context.Context, id string) (*TorrentInfo, error) {
	var out TorrentInfo
	if err := c.do(ctx, http.MethodGet, "/torrents/info/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SelectFiles marks the given file ids for caching. At least one id is
// required; the service rejects empty selections anyway.
func (c *Client) SelectFiles(ctx context.Context, id string, fileIDs []int) error {
	ids := make([]string, len(fileIDs))
	for i, fid := range fileIDs {
		ids[i] = strconv.Itoa(fid)
	}
	form := url.Values{"files": {strings.Join(ids, ",")}}
	return c.do(ctx, http.MethodPost, "/torrents/selectFiles/"+id, form, nil)
}

// UnrestrictLink converts one hoster link into a direct download URL.
func (c *Client) UnrestrictLink(ctx context.Context, link string) (*UnrestrictedLink, error) {
	form := url.Values{"link": {link}}
	var out UnrestrictedLink
	if err := c.do(ctx, http.MethodPost, "/unrestrict/link", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTorrent removes an added torrent from the account.
func (c *Client) DeleteTorrent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/torrents/delete/"+id, nil, nil)
}

// do runs one API call with auth, decoding, and bounded 429 backoff.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	delay := c.backoffBase
	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, method, path, form, out)
		if err == nil || !errors.Is(err, errRetryableRate) {
			return err
		}
		if attempt >= c.maxRetries {
			return fmt.Errorf("%w: gave up after %d attempts", ErrRateLimited, attempt+1)
		}

		utils.Debug("debrid: 429 on %s %s, backing off %s", method, path, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// errRetryableRate marks a single 429 response inside the retry loop.
var errRetryableRate = errors.New("debrid: 429")

func (c *Client) doOnce(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("debrid: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return errRetryableRate
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("debrid: decode: %w", err)
	}
	return nil
}
