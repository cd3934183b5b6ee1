// Package clipboard watches the system clipboard for magnet links and
// direct download URLs.
package clipboard

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/atotto/clipboard"
)

var clipboardReadAll = clipboard.ReadAll

// Kind classifies a clipboard capture.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindMagnet  Kind = "magnet"
	KindHTTP    Kind = "http"
)

// Capture is one piece of actionable clipboard content.
type Capture struct {
	Kind Kind
	Text string
}

func IsMagnet(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if strings.ToLower(u.Scheme) != "magnet" {
		return false
	}
	return u.Opaque != "" || u.RawQuery != ""
}

func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Classify extracts actionable content from clipboard text, or KindUnknown.
func Classify(text string) Capture {
	text = strings.TrimSpace(text)

	// Quick reject: too long, contains newlines, or obviously not a link
	if text == "" || len(text) > 4096 || strings.ContainsAny(text, "\n\r") {
		return Capture{Kind: KindUnknown}
	}

	switch {
	case IsMagnet(text):
		return Capture{Kind: KindMagnet, Text: text}
	case IsHTTPURL(text):
		return Capture{Kind: KindHTTP, Text: text}
	default:
		return Capture{Kind: KindUnknown}
	}
}

// Monitor polls the clipboard and emits each new magnet or URL once.
type Monitor struct {
	interval time.Duration
	last     string
	ch       chan Capture
}

func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{
		interval: interval,
		ch:       make(chan Capture, 8),
	}
}

// C delivers captures. Closed when Run returns.
func (m *Monitor) C() <-chan Capture {
	return m.ch
}

// Run polls until the context is cancelled. Repeated identical clipboard
// content is reported once.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.ch)

	// Seed with the current content so pre-existing clipboard text does
	// not fire on startup.
	if text, err := clipboardReadAll(); err == nil {
		m.last = strings.TrimSpace(text)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		text, err := clipboardReadAll()
		if err != nil {
			continue
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == m.last {
			continue
		}
		m.last = trimmed

		capture := Classify(trimmed)
		if capture.Kind == KindUnknown {
			continue
		}

		select {
		case m.ch <- capture:
		default:
			// Consumer lagging; drop rather than block the poll loop.
		}
	}
}
