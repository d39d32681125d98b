package tracker

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"remoteintegrity/ri-tracker/internal/metrics"
	"remoteintegrity/ri-tracker/internal/usage"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	MaxTitleLength = 255
	MaxURLLength   = 2048
)

// Browsers are the history sources queried on every link poll.
var Browsers = []string{"chrome", "brave", "edge", "firefox", "safari"}

var internalSchemes = []string{
	"about:", "chrome://", "edge://", "brave://", "firefox://",
	"safari://", "file://", "data:",
}

// Visit is one history record returned by a HistoryProvider.
type Visit struct {
	URL        string
	Title      string
	VisitedAt  time.Time
	VisitCount int
}

// HistoryProvider returns visits recorded by browser since a cutoff.
type HistoryProvider interface {
	QueryHistory(ctx context.Context, browser string, since time.Time) ([]Visit, error)
}

// LinkTracker estimates time per URL. Each poll's elapsed time is split
// evenly across the distinct URLs visited in the poll window, so the
// figures are an approximation rather than per-tab dwell time.
type LinkTracker struct {
	clock        clock.Clock
	history      HistoryProvider
	pollInterval time.Duration
	bucket       *usage.Bucket
	logger       *zap.Logger

	mu           sync.Mutex
	sessionStart time.Time
	lastPoll     time.Time
	polled       bool
}

// NewLinkTracker creates a new link tracker
func NewLinkTracker(clk clock.Clock, history HistoryProvider, pollInterval time.Duration, limit int, logger *zap.Logger) *LinkTracker {
	return &LinkTracker{
		clock:        clk,
		history:      history,
		pollInterval: pollInterval,
		bucket:       usage.NewBucket(limit),
		logger:       logger,
	}
}

// Reset clears accumulated links and makes the next poll look back to
// start.
func (t *LinkTracker) Reset(start time.Time) {
	t.mu.Lock()
	t.sessionStart = start
	t.lastPoll = start
	t.polled = false
	t.mu.Unlock()
	t.bucket.Clear()
}

// Cutoff returns the lower bound of the next history query.
func (t *LinkTracker) Cutoff(now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cutoffLocked(now)
}

func (t *LinkTracker) cutoffLocked(now time.Time) time.Time {
	if !t.polled {
		return t.sessionStart
	}
	return now.Add(-t.pollInterval)
}

func (t *LinkTracker) Poll(ctx context.Context) {
	if t.history == nil {
		return
	}
	now := t.clock.Now()

	t.mu.Lock()
	since := t.cutoffLocked(now)
	elapsed := now.Sub(t.lastPoll)
	t.lastPoll = now
	t.polled = true
	t.mu.Unlock()

	type link struct {
		title  string
		visits int
	}
	links := make(map[string]*link)
	var order []string

	for _, browser := range Browsers {
		visits, err := t.history.QueryHistory(ctx, browser, since)
		if err != nil {
			metrics.EnumerationErrors.WithLabelValues("history_" + browser).Inc()
			t.logger.Warn("Failed to read browser history",
				zap.String("browser", browser),
				zap.Error(err),
			)
			continue
		}
		for _, v := range visits {
			url, ok := NormalizeURL(v.URL)
			if !ok {
				continue
			}
			l, seen := links[url]
			if !seen {
				l = &link{}
				links[url] = l
				order = append(order, url)
			}
			if v.Title != "" {
				l.title = v.Title
			}
			count := v.VisitCount
			if count <= 0 {
				count = 1
			}
			l.visits += count
		}
	}

	if len(order) == 0 {
		return
	}

	share := elapsed / time.Duration(len(order))
	if share < time.Second {
		share = time.Second
	}
	for _, url := range order {
		l := links[url]
		t.bucket.Observe(usage.Observation{
			Key:        url,
			Delta:      share,
			Title:      LinkTitle(l.title, url),
			VisitCount: l.visits,
			SeenAt:     now,
		})
	}

	t.logger.Debug("Links polled",
		zap.Int("urls", len(order)),
		zap.Duration("share", share),
		zap.Time("since", since),
	)
}

func (t *LinkTracker) Drain() []usage.Entry {
	return t.bucket.Drain()
}

func (t *LinkTracker) Snapshot() []usage.Entry {
	return t.bucket.Snapshot()
}

// NormalizeURL drops browser-internal pages, strips one trailing slash
// and bounds the length. ok is false when the URL should not be reported.
func NormalizeURL(raw string) (string, bool) {
	url := strings.TrimSpace(raw)
	if url == "" {
		return "", false
	}
	lower := strings.ToLower(url)
	for _, scheme := range internalSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}
	url = strings.TrimSuffix(url, "/")
	if url == "" {
		return "", false
	}
	return truncate(url, MaxURLLength), true
}

// LinkTitle bounds title and falls back to the URL when it is empty.
func LinkTitle(title, url string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = url
	}
	return truncate(title, MaxTitleLength)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
