package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"remoteintegrity/ri-tracker/internal/tracker"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

type storedVisit struct {
	browser string
	visit   tracker.Visit
}

// URLStore keeps recent page visits reported by the browser extension and
// serves them as browser history. Entries expire after the TTL and the
// least recently updated are evicted beyond the size limit.
type URLStore struct {
	mu     sync.Mutex
	visits *expirable.LRU[string, storedVisit]
	logger *zap.Logger
}

// NewURLStore creates a new URL store with TTL-based expiration
func NewURLStore(ttl time.Duration, size int, logger *zap.Logger) *URLStore {
	return &URLStore{
		visits: expirable.NewLRU[string, storedVisit](size, nil, ttl),
		logger: logger,
	}
}

// RecordVisit stores a visit to url in the browser named by application.
// Repeated visits to the same URL bump its visit count.
func (s *URLStore) RecordVisit(application, title, url string, visitedAt time.Time) {
	browser := normalizeApplicationName(application)
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	key := browser + "\x00" + url

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.visits.Get(key)
	if !ok {
		rec = storedVisit{browser: browser, visit: tracker.Visit{URL: url}}
	}
	rec.visit.VisitCount++
	if t := normalizeTitle(title); t != "" {
		rec.visit.Title = t
	}
	if visitedAt.After(rec.visit.VisitedAt) {
		rec.visit.VisitedAt = visitedAt
	}
	s.visits.Add(key, rec)

	s.logger.Debug("Stored URL",
		zap.String("browser", browser),
		zap.String("url", url),
		zap.Int("visits", rec.visit.VisitCount),
	)
}

// QueryHistory returns the visits for browser seen at or after since,
// oldest first.
func (s *URLStore) QueryHistory(_ context.Context, browser string, since time.Time) ([]tracker.Visit, error) {
	s.mu.Lock()
	records := s.visits.Values()
	s.mu.Unlock()

	var out []tracker.Visit
	for _, rec := range records {
		if rec.browser != browser || rec.visit.VisitedAt.Before(since) {
			continue
		}
		out = append(out, rec.visit)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VisitedAt.Before(out[j].VisitedAt)
	})
	return out, nil
}

func (s *URLStore) Len() int {
	return s.visits.Len()
}

// Clear removes all entries
func (s *URLStore) Clear() {
	s.visits.Purge()
}

var browserSuffixes = []string{
	" - Google Chrome",
	" - Chrome",
	" - Microsoft Edge",
	" - Edge",
	" - Mozilla Firefox",
	" - Firefox",
	" - Safari",
	" - Opera",
	" - Brave",
	" - Vivaldi",
}

// normalizeTitle removes the browser suffix window titles carry
func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	for _, suffix := range browserSuffixes {
		if strings.HasSuffix(title, suffix) {
			title = strings.TrimSpace(strings.TrimSuffix(title, suffix))
		}
	}
	return title
}

// Checked in order; the first substring match wins.
var browserNames = []struct {
	match string
	name  string
}{
	{"microsoft edge", "edge"},
	{"msedge", "edge"},
	{"edge", "edge"},
	{"brave", "brave"},
	{"firefox", "firefox"},
	{"safari", "safari"},
	{"opera", "opera"},
	{"vivaldi", "vivaldi"},
	{"chromium", "chrome"},
	{"chrome", "chrome"},
}

// normalizeApplicationName maps browser name variations to the kinds the
// link tracker queries
func normalizeApplicationName(application string) string {
	appLower := strings.ToLower(strings.TrimSpace(application))
	for _, b := range browserNames {
		if strings.Contains(appLower, b.match) {
			return b.name
		}
	}
	return appLower
}
