// ABOUTME: Profile directory client for resolving user IDs to display data
// ABOUTME: Wraps the external identity service; lookups degrade to the raw ID on failure

package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Summary is the minimal profile data needed to render a counterpart.
type Summary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Directory resolves a user ID to a profile summary.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*Summary, error)
}

// Fallback returns the degraded summary used when a lookup fails:
// the raw ID stands in for the display name.
func Fallback(userID string) *Summary {
	return &Summary{ID: userID, DisplayName: userID}
}

// cached wraps a summary with its fetch time for TTL expiry.
type cached struct {
	summary *Summary
	fetched time.Time
}

// HTTPDirectory fetches profile summaries from the identity service
// over HTTP and caches them with a TTL. Profile data changes rarely,
// so a short cache keeps list rendering from hammering the directory.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]cached
}

// NewHTTPDirectory creates a directory client for the given base URL.
// Pass nil logger for default.
func NewHTTPDirectory(baseURL string, ttl time.Duration, logger *slog.Logger) *HTTPDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		ttl:     ttl,
		logger:  logger.With("component", "profile"),
		cache:   make(map[string]cached),
	}
}

// Lookup fetches the profile summary for userID, serving from cache
// when fresh. Errors are returned to the caller; callers that render
// lists should degrade with Fallback rather than fail.
func (d *HTTPDirectory) Lookup(ctx context.Context, userID string) (*Summary, error) {
	d.mu.RLock()
	entry, ok := d.cache[userID]
	d.mu.RUnlock()
	if ok && time.Since(entry.fetched) < d.ttl {
		return entry.summary, nil
	}

	reqURL := d.baseURL + "/users/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile lookup for %s: status %d", userID, resp.StatusCode)
	}

	var summary Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	if summary.ID == "" {
		summary.ID = userID
	}
	if summary.DisplayName == "" {
		summary.DisplayName = userID
	}

	d.mu.Lock()
	d.cache[userID] = cached{summary: &summary, fetched: time.Now()}
	d.mu.Unlock()

	d.logger.Debug("profile fetched", "user_id", userID, "display_name", summary.DisplayName)
	return &summary, nil
}

// StaticDirectory is an in-memory Directory for tests and development.
type StaticDirectory struct {
	mu       sync.RWMutex
	profiles map[string]*Summary
}

// NewStaticDirectory creates a directory pre-seeded with the given summaries.
func NewStaticDirectory(summaries ...*Summary) *StaticDirectory {
	d := &StaticDirectory{profiles: make(map[string]*Summary)}
	for _, s := range summaries {
		d.profiles[s.ID] = s
	}
	return d
}

// Add registers or replaces a profile summary.
func (d *StaticDirectory) Add(s *Summary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[s.ID] = s
}

// Lookup returns the registered summary or an error if unknown.
func (d *StaticDirectory) Lookup(ctx context.Context, userID string) (*Summary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("unknown user %s", userID)
	}
	return s, nil
}
