// Package modelcache keeps a short-lived snapshot of available models and
// their per-token pricing, shared across concurrent requests.
//
// The snapshot is refreshed wholesale when absent or older than the TTL.
// A failed refresh writes an empty list with a fresh timestamp so failures
// retry once per TTL window instead of on every call.
package modelcache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// tokensPerUnit is the token count the listed unit prices refer to.
const tokensPerUnit = 1_000_000

// Lister fetches the current model list from the pricing endpoint.
type Lister interface {
	ListModels(ctx context.Context) ([]models.ModelDescriptor, error)
}

// Cache is the process-wide model metadata cache. Reads serve the current
// snapshot; the refresh always replaces it wholesale, so a concurrent read
// worst-case observes the previous snapshot, never a partial one.
type Cache struct {
	lister Lister
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	snapshot  []models.ModelDescriptor
	fetchedAt time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock injects the time source for deterministic TTL tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache around the given lister.
func New(lister Lister, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		lister: lister,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Models returns the cached model list, refreshing it first when absent or
// expired. Concurrent callers during a refresh wait for that one fetch.
func (c *Cache) Models(ctx context.Context) []models.ModelDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.snapshot
	}

	list, err := c.lister.ListModels(ctx)
	if err != nil {
		// Fail soft: an empty snapshot with a fresh timestamp bounds the
		// retry rate to once per TTL window.
		log.Warn().Err(err).Msg("Model list refresh failed, caching empty list")
		list = nil
	}

	c.snapshot = list
	c.fetchedAt = c.now()
	return c.snapshot
}

// ComputePricing calculates the USD cost of a call. It returns nil when the
// model is absent from the snapshot or declares no unit prices; callers
// must treat nil as unknown, not zero.
func (c *Cache) ComputePricing(ctx context.Context, modelID string, promptTokens, completionTokens int64) *models.Pricing {
	for _, m := range c.Models(ctx) {
		if m.ID != modelID {
			continue
		}
		if m.Pricing == nil {
			return nil
		}
		input := float64(promptTokens) / tokensPerUnit * m.Pricing.Input
		output := float64(completionTokens) / tokensPerUnit * m.Pricing.Output
		return &models.Pricing{
			Input:  input,
			Output: output,
			Total:  input + output,
		}
	}
	return nil
}

// ── HTTP Lister ──────────────────────────────────────────────

// HTTPLister fetches the model list from the listing endpoint.
type HTTPLister struct {
	client *http.Client
	url    string
}

// NewHTTPLister creates a lister for the given endpoint URL.
func NewHTTPLister(url string) *HTTPLister {
	return &HTTPLister{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    url,
	}
}

// ListModels performs the GET and parses the payload.
func (l *HTTPLister) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch model list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model list: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read model list: %w", err)
	}

	return ParseModelList(body)
}

// ── Payload Parsers ──────────────────────────────────────────

// modelListParser attempts one payload shape, returning (nil, false) when
// the shape does not match.
type modelListParser func(body []byte) ([]models.ModelDescriptor, bool)

// modelListParsers are tried in priority order; the first match wins.
var modelListParsers = []modelListParser{
	parseWrappedList,
	parseBareList,
}

// ParseModelList parses the listing payload, trying each known shape in a
// fixed priority order.
func ParseModelList(body []byte) ([]models.ModelDescriptor, error) {
	for _, parse := range modelListParsers {
		if list, ok := parse(body); ok {
			return list, nil
		}
	}
	return nil, fmt.Errorf("model list: unrecognized payload shape")
}

// parseWrappedList matches {"success": true, "data": [...]}.
func parseWrappedList(body []byte) ([]models.ModelDescriptor, bool) {
	var wrapped struct {
		Success *bool                    `json:"success"`
		Data    []models.ModelDescriptor `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil || wrapped.Success == nil {
		return nil, false
	}
	if !*wrapped.Success {
		return nil, false
	}
	return wrapped.Data, true
}

// parseBareList matches a top-level JSON array of descriptors.
func parseBareList(body []byte) ([]models.ModelDescriptor, bool) {
	var list []models.ModelDescriptor
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, false
	}
	return list, true
}
