// Package preload fetches external reference context ahead of prompt
// assembly. Routes are fetched concurrently; results come back concatenated
// in declaration order so the assembled prompt stays deterministic for a
// given set of responses.
package preload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// Fetcher retrieves the concatenated text of a set of preload routes.
type Fetcher interface {
	Fetch(ctx context.Context, baseURL string, routes []models.PreloadRoute) (string, error)
}

// maxBodyBytes caps how much of a preload response is read. Reference
// context beyond this is truncated rather than ballooning the prompt.
const maxBodyBytes = 1 << 20

// HTTPFetcher is the HTTP implementation of Fetcher.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with a bounded per-batch HTTP client.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch retrieves every route concurrently and concatenates the non-empty
// results in route order. Route failures are soft: a failing route is
// logged and skipped so the context the other routes fetched still reaches
// the prompt. The error return covers batch-level failures only, such as a
// canceled context.
func (f *HTTPFetcher) Fetch(ctx context.Context, baseURL string, routes []models.PreloadRoute) (string, error) {
	if len(routes) == 0 {
		return "", nil
	}

	results := make([]string, len(routes))
	var g errgroup.Group

	for i, route := range routes {
		i, route := i, route
		g.Go(func() error {
			text, err := f.fetchOne(ctx, baseURL, route)
			if err != nil {
				log.Warn().Str("route", route.Route).Err(err).Msg("Preload route failed, continuing without it")
				return nil
			}
			results[i] = text
			return nil
		})
	}

	g.Wait()
	if ctx.Err() != nil {
		return "", fmt.Errorf("preload canceled: %w", ctx.Err())
	}

	var nonEmpty []string
	for _, r := range results {
		if strings.TrimSpace(r) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(r))
		}
	}
	return strings.Join(nonEmpty, "\n\n"), nil
}

func (f *HTTPFetcher) fetchOne(ctx context.Context, baseURL string, route models.PreloadRoute) (string, error) {
	method := route.Method
	if method == "" {
		method = http.MethodGet
	}

	target := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(route.Route, "/")
	if len(route.QueryParameters) > 0 {
		q := url.Values{}
		for k, v := range route.QueryParameters {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if route.JSONPath != "" {
		return extractPath(body, route.JSONPath)
	}
	return string(body), nil
}

// extractPath walks a dot-separated path into a JSON document and renders
// the value it lands on as text. Non-JSON bodies fall back to raw text.
func extractPath(body []byte, path string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return string(body), nil
	}

	current := doc
	for _, step := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("json path %q: not an object at %q", path, step)
		}
		current, ok = obj[step]
		if !ok {
			return "", fmt.Errorf("json path %q: missing key %q", path, step)
		}
	}

	return renderValue(current), nil
}

// renderValue flattens a JSON value to prompt-embeddable text. Strings pass
// through; lists join line by line; objects render as compact JSON.
func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, renderValue(item))
		}
		return strings.Join(parts, "\n")
	default:
		return models.Stringify(v)
	}
}
