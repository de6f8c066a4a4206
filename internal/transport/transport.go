// Package transport performs the outbound provider calls with bounded
// lifetimes and classifies failures into stable user-facing messages.
//
// Gateways frequently answer 5xx with opaque HTML rather than the
// provider's JSON error shape, so classification checks a fixed status
// table before attempting to parse any body.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrTimeout marks a call aborted by its deadline. Distinct from generic
// transport failure so callers can suggest a retry.
var ErrTimeout = errors.New("request timed out")

// TimeoutMessage is the fixed user-facing message for timed-out calls.
const TimeoutMessage = "The request timed out. Please try again."

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 10 << 20

// maxErrorBodyChars bounds how much raw error text is surfaced before
// falling back to the generic status message.
const maxErrorBodyChars = 300

// Result is a completed HTTP exchange.
type Result struct {
	Status int
	Body   []byte
}

// OK reports whether the exchange returned a 2xx status.
func (r *Result) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Client performs outbound calls. Each call arms its own deadline; the
// underlying http.Client carries no global timeout.
type Client struct {
	http       *http.Client
	devLogging bool
}

// NewClient creates a transport client. devLogging enables server-side
// logging of raw provider error bodies; they never reach the caller.
func NewClient(devLogging bool) *Client {
	return &Client{
		http:       &http.Client{},
		devLogging: devLogging,
	}
}

// Do performs one call with the given timeout. The deadline's timer is
// released on every exit path. A fired deadline surfaces as ErrTimeout.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body io.Reader, timeout time.Duration) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	result := &Result{Status: resp.StatusCode, Body: raw}
	if !result.OK() && c.devLogging {
		log.Debug().
			Int("status", resp.StatusCode).
			Str("url", url).
			Str("body", truncate(string(raw), 2000)).
			Msg("Provider error response")
	}

	return result, nil
}

// ── Error Classification ─────────────────────────────────────

// statusMessages maps statuses that commonly return opaque gateway pages
// to fixed messages, checked before any body parsing.
var statusMessages = map[int]string{
	http.StatusTooManyRequests:     "The AI service is receiving too many requests. Please try again shortly.",
	http.StatusInternalServerError: "The AI service encountered an internal error. Please try again.",
	http.StatusBadGateway:          "The AI service is temporarily unreachable. Please try again.",
	http.StatusServiceUnavailable:  "The AI service is temporarily unavailable. Please try again shortly.",
	http.StatusGatewayTimeout:      "The AI service took too long to respond. Please try again.",
}

var (
	htmlCodeMessageRegex = regexp.MustCompile(`(?s)\b(\d{3})\s*:\s*([^<\r\n]+)`)
	htmlTitleRegex       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlH1Regex          = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	htmlTagRegex         = regexp.MustCompile(`<[^>]+>`)
)

// ErrorMessage extracts a normalized message from a non-2xx exchange.
// Preference order: status table, HTML scraping (code: message, then
// title, then h1), JSON error fields, short raw text, generic fallback.
func ErrorMessage(status int, body []byte) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}

	text := strings.TrimSpace(string(body))

	if isHTML(text) {
		if msg := scrapeHTML(text); msg != "" {
			return msg
		}
		return genericMessage(status)
	}

	if msg := parseJSONError(body); msg != "" {
		return msg
	}

	if text != "" && len(text) <= maxErrorBodyChars {
		return text
	}
	return genericMessage(status)
}

func genericMessage(status int) string {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = "Unknown error"
	}
	return fmt.Sprintf("Request failed: %s (status %d)", statusText, status)
}

func isHTML(text string) bool {
	lower := strings.ToLower(text)
	return strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.Contains(lower, "<body")
}

// scrapeHTML pulls a human-readable message out of a gateway error page.
func scrapeHTML(text string) string {
	if m := htmlCodeMessageRegex.FindStringSubmatch(htmlTagRegex.ReplaceAllString(text, " ")); m != nil {
		return strings.TrimSpace(m[1] + ": " + strings.TrimSpace(m[2]))
	}
	if m := htmlTitleRegex.FindStringSubmatch(text); m != nil {
		if title := strings.TrimSpace(htmlTagRegex.ReplaceAllString(m[1], "")); title != "" {
			return title
		}
	}
	if m := htmlH1Regex.FindStringSubmatch(text); m != nil {
		if h1 := strings.TrimSpace(htmlTagRegex.ReplaceAllString(m[1], "")); h1 != "" {
			return h1
		}
	}
	return ""
}

// parseJSONError extracts error.message, message, or a string error field,
// in that order.
func parseJSONError(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Error) > 0 {
		var errObj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &errObj); err == nil && errObj.Message != "" {
			return errObj.Message
		}
		var errStr string
		if err := json.Unmarshal(payload.Error, &errStr); err == nil && errStr != "" {
			return errStr
		}
	}

	return payload.Message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
