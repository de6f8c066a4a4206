package dispatch

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// ── Chat ─────────────────────────────────────────────────────

type chatPayload struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// parseChatPayload extracts the message content and token usage from a 2xx
// chat completion response. A 2xx body without choices or content is a
// malformed response, reported via ok=false rather than a panic.
func parseChatPayload(body []byte) (content string, usage *models.TokenUsage, ok bool) {
	var payload chatPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil, false
	}
	if len(payload.Choices) == 0 {
		return "", nil, false
	}
	content = payload.Choices[0].Message.Content
	if content == "" {
		return "", nil, false
	}

	usage = &models.TokenUsage{
		PromptTokens:     payload.Usage.PromptTokens,
		CompletionTokens: payload.Usage.CompletionTokens,
		TotalTokens:      payload.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return content, usage, true
}

// ── JSON Extraction ──────────────────────────────────────────

// ExtractJSON pulls a JSON object or array out of raw model text. The
// whole text is tried first; otherwise the first balanced {...} or [...]
// region that parses is returned, compacted. ok is false when nothing
// usable is embedded.
func ExtractJSON(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	// Models often fence JSON; strip a leading code fence before scanning.
	trimmed = stripCodeFence(trimmed)

	if compacted, ok := compactJSON(trimmed); ok {
		return compacted, true
	}

	for i := 0; i < len(trimmed); i++ {
		open := trimmed[i]
		if open != '{' && open != '[' {
			continue
		}
		if end := matchBalanced(trimmed, i); end > i {
			if compacted, ok := compactJSON(trimmed[i : end+1]); ok {
				return compacted, true
			}
		}
	}

	return "", false
}

// stripCodeFence unwraps ```json ... ``` fences.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := text[3:]
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		body = body[idx+1:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// matchBalanced returns the index of the bracket closing the one at start,
// honoring strings and escapes, or -1 when unbalanced.
func matchBalanced(text string, start int) int {
	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func compactJSON(candidate string) (string, bool) {
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	first := candidate[0]
	if first != '{' && first != '[' {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(candidate)); err != nil {
		return "", false
	}
	return buf.String(), true
}

// ── Image ────────────────────────────────────────────────────

// imageDescriptor is the normalized image payload embedded in the envelope.
type imageDescriptor struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// parseImagePayload extracts the first generated image from a 2xx response.
func parseImagePayload(body []byte) (*imageDescriptor, bool) {
	var payload struct {
		Data []imageDescriptor `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false
	}
	if len(payload.Data) == 0 {
		return nil, false
	}
	img := payload.Data[0]
	if img.URL == "" && img.B64JSON == "" {
		return nil, false
	}
	return &img, true
}

// ── Video ────────────────────────────────────────────────────

// videoJob is the normalized queued-job descriptor passed through to the
// caller. URL stays null until the provider finishes rendering.
type videoJob struct {
	VideoID string  `json:"video_id"`
	Status  string  `json:"status"`
	URL     *string `json:"url"`
}

// parseVideoPayload extracts the queued job descriptor and any provider
// cost estimate. The descriptor passes through unmodified; a missing job
// id makes the response malformed.
func parseVideoPayload(body []byte) (job *videoJob, estimatedCost float64, ok bool) {
	var payload struct {
		Data []struct {
			ID            string  `json:"id"`
			Status        string  `json:"status"`
			URL           string  `json:"url"`
			EstimatedCost float64 `json:"estimated_cost"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, 0, false
	}
	if len(payload.Data) == 0 || payload.Data[0].ID == "" {
		return nil, 0, false
	}

	entry := payload.Data[0]
	status := entry.Status
	if status == "" {
		status = "queued"
	}
	job = &videoJob{VideoID: entry.ID, Status: status}
	if entry.URL != "" {
		job.URL = &entry.URL
	}
	return job, entry.EstimatedCost, true
}

// ── Voice ────────────────────────────────────────────────────

// parseTranscriptPayload extracts the transcript text.
func parseTranscriptPayload(body []byte) (string, bool) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	if payload.Text == "" {
		return "", false
	}
	return payload.Text, true
}

// stringifyDescriptor renders a normalized descriptor for the envelope.
func stringifyDescriptor(v any) string {
	return models.Stringify(v)
}
