package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/dashforge/dashforge/agent-core/internal/prompt"
	"github.com/dashforge/dashforge/agent-core/internal/transport"
	"github.com/dashforge/dashforge/agent-core/internal/validate"
	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// runChat handles chat-style kinds (chat, graph, orchestrator, search):
// field validation, prompt composition, system-prompt assembly, the chat
// completion call, and token/pricing accounting.
func (d *Dispatcher) runChat(ctx context.Context, agent *models.AgentConfig, data *models.AgentRequestData, baseURL string) *models.AgentResponse {
	if errs := validate.Fields(agent, data.FormValues); len(errs) > 0 {
		return models.ValidationFailure(errs)
	}

	userPrompt := validate.SanitizePrompt(prompt.Compose(agent, data))
	if userPrompt == "" {
		return models.Failure(msgEmptyPrompt)
	}

	assembled := d.assembler.Assemble(ctx, agent, data.FormValues, data.Body, data.Instructions, baseURL)

	body, extra := payloadParams(agent, data)
	payload := map[string]any{
		"model": agent.Model,
		"messages": []models.ChatMessage{
			{Role: "system", Content: assembled.SystemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if agent.OutputFormat.Structured() {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	for k, v := range body {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}
	for k, v := range extra {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return models.Failure(msgUnreachable)
	}

	result, err := d.client.Do(ctx, http.MethodPost,
		d.cfg.Provider.BaseURL+"/chat/completions",
		d.authHeaders("application/json"),
		bytes.NewReader(raw),
		d.cfg.Timeouts.Chat,
	)
	if err != nil {
		return d.transportFailure(err)
	}
	if !result.OK() {
		return models.Failure(transport.ErrorMessage(result.Status, result.Body))
	}

	content, usage, ok := parseChatPayload(result.Body)
	if !ok {
		return models.Failure(msgNoContent)
	}

	responseText := content
	format := agent.OutputFormat
	if format == "" {
		format = models.FormatString
	}

	// JSON-forcing calls still sometimes wrap the payload in prose; the
	// whole call fails when nothing usable can be extracted.
	if agent.OutputFormat.Structured() {
		extracted, ok := ExtractJSON(content)
		if !ok {
			return models.Failure(msgJSONExtraction)
		}
		responseText = extracted
	}

	usage.Pricing = d.pricing.ComputePricing(ctx, agent.Model, usage.PromptTokens, usage.CompletionTokens)

	return &models.AgentResponse{
		Success: true,
		Data: &models.ResponseData{
			Response:   responseText,
			Format:     format,
			TokenUsage: usage,
		},
	}
}
