package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dashforge/dashforge/agent-core/internal/prompt"
	"github.com/dashforge/dashforge/agent-core/internal/transport"
	"github.com/dashforge/dashforge/agent-core/internal/validate"
	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// Image parameter allow-lists. Values outside these fail before any
// network call.
var (
	imageSizes = map[string]bool{
		"256x256":   true,
		"512x512":   true,
		"1024x1024": true,
		"1536x1024": true,
		"1024x1536": true,
		"1792x1024": true,
		"1024x1792": true,
		"auto":      true,
	}
	imageOutputFormats = map[string]bool{
		"png":  true,
		"jpeg": true,
		"webp": true,
	}
)

const defaultImageSize = "1024x1024"

// runImage handles image-generation agents. The prompt comes from the
// explicit body prompt when present, falling back to the general form
// composition used for chat.
func (d *Dispatcher) runImage(ctx context.Context, agent *models.AgentConfig, data *models.AgentRequestData) *models.AgentResponse {
	if errs := validate.Fields(agent, data.FormValues); len(errs) > 0 {
		return models.ValidationFailure(errs)
	}

	body, _ := payloadParams(agent, data)

	imagePrompt := derivePrompt(body, agent, data)
	if imagePrompt == "" {
		return models.Failure(msgEmptyPrompt)
	}

	size := stringParam(body, "size", defaultImageSize)
	if !imageSizes[size] {
		return models.Failure(fmt.Sprintf("Unsupported image size %q", size))
	}

	payload := map[string]any{
		"model":  agent.Model,
		"prompt": imagePrompt,
		"size":   size,
		"n":      1,
	}
	if format := stringParam(body, "output_format", ""); format != "" {
		if !imageOutputFormats[format] {
			return models.Failure(fmt.Sprintf("Unsupported image output format %q", format))
		}
		payload["output_format"] = format
	}
	if quality := stringParam(body, "quality", ""); quality != "" {
		payload["quality"] = quality
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return models.Failure(msgUnreachable)
	}

	result, err := d.client.Do(ctx, http.MethodPost,
		d.cfg.Provider.BaseURL+"/images/generations",
		d.authHeaders("application/json"),
		bytes.NewReader(raw),
		d.cfg.Timeouts.Image,
	)
	if err != nil {
		return d.transportFailure(err)
	}
	if !result.OK() {
		return models.Failure(transport.ErrorMessage(result.Status, result.Body))
	}

	img, ok := parseImagePayload(result.Body)
	if !ok {
		return models.Failure(msgNoImageData)
	}

	return &models.AgentResponse{
		Success: true,
		Data: &models.ResponseData{
			Response: stringifyDescriptor(img),
			Format:   models.FormatImage,
		},
	}
}

// derivePrompt prefers an explicit body prompt over form composition.
func derivePrompt(body map[string]any, agent *models.AgentConfig, data *models.AgentRequestData) string {
	if p, ok := body["prompt"].(string); ok {
		if cleaned := validate.SanitizePrompt(p); cleaned != "" {
			return cleaned
		}
	}
	return validate.SanitizePrompt(prompt.Compose(agent, data))
}

// stringParam reads a string parameter from the payload section, trimmed
// and lowercased for allow-list checks.
func stringParam(body map[string]any, key, fallback string) string {
	if v, ok := body[key].(string); ok {
		if trimmed := strings.ToLower(strings.TrimSpace(v)); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
