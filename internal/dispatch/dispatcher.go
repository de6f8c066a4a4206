// Package dispatch routes validated agent requests to the per-kind request
// builders and normalizes every outcome into the shared response envelope.
//
// Each builder follows the same shape: validate → compose → transport →
// normalize. Builders share no mutable state; every call arms its own
// timeout. The only process-wide state touched here is the read-mostly
// model metadata cache used for pricing.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dashforge/dashforge/agent-core/internal/config"
	"github.com/dashforge/dashforge/agent-core/internal/modelcache"
	"github.com/dashforge/dashforge/agent-core/internal/prompt"
	"github.com/dashforge/dashforge/agent-core/internal/transport"
	"github.com/dashforge/dashforge/agent-core/internal/validate"
	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// Stable failure messages. Raw provider or internal error text never
// leaves the core; it goes to the server log when dev logging is on.
const (
	msgEmptyPrompt      = "Prompt is empty after sanitization"
	msgUnreachable      = "Failed to reach the AI service. Please try again."
	msgNoContent        = "AI response did not include any content"
	msgNoImageData      = "AI response did not include image data"
	msgNoVideoJob       = "AI response did not include a video job id"
	msgNoTranscript     = "AI response did not include a transcript"
	msgJSONExtraction   = "Failed to extract valid JSON from AI response"
	msgMissingAudioFile = "Voice transcription requires an audio file"
)

// Dispatcher is the single orchestration entry point the dashboard layer
// depends on.
type Dispatcher struct {
	cfg       *config.Config
	client    *transport.Client
	pricing   *modelcache.Cache
	assembler *prompt.Assembler
}

// New creates a dispatcher.
func New(cfg *config.Config, client *transport.Client, pricing *modelcache.Cache, assembler *prompt.Assembler) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		client:    client,
		pricing:   pricing,
		assembler: assembler,
	}
}

// Dispatch runs one agent request end to end and always returns a normal
// envelope; no failure here is fatal to the host process.
func (d *Dispatcher) Dispatch(ctx context.Context, agent *models.AgentConfig, data *models.AgentRequestData, baseURL string) *models.AgentResponse {
	start := time.Now()
	requestID := uuid.New().String()

	if err := validate.Agent(agent); err != nil {
		resp := models.Failure(err.Error())
		resp.RequestID = requestID
		return resp
	}
	if data == nil {
		data = &models.AgentRequestData{}
	}

	var resp *models.AgentResponse
	switch agent.Kind {
	case models.KindChat, models.KindGraph, models.KindOrchestrator, models.KindSearch:
		resp = d.runChat(ctx, agent, data, baseURL)
	case models.KindImage:
		resp = d.runImage(ctx, agent, data)
	case models.KindVideo:
		resp = d.runVideo(ctx, agent, data)
	case models.KindVoice:
		resp = d.runVoice(ctx, agent, data)
	default:
		// validate.Agent closes the kind set; this is unreachable but the
		// contract is explicit: no unknown kind is silently treated as chat.
		resp = models.Failure("unsupported agent kind " + string(agent.Kind))
		resp.RequestID = requestID
		return resp
	}

	resp.RequestID = requestID
	elapsed := time.Since(start)
	if resp.Success && resp.Data != nil {
		resp.Data.DurationMs = elapsed.Milliseconds()
		resp.Data.Agent = models.AgentMeta{
			ID:         agent.ID,
			Kind:       agent.Kind,
			Model:      agent.Model,
			NextAction: agent.NextAction,
		}
	}

	event := log.Info()
	if !resp.Success {
		event = log.Warn().Str("error", resp.Error)
	}
	event.
		Str("request_id", requestID).
		Str("agent", agent.ID).
		Str("kind", string(agent.Kind)).
		Bool("success", resp.Success).
		Dur("elapsed", elapsed).
		Msg("Agent request dispatched")

	return resp
}

// transportFailure maps a transport error to its stable message.
func (d *Dispatcher) transportFailure(err error) *models.AgentResponse {
	if err == transport.ErrTimeout {
		return models.Failure(transport.TimeoutMessage)
	}
	if d.cfg.DevLogging {
		log.Debug().Err(err).Msg("Transport call failed")
	}
	return models.Failure(msgUnreachable)
}

// authHeaders builds the provider auth headers for JSON calls.
func (d *Dispatcher) authHeaders(contentType string) map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + d.cfg.Provider.APIKey,
	}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return headers
}

// payloadParams splits sectioned field values and the caller's explicit
// maps into the main and secondary payload sections. Explicit maps win
// over form values on key collisions.
func payloadParams(agent *models.AgentConfig, data *models.AgentRequestData) (body, extra map[string]any) {
	body = make(map[string]any)
	extra = make(map[string]any)

	for _, field := range agent.Fields {
		value, ok := data.FormValues[field.Name]
		if !ok || value == nil {
			continue
		}
		switch field.Section {
		case models.SectionBody:
			body[field.Name] = value
		case models.SectionExtra:
			extra[field.Name] = value
		}
	}

	for k, v := range data.Body {
		body[k] = v
	}
	for k, v := range data.ExtraBody {
		extra[k] = v
	}

	return body, extra
}
