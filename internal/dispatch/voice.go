package dispatch

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"

	"github.com/dashforge/dashforge/agent-core/internal/transport"
	"github.com/dashforge/dashforge/agent-core/internal/validate"
	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

const defaultTranscriptionModel = "whisper-1"

// runVoice handles voice-transcription agents: a multipart upload of the
// audio attachment, normalized to a plain-text transcript.
func (d *Dispatcher) runVoice(ctx context.Context, agent *models.AgentConfig, data *models.AgentRequestData) *models.AgentResponse {
	if errs := validate.Fields(agent, data.FormValues); len(errs) > 0 {
		return models.ValidationFailure(errs)
	}
	if data.File == nil || len(data.File.Data) == 0 {
		return models.Failure(msgMissingAudioFile)
	}

	model := agent.Model
	if model == "" {
		model = defaultTranscriptionModel
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("model", model); err != nil {
		return models.Failure(msgUnreachable)
	}
	part, err := w.CreateFormFile("file", data.File.Name)
	if err != nil {
		return models.Failure(msgUnreachable)
	}
	if _, err := part.Write(data.File.Data); err != nil {
		return models.Failure(msgUnreachable)
	}
	if err := w.Close(); err != nil {
		return models.Failure(msgUnreachable)
	}

	result, err := d.client.Do(ctx, http.MethodPost,
		d.cfg.Provider.BaseURL+"/audio/transcriptions",
		d.authHeaders(w.FormDataContentType()),
		&buf,
		d.cfg.Timeouts.Voice,
	)
	if err != nil {
		return d.transportFailure(err)
	}
	if !result.OK() {
		return models.Failure(transport.ErrorMessage(result.Status, result.Body))
	}

	transcript, ok := parseTranscriptPayload(result.Body)
	if !ok {
		return models.Failure(msgNoTranscript)
	}

	return &models.AgentResponse{
		Success: true,
		Data: &models.ResponseData{
			Response: transcript,
			Format:   models.FormatString,
		},
	}
}
