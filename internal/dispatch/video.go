package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dashforge/dashforge/agent-core/internal/transport"
	"github.com/dashforge/dashforge/agent-core/internal/validate"
	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// Video parameter bounds and allow-lists.
var (
	videoSizes = map[string]bool{
		"1280x720":  true,
		"720x1280":  true,
		"1920x1080": true,
		"1080x1920": true,
	}
	videoOutputFormats = map[string]bool{
		"mp4":  true,
		"webm": true,
	}
)

const (
	defaultVideoSize    = "1280x720"
	defaultVideoSeconds = 4
	maxVideoSeconds     = 60
)

// runVideo handles video-generation agents. Generation is asynchronous:
// the provider answers with a queued job descriptor, which passes through
// unmodified. A reference file switches the payload to multipart form data.
func (d *Dispatcher) runVideo(ctx context.Context, agent *models.AgentConfig, data *models.AgentRequestData) *models.AgentResponse {
	if errs := validate.Fields(agent, data.FormValues); len(errs) > 0 {
		return models.ValidationFailure(errs)
	}

	body, _ := payloadParams(agent, data)

	videoPrompt := derivePrompt(body, agent, data)
	if videoPrompt == "" {
		return models.Failure(msgEmptyPrompt)
	}

	size := stringParam(body, "size", defaultVideoSize)
	if !videoSizes[size] {
		return models.Failure(fmt.Sprintf("Unsupported video size %q", size))
	}

	seconds := intParam(body, "seconds", defaultVideoSeconds)
	if seconds < 1 || seconds > maxVideoSeconds {
		return models.Failure(fmt.Sprintf("Video duration must be between 1 and %d seconds", maxVideoSeconds))
	}

	outputFormat := stringParam(body, "output_format", "")
	if outputFormat != "" && !videoOutputFormats[outputFormat] {
		return models.Failure(fmt.Sprintf("Unsupported video output format %q", outputFormat))
	}

	var payload io.Reader
	var contentType string
	var err error
	if data.File != nil {
		payload, contentType, err = videoMultipart(agent.Model, videoPrompt, size, seconds, outputFormat, data.File)
	} else {
		payload, contentType, err = videoJSON(agent.Model, videoPrompt, size, seconds, outputFormat)
	}
	if err != nil {
		return models.Failure(msgUnreachable)
	}

	result, err := d.client.Do(ctx, http.MethodPost,
		d.cfg.Provider.BaseURL+"/videos",
		d.authHeaders(contentType),
		payload,
		d.cfg.Timeouts.Video,
	)
	if err != nil {
		return d.transportFailure(err)
	}
	if !result.OK() {
		return models.Failure(transport.ErrorMessage(result.Status, result.Body))
	}

	job, estimatedCost, ok := parseVideoPayload(result.Body)
	if !ok {
		return models.Failure(msgNoVideoJob)
	}

	return &models.AgentResponse{
		Success: true,
		Data: &models.ResponseData{
			Response: stringifyDescriptor(job),
			Format:   models.FormatVideo,
			VideoUsage: &models.VideoUsage{
				DurationSeconds: seconds,
				EstimatedCost:   estimatedCost,
			},
		},
	}
}

// videoJSON builds the JSON payload used when no reference file is attached.
func videoJSON(model, videoPrompt, size string, seconds int, outputFormat string) (io.Reader, string, error) {
	payload := map[string]any{
		"model":   model,
		"prompt":  videoPrompt,
		"size":    size,
		"seconds": seconds,
	}
	if outputFormat != "" {
		payload["output_format"] = outputFormat
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(raw), "application/json", nil
}

// videoMultipart builds the multipart payload carrying the reference file.
func videoMultipart(model, videoPrompt, size string, seconds int, outputFormat string, file *models.FileAttachment) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"model":   model,
		"prompt":  videoPrompt,
		"size":    size,
		"seconds": fmt.Sprintf("%d", seconds),
	}
	if outputFormat != "" {
		fields["output_format"] = outputFormat
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	part, err := w.CreateFormFile("input_reference", file.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// intParam reads an integer parameter, accepting the float64 that JSON
// decoding produces.
func intParam(body map[string]any, key string, fallback int) int {
	switch v := body[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
