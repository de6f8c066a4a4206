// Package models defines the shared data model for the agent orchestration
// core: agent configurations, per-invocation request data, the uniform
// response envelope, and model/pricing descriptors.
//
// Everything here is plain data. Behavior lives in internal/ packages.
package models

import "encoding/json"

// ── Agent Kind ───────────────────────────────────────────────

// AgentKind selects which request builder handles an agent.
type AgentKind string

const (
	KindChat         AgentKind = "chat"
	KindVoice        AgentKind = "voice-transcription"
	KindImage        AgentKind = "image-generation"
	KindVideo        AgentKind = "video-generation"
	KindGraph        AgentKind = "graph-generation"
	KindOrchestrator AgentKind = "orchestrator"
	KindSearch       AgentKind = "search"
)

// Valid reports whether k is one of the closed set of agent kinds.
func (k AgentKind) Valid() bool {
	switch k {
	case KindChat, KindVoice, KindImage, KindVideo, KindGraph, KindOrchestrator, KindSearch:
		return true
	}
	return false
}

// NeedsModel reports whether the kind requires a declared model identifier.
// Chat-style kinds (chat, graph, orchestrator, search) call the chat
// completion endpoint and cannot run without one.
func (k AgentKind) NeedsModel() bool {
	switch k {
	case KindChat, KindGraph, KindOrchestrator, KindSearch:
		return true
	}
	return false
}

// ── Output Format ────────────────────────────────────────────

// OutputFormat is the output contract an agent declares.
type OutputFormat string

const (
	FormatString        OutputFormat = "string"
	FormatJSON          OutputFormat = "json"
	FormatTable         OutputFormat = "table"
	FormatImage         OutputFormat = "image"
	FormatVideo         OutputFormat = "video"
	FormatSearchResults OutputFormat = "search-results"
	FormatSearchCard    OutputFormat = "search-card"
)

// PlainText reports whether the format is the generic textual format.
// Only plain-text agents receive the markdown/citation/diagram rule blocks
// in the system prompt.
func (f OutputFormat) PlainText() bool {
	return f == FormatString || f == ""
}

// Structured reports whether the format demands structured JSON output
// from a chat-style call.
func (f OutputFormat) Structured() bool {
	switch f {
	case FormatJSON, FormatTable, FormatSearchResults, FormatSearchCard:
		return true
	}
	return false
}

// ── Render Fields ────────────────────────────────────────────

// Component is the UI component kind of a render field. The composer has
// one exhaustive mapping from component kind to prompt-text fragment.
type Component string

const (
	ComponentText        Component = "text"
	ComponentTextarea    Component = "textarea"
	ComponentNumber      Component = "number"
	ComponentSelect      Component = "select"
	ComponentRadio       Component = "radio"
	ComponentMultiSelect Component = "multiselect"
	ComponentChecklist   Component = "checklist"
	ComponentTags        Component = "tags"
	ComponentToggle      Component = "toggle"
	ComponentDate        Component = "date"
	ComponentLanguage    Component = "language-select"
)

// MultiValued reports whether the component carries a list of values.
func (c Component) MultiValued() bool {
	switch c {
	case ComponentMultiSelect, ComponentChecklist, ComponentTags:
		return true
	}
	return false
}

// OptionBased reports whether the component resolves values against a
// declared option list.
func (c Component) OptionBased() bool {
	switch c {
	case ComponentSelect, ComponentRadio, ComponentMultiSelect, ComponentChecklist:
		return true
	}
	return false
}

// FieldOption is one selectable option of an option-based render field.
type FieldOption struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// FieldRules are the declared validation rules of a render field.
type FieldRules struct {
	Required  bool   `json:"required,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	MinLength int    `json:"min_length,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
}

// Field sections. A sectioned field's value goes into the outbound payload
// instead of the visible prompt.
const (
	SectionBody  = "body"
	SectionExtra = "extra"
)

// RenderField is a schema-described input descriptor. It drives both the
// dashboard form control (out of scope here) and the prompt/payload content.
type RenderField struct {
	Name      string        `json:"name"`
	Label     string        `json:"label,omitempty"`
	Component Component     `json:"component"`
	Options   []FieldOption `json:"options,omitempty"`

	// Section routes the value into the request payload ("body"/"extra")
	// instead of the composed prompt. Empty means prompt.
	Section string `json:"section,omitempty"`

	// Route marks the field as handled by a dedicated API route; routed
	// fields are excluded from validation and prompt composition.
	Route string `json:"route,omitempty"`

	// Order controls prompt placement. Zero or negative sorts last.
	Order int `json:"order,omitempty"`

	Rules *FieldRules `json:"rules,omitempty"`
}

// PreloadRoute describes an external context source fetched and embedded
// into the system prompt before the provider call.
type PreloadRoute struct {
	Route           string            `json:"route"`
	Method          string            `json:"method,omitempty"`
	JSONPath        string            `json:"jsonPath,omitempty"`
	QueryParameters map[string]string `json:"queryParameters,omitempty"`
}

// ── Agent Configuration ──────────────────────────────────────

// AgentConfig is the immutable per-agent definition supplied by the
// dashboard layer. The core never persists it.
type AgentConfig struct {
	ID            string         `json:"id"`
	Kind          AgentKind      `json:"kind"`
	Model         string         `json:"model,omitempty"`
	OutputFormat  OutputFormat   `json:"output_format,omitempty"`
	Fields        []RenderField  `json:"fields,omitempty"`
	SystemPrompt  string         `json:"system_prompt,omitempty"`
	PreloadRoutes []PreloadRoute `json:"preload_routes,omitempty"`

	// NextAction is an output hint echoed back to the dashboard.
	NextAction string `json:"next_action,omitempty"`
}

// ── Request Data ─────────────────────────────────────────────

// FileAttachment is an optional uploaded file (video reference image,
// audio for transcription).
type FileAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Annotation is one group of requested changes against a prior AI output.
type Annotation struct {
	Title    string   `json:"title"`
	Comments []string `json:"comments"`
}

// AgentRequestData is the per-invocation payload. Created per request and
// discarded after the call completes.
type AgentRequestData struct {
	Prompt     string          `json:"prompt,omitempty"`
	FormValues map[string]any  `json:"form_values,omitempty"`
	File       *FileAttachment `json:"file,omitempty"`

	// Edit intent: annotations applied against a previous AI response.
	PreviousResponse string       `json:"previous_response,omitempty"`
	Annotations      []Annotation `json:"annotations,omitempty"`

	// Direct API callers bypass form values with explicit payload maps
	// and optional extra system-prompt instructions.
	Body         map[string]any `json:"body,omitempty"`
	ExtraBody    map[string]any `json:"extra_body,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
}

// ── Response Envelope ────────────────────────────────────────

// FieldError is one per-field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Pricing is the computed cost of one call, in USD.
type Pricing struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// TokenUsage is token accounting for chat-style calls. Pricing is nil when
// the model's unit prices are unknown; nil means unknown, not zero.
type TokenUsage struct {
	PromptTokens     int64    `json:"promptTokens"`
	CompletionTokens int64    `json:"completionTokens"`
	TotalTokens      int64    `json:"totalTokens"`
	Pricing          *Pricing `json:"pricing"`
}

// VideoUsage is the usage block for video generation, keyed by duration
// rather than tokens.
type VideoUsage struct {
	DurationSeconds int     `json:"durationSeconds"`
	EstimatedCost   float64 `json:"estimatedCost"`
}

// AgentMeta echoes agent metadata back to the caller.
type AgentMeta struct {
	ID         string    `json:"id"`
	Kind       AgentKind `json:"kind"`
	Model      string    `json:"model,omitempty"`
	NextAction string    `json:"nextAction,omitempty"`
}

// ResponseData is the normalized success payload.
type ResponseData struct {
	// Response is always one of: plain string, JSON string, or a
	// stringified descriptor selected by Format.
	Response   string       `json:"response"`
	Format     OutputFormat `json:"format"`
	TokenUsage *TokenUsage  `json:"tokenUsage,omitempty"`
	VideoUsage *VideoUsage  `json:"videoUsage,omitempty"`
	DurationMs int64        `json:"durationMs"`
	Agent      AgentMeta    `json:"agent"`
}

// AgentResponse is the uniform result envelope. Every failure path in the
// core returns one of these; nothing is fatal to the host process.
type AgentResponse struct {
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
	ValidationErrors []FieldError  `json:"validationErrors,omitempty"`
	Data             *ResponseData `json:"data,omitempty"`

	// RequestID matches the request_id on the dispatcher's log events, so a
	// caller-reported failure can be found in the logs.
	RequestID string `json:"requestId,omitempty"`
}

// Failure builds a failed response with a stable user-facing message.
func Failure(msg string) *AgentResponse {
	return &AgentResponse{Success: false, Error: msg}
}

// ValidationFailure builds a failed response carrying per-field errors.
func ValidationFailure(errs []FieldError) *AgentResponse {
	return &AgentResponse{
		Success:          false,
		Error:            "Validation failed",
		ValidationErrors: errs,
	}
}

// ── Model Metadata ───────────────────────────────────────────

// ModelPrice is a model's unit pricing in USD per one million tokens.
type ModelPrice struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// ModelDescriptor is one entry of the model listing endpoint.
type ModelDescriptor struct {
	ID      string      `json:"id"`
	Pricing *ModelPrice `json:"pricing,omitempty"`
}

// ── Chat Messages ────────────────────────────────────────────

// ChatMessage is one message of a chat completion payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stringify renders v as compact JSON, falling back to an empty object on
// marshal failure. Used when embedding structured payloads in the envelope.
func Stringify(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
