package prompt

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dashforge/dashforge/agent-core/internal/preload"
	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// SegmentDivider separates system-prompt segments. Empty segments are
// dropped entirely, never leaving a stray divider.
const SegmentDivider = "\n\n---\n\n"

// timeLayout is the fixed human-readable format of the baseline preamble.
const timeLayout = "Monday, 2 January 2006 at 15:04 MST"

// preloadHeading introduces the embedded reference context. Later segments
// (citation rules) refer to this section by position, so the heading and
// the segment order are invariants.
const preloadHeading = "## Organization reference context"

// organizationContextRoute is the canonical preload source included for
// every agent unless the agent's own preload list already names it.
var organizationContextRoute = models.PreloadRoute{
	Route:    "/api/v1/organization/context",
	Method:   "GET",
	JSONPath: "data",
}

// defaultPreloadWait bounds how long assembly waits for in-flight preload
// fetches before emitting the prompt without that context.
const defaultPreloadWait = 15 * time.Second

// Assembled is the result of system-prompt assembly.
type Assembled struct {
	SystemPrompt string

	// IsLoadingPreload is true when a preload fetch was still in flight
	// when assembly finished. It reflects in-flight state only; a failed
	// fetch is logged and reported as not loading.
	IsLoadingPreload bool
}

// Assembler builds the layered system prompt. Segments are concatenated in
// a fixed order:
//
//	time preamble → agent fragment → option descriptions → caller
//	instructions → preloaded context → kind rules → markdown rules →
//	citation rules → diagram syntax rules
//
// The last three apply only to plain-text output formats.
type Assembler struct {
	fetcher     preload.Fetcher
	style       *StyleGuide
	appBaseURL  string
	now         func() time.Time
	preloadWait time.Duration
}

// AssemblerOption customizes an Assembler.
type AssemblerOption func(*Assembler)

// WithClock injects the time source. Tests use this to pin the preamble.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

// WithPreloadWait bounds the wait for preload fetches.
func WithPreloadWait(d time.Duration) AssemblerOption {
	return func(a *Assembler) { a.preloadWait = d }
}

// NewAssembler creates an assembler. fetcher may be nil, in which case the
// preload segment is always absent. A nil style falls back to the default
// style guide.
func NewAssembler(fetcher preload.Fetcher, style *StyleGuide, appBaseURL string, opts ...AssemblerOption) *Assembler {
	if style == nil {
		style = DefaultStyleGuide()
	}
	a := &Assembler{
		fetcher:     fetcher,
		style:       style,
		appBaseURL:  appBaseURL,
		now:         time.Now,
		preloadWait: defaultPreloadWait,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type preloadResult struct {
	text string
	err  error
}

// Assemble builds the system prompt for one request. baseURL overrides the
// configured app base URL for preload fetches when non-empty.
func (a *Assembler) Assemble(ctx context.Context, agent *models.AgentConfig, formValues, bodyParams map[string]any, instructions, baseURL string) Assembled {
	// Start the preload fetch first so it overlaps segment construction.
	var resultCh chan preloadResult
	if a.fetcher != nil {
		routes := mergeRoutes(agent.PreloadRoutes)
		target := baseURL
		if target == "" {
			target = a.appBaseURL
		}
		resultCh = make(chan preloadResult, 1)
		go func() {
			text, err := a.fetcher.Fetch(ctx, target, routes)
			resultCh <- preloadResult{text: text, err: err}
		}()
	}

	segments := make([]string, 0, 9)

	segments = append(segments, "Current date and time: "+a.now().Format(timeLayout)+".")
	segments = append(segments, strings.TrimSpace(agent.SystemPrompt))
	segments = append(segments, optionDescriptions(agent.Fields, formValues, bodyParams))
	segments = append(segments, strings.TrimSpace(instructions))

	preloadSegment, loading := a.awaitPreload(ctx, agent.ID, resultCh)
	segments = append(segments, preloadSegment)

	segments = append(segments, a.kindRules(agent, formValues, bodyParams))

	if agent.OutputFormat.PlainText() {
		segments = append(segments,
			strings.TrimSpace(a.style.MarkdownRules),
			strings.TrimSpace(a.style.CitationRules),
			strings.TrimSpace(a.style.MermaidRules),
		)
	}

	return Assembled{
		SystemPrompt:     joinSegments(segments),
		IsLoadingPreload: loading,
	}
}

// awaitPreload waits for the in-flight fetch up to the preload budget.
// Failures are soft: logged, never surfaced, prompt emitted without the
// context segment.
func (a *Assembler) awaitPreload(ctx context.Context, agentID string, resultCh chan preloadResult) (segment string, loading bool) {
	if resultCh == nil {
		return "", false
	}

	timer := time.NewTimer(a.preloadWait)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			log.Warn().Str("agent", agentID).Err(res.err).Msg("Preload context fetch failed, continuing without it")
			return "", false
		}
		if strings.TrimSpace(res.text) == "" {
			return "", false
		}
		return preloadHeading + "\n\n" + strings.TrimSpace(res.text), false

	case <-timer.C:
		log.Warn().Str("agent", agentID).Msg("Preload context fetch still in flight, continuing without it")
		return "", true

	case <-ctx.Done():
		return "", true
	}
}

// kindRules returns the kind-specific rule block, if any.
func (a *Assembler) kindRules(agent *models.AgentConfig, formValues, bodyParams map[string]any) string {
	switch agent.Kind {
	case models.KindGraph:
		return strings.TrimSpace(a.style.GraphRules)

	case models.KindImage:
		general := strings.TrimSpace(a.style.ImageGeneralRules)
		specific := a.imageStyleRules(formValues, bodyParams)
		// The specific block never repeats the general preamble; append it
		// only when it adds something.
		if specific == "" || specific == general {
			return general
		}
		if general == "" {
			return specific
		}
		return general + "\n\n" + specific

	default:
		return ""
	}
}

// imageStyleRules resolves the selected image sub-style from either value
// source and returns its specific block.
func (a *Assembler) imageStyleRules(formValues, bodyParams map[string]any) string {
	for _, source := range []map[string]any{bodyParams, formValues} {
		for _, key := range []string{"style", "imageStyle", "image_style"} {
			if name := scalarValue(source[key]); name != "" {
				if block, ok := a.style.ImageStyleRules[strings.ToLower(name)]; ok {
					return strings.TrimSpace(block)
				}
			}
		}
	}
	return ""
}

// mergeRoutes appends the canonical organization-context route to the
// agent's declared preload list unless the list already names it.
func mergeRoutes(declared []models.PreloadRoute) []models.PreloadRoute {
	routes := make([]models.PreloadRoute, 0, len(declared)+1)
	routes = append(routes, declared...)
	for _, r := range declared {
		if r.Route == organizationContextRoute.Route {
			return routes
		}
	}
	return append(routes, organizationContextRoute)
}

// optionDescriptions resolves the descriptions of every selected option
// across both value sources and renders them as de-duplicated blocks.
// De-duplication keys on the description text, not the label, because two
// labels can map to the same underlying content.
func optionDescriptions(fields []models.RenderField, formValues, bodyParams map[string]any) string {
	seen := make(map[string]bool)
	var blocks []string

	for _, field := range fields {
		if !field.Component.OptionBased() || len(field.Options) == 0 {
			continue
		}
		for _, source := range []map[string]any{formValues, bodyParams} {
			if source == nil {
				continue
			}
			value, ok := source[field.Name]
			if !ok {
				continue
			}
			for _, selected := range selectedValues(field, value) {
				opt := findOption(field, selected)
				if opt == nil || opt.Description == "" || seen[opt.Description] {
					continue
				}
				seen[opt.Description] = true
				blocks = append(blocks, "**"+FieldLabel(field)+" ("+opt.Label+")**\n\n"+opt.Description)
			}
		}
	}

	return strings.Join(blocks, "\n\n")
}

// selectedValues normalizes a submitted option value to a list of raw ids.
// Values may arrive as single ids, resolved objects, or lists of either.
func selectedValues(field models.RenderField, value any) []string {
	if field.Component.MultiValued() {
		return valueList(value)
	}
	if s := scalarValue(value); s != "" {
		return []string{s}
	}
	return nil
}

// joinSegments concatenates non-empty segments with the fixed divider.
func joinSegments(segments []string) string {
	var nonEmpty []string
	for _, s := range segments {
		if strings.TrimSpace(s) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(s))
		}
	}
	return strings.Join(nonEmpty, SegmentDivider)
}
