package prompt_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dashforge/dashforge/agent-core/internal/prompt"
	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// fakeFetcher records the routes it was asked for and returns a fixed result.
type fakeFetcher struct {
	text   string
	err    error
	delay  time.Duration
	routes []models.PreloadRoute
}

func (f *fakeFetcher) Fetch(ctx context.Context, baseURL string, routes []models.PreloadRoute) (string, error) {
	f.routes = routes
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func fixedClock() func() time.Time {
	at := time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestAssemble_SegmentOrderAndDividers(t *testing.T) {
	fetcher := &fakeFetcher{text: "Acme Corp sells widgets."}
	a := prompt.NewAssembler(fetcher, nil, "http://app.local", prompt.WithClock(fixedClock()))

	agent := &models.AgentConfig{
		ID:           "writer",
		Kind:         models.KindChat,
		Model:        "gpt-4o",
		SystemPrompt: "You are a copywriter.",
		OutputFormat: models.FormatString,
	}
	got := a.Assemble(context.Background(), agent, nil, nil, "Write for a B2B audience.", "")

	if got.IsLoadingPreload {
		t.Fatal("IsLoadingPreload = true, fetch completed synchronously")
	}

	order := []string{
		"Current date and time: Monday, 3 March 2025 at 09:30 UTC.",
		"You are a copywriter.",
		"Write for a B2B audience.",
		"## Organization reference context",
		"Acme Corp sells widgets.",
	}
	last := -1
	for _, want := range order {
		i := strings.Index(got.SystemPrompt, want)
		if i < 0 {
			t.Fatalf("SystemPrompt missing %q:\n%s", want, got.SystemPrompt)
		}
		if i < last {
			t.Errorf("segment %q out of order", want)
		}
		last = i
	}

	if strings.HasPrefix(got.SystemPrompt, prompt.SegmentDivider) ||
		strings.HasSuffix(got.SystemPrompt, prompt.SegmentDivider) {
		t.Errorf("SystemPrompt has a dangling divider:\n%s", got.SystemPrompt)
	}
	if strings.Contains(got.SystemPrompt, prompt.SegmentDivider+prompt.SegmentDivider) {
		t.Errorf("SystemPrompt has adjacent dividers from an empty segment:\n%s", got.SystemPrompt)
	}
}

func TestAssemble_MinimalAgentSingleSegment(t *testing.T) {
	a := prompt.NewAssembler(nil, nil, "", prompt.WithClock(fixedClock()))

	agent := &models.AgentConfig{ID: "x", Kind: models.KindImage, OutputFormat: models.FormatImage}
	got := a.Assemble(context.Background(), agent, nil, nil, "", "")

	// Image output format suppresses the text-style rule blocks, and image
	// rules still apply, so exactly two segments remain.
	parts := strings.Split(got.SystemPrompt, prompt.SegmentDivider)
	if len(parts) != 2 {
		t.Fatalf("got %d segments, want 2 (time preamble + image rules):\n%s", len(parts), got.SystemPrompt)
	}
	if !strings.HasPrefix(parts[0], "Current date and time:") {
		t.Errorf("first segment = %q, want time preamble", parts[0])
	}
}

func TestAssemble_AllOptionalSegmentsEmpty(t *testing.T) {
	a := prompt.NewAssembler(nil, &prompt.StyleGuide{}, "", prompt.WithClock(fixedClock()))

	agent := &models.AgentConfig{ID: "x", Kind: models.KindChat, Model: "m", OutputFormat: models.FormatJSON}
	got := a.Assemble(context.Background(), agent, nil, nil, "", "")

	if strings.Contains(got.SystemPrompt, prompt.SegmentDivider) {
		t.Errorf("SystemPrompt = %q, want the time preamble alone with no divider", got.SystemPrompt)
	}
	if !strings.HasPrefix(got.SystemPrompt, "Current date and time:") {
		t.Errorf("SystemPrompt = %q, want only the time preamble", got.SystemPrompt)
	}
}

func TestAssemble_TextRulesOnlyForPlainTextFormats(t *testing.T) {
	style := prompt.DefaultStyleGuide()
	a := prompt.NewAssembler(nil, style, "", prompt.WithClock(fixedClock()))

	agent := &models.AgentConfig{ID: "x", Kind: models.KindChat, Model: "m", SystemPrompt: "p"}

	agent.OutputFormat = models.FormatString
	plain := a.Assemble(context.Background(), agent, nil, nil, "", "")
	if !strings.Contains(plain.SystemPrompt, strings.TrimSpace(style.MarkdownRules)) {
		t.Error("plain-text output missing markdown rules")
	}

	agent.OutputFormat = models.FormatJSON
	structured := a.Assemble(context.Background(), agent, nil, nil, "", "")
	if strings.Contains(structured.SystemPrompt, strings.TrimSpace(style.MarkdownRules)) {
		t.Error("structured output must not carry markdown rules")
	}
	if strings.Contains(structured.SystemPrompt, strings.TrimSpace(style.CitationRules)) {
		t.Error("structured output must not carry citation rules")
	}
}

func TestAssemble_PreloadFailureIsSoft(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream 502")}
	a := prompt.NewAssembler(fetcher, nil, "http://app.local", prompt.WithClock(fixedClock()))

	agent := &models.AgentConfig{ID: "x", Kind: models.KindChat, Model: "m", SystemPrompt: "p", OutputFormat: models.FormatString}
	got := a.Assemble(context.Background(), agent, nil, nil, "", "")

	if got.IsLoadingPreload {
		t.Error("IsLoadingPreload = true, a failed fetch is not an in-flight fetch")
	}
	if strings.Contains(got.SystemPrompt, "## Organization reference context") {
		t.Error("failed preload must not leave a context heading behind")
	}
	if got.SystemPrompt == "" {
		t.Error("prompt must still be emitted without the context segment")
	}
}

func TestAssemble_SlowPreloadReportsLoading(t *testing.T) {
	fetcher := &fakeFetcher{text: "late context", delay: time.Second}
	a := prompt.NewAssembler(fetcher, nil, "http://app.local",
		prompt.WithClock(fixedClock()),
		prompt.WithPreloadWait(10*time.Millisecond),
	)

	agent := &models.AgentConfig{ID: "x", Kind: models.KindChat, Model: "m", OutputFormat: models.FormatString}
	got := a.Assemble(context.Background(), agent, nil, nil, "", "")

	if !got.IsLoadingPreload {
		t.Error("IsLoadingPreload = false, fetch was still in flight at the deadline")
	}
	if strings.Contains(got.SystemPrompt, "late context") {
		t.Error("in-flight preload content must not appear in the prompt")
	}
}

func TestAssemble_CanonicalRouteMerged(t *testing.T) {
	fetcher := &fakeFetcher{}
	a := prompt.NewAssembler(fetcher, nil, "http://app.local", prompt.WithClock(fixedClock()))

	agent := &models.AgentConfig{
		ID: "x", Kind: models.KindChat, Model: "m", OutputFormat: models.FormatString,
		PreloadRoutes: []models.PreloadRoute{{Route: "/api/v1/products", Method: "GET"}},
	}
	a.Assemble(context.Background(), agent, nil, nil, "", "")

	if len(fetcher.routes) != 2 {
		t.Fatalf("fetched %d routes, want declared route plus canonical context route", len(fetcher.routes))
	}
	if fetcher.routes[0].Route != "/api/v1/products" {
		t.Errorf("declared route must come first, got %q", fetcher.routes[0].Route)
	}
	if fetcher.routes[1].Route != "/api/v1/organization/context" {
		t.Errorf("canonical route not appended, got %q", fetcher.routes[1].Route)
	}
}

func TestAssemble_CanonicalRouteNotDuplicated(t *testing.T) {
	fetcher := &fakeFetcher{}
	a := prompt.NewAssembler(fetcher, nil, "http://app.local", prompt.WithClock(fixedClock()))

	agent := &models.AgentConfig{
		ID: "x", Kind: models.KindChat, Model: "m", OutputFormat: models.FormatString,
		PreloadRoutes: []models.PreloadRoute{{Route: "/api/v1/organization/context", Method: "GET", JSONPath: "data"}},
	}
	a.Assemble(context.Background(), agent, nil, nil, "", "")

	if len(fetcher.routes) != 1 {
		t.Fatalf("fetched %d routes, want 1 (already declared canonical route)", len(fetcher.routes))
	}
}

func TestAssemble_OptionDescriptionsDeduplicated(t *testing.T) {
	a := prompt.NewAssembler(nil, nil, "", prompt.WithClock(fixedClock()))

	fields := []models.RenderField{
		{
			Name: "tone", Component: models.ComponentSelect,
			Options: []models.FieldOption{
				{Value: "formal", Label: "Formal", Description: "Business register."},
			},
		},
		{
			Name: "voice", Component: models.ComponentSelect, Section: models.SectionBody,
			Options: []models.FieldOption{
				{Value: "corp", Label: "Corporate", Description: "Business register."},
			},
		},
	}
	agent := &models.AgentConfig{
		ID: "x", Kind: models.KindChat, Model: "m",
		OutputFormat: models.FormatString, Fields: fields,
	}

	got := a.Assemble(context.Background(), agent,
		map[string]any{"tone": "formal"},
		map[string]any{"voice": "corp"},
		"", "")

	if n := strings.Count(got.SystemPrompt, "Business register."); n != 1 {
		t.Errorf("description appears %d times, want 1 (dedup keys on description text)", n)
	}
	if !strings.Contains(got.SystemPrompt, "**Tone (Formal)**") {
		t.Errorf("description block header missing:\n%s", got.SystemPrompt)
	}
}

func TestAssemble_DescriptionsOnlyFromOptionBasedFields(t *testing.T) {
	a := prompt.NewAssembler(nil, nil, "", prompt.WithClock(fixedClock()))

	// A free-text field carrying a stray option list must not contribute
	// description blocks; only selector components resolve against options.
	fields := []models.RenderField{
		{
			Name: "topic", Component: models.ComponentText,
			Options: []models.FieldOption{
				{Value: "pricing", Label: "Pricing", Description: "Plans and tiers."},
			},
		},
	}
	agent := &models.AgentConfig{
		ID: "x", Kind: models.KindChat, Model: "m",
		OutputFormat: models.FormatString, Fields: fields,
	}

	got := a.Assemble(context.Background(), agent,
		map[string]any{"topic": "pricing"}, nil, "", "")

	if strings.Contains(got.SystemPrompt, "Plans and tiers.") {
		t.Errorf("SystemPrompt = %q, free-text fields must not emit option descriptions", got.SystemPrompt)
	}
}

func TestAssemble_GraphKindCarriesGraphRules(t *testing.T) {
	style := prompt.DefaultStyleGuide()
	a := prompt.NewAssembler(nil, style, "", prompt.WithClock(fixedClock()))

	agent := &models.AgentConfig{ID: "x", Kind: models.KindGraph, Model: "m", OutputFormat: models.FormatJSON}
	got := a.Assemble(context.Background(), agent, nil, nil, "", "")

	if !strings.Contains(got.SystemPrompt, strings.TrimSpace(style.GraphRules)) {
		t.Error("graph agent missing graph rule block")
	}
}

func TestAssemble_ImageStyleRulesAppended(t *testing.T) {
	style := prompt.DefaultStyleGuide()
	a := prompt.NewAssembler(nil, style, "", prompt.WithClock(fixedClock()))

	agent := &models.AgentConfig{ID: "x", Kind: models.KindImage, OutputFormat: models.FormatImage}
	got := a.Assemble(context.Background(), agent,
		map[string]any{"style": "photorealistic"}, nil, "", "")

	general := strings.TrimSpace(style.ImageGeneralRules)
	specific := strings.TrimSpace(style.ImageStyleRules["photorealistic"])
	if !strings.Contains(got.SystemPrompt, general) {
		t.Error("image agent missing general image rules")
	}
	if !strings.Contains(got.SystemPrompt, specific) {
		t.Error("image agent missing style-specific rules")
	}
}
