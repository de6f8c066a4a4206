// Package prompt turns schema-described form submissions into the user
// prompt and the layered system prompt sent to the provider.
//
// Composition is deterministic: identical inputs produce byte-identical
// output. Only the system-prompt assembler injects the current time.
package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// languageFieldRegex recognizes fields that carry the output language.
// Those are handled by the language directive, not rendered inline.
var languageFieldRegex = regexp.MustCompile(`(?i)^(output[_-]?)?language$`)

// userPromptFieldRegex recognizes the raw user prompt field, whose value is
// embedded without a restated label to avoid duplicate framing.
var userPromptFieldRegex = regexp.MustCompile(`(?i)^user[_\s-]?prompt$`)

// keepEnglish is the fixed allow-list of technical abbreviations the
// language directive tells the model to leave untranslated.
var keepEnglish = []string{"API", "SQL", "JSON", "HTTP", "URL", "SDK", "CPU", "RAM", "CSV"}

// Compose builds the visible prompt body from the agent's render fields and
// the submitted values. Fields routed to dedicated APIs or to the payload
// sections are skipped; a language directive and a modification-request
// block are appended when applicable, in that order of precedence.
func Compose(agent *models.AgentConfig, data *models.AgentRequestData) string {
	var segments []string

	if p := strings.TrimSpace(data.Prompt); p != "" {
		segments = append(segments, p)
	}

	for _, field := range promptFields(agent.Fields) {
		rendered := renderField(field, data.FormValues[field.Name])
		if rendered != "" {
			segments = append(segments, rendered)
		}
	}

	if directive := languageDirective(agent.Fields, data.FormValues); directive != "" {
		segments = append(segments, directive)
	}

	// The modification block must be the last instruction the model reads;
	// it takes precedence over the language directive's final position.
	if block := modificationBlock(data); block != "" {
		segments = append(segments, block)
	}

	return strings.Join(segments, "\n\n")
}

// promptFields filters out routed, sectioned, and language fields and sorts
// the rest by declared order. Fields without an order sort last, keeping
// their declaration order among themselves.
func promptFields(fields []models.RenderField) []models.RenderField {
	var in []models.RenderField
	for _, f := range fields {
		if f.Route != "" || f.Section == models.SectionBody || f.Section == models.SectionExtra {
			continue
		}
		if isLanguageField(f) {
			continue
		}
		in = append(in, f)
	}

	sort.SliceStable(in, func(i, j int) bool {
		oi, oj := in[i].Order, in[j].Order
		if oi <= 0 {
			return false
		}
		if oj <= 0 {
			return true
		}
		return oi < oj
	})

	return in
}

// renderField maps one component kind to its prompt-text fragment. This is
// the single exhaustive mapping from variant to text; new component kinds
// must be handled here.
func renderField(field models.RenderField, value any) string {
	if isEmptyValue(value) {
		return ""
	}

	label := FieldLabel(field)

	switch field.Component {
	case models.ComponentMultiSelect, models.ComponentChecklist, models.ComponentTags:
		items := valueList(value)
		if len(items) == 0 {
			return ""
		}
		var b strings.Builder
		b.WriteString(label + ":")
		for _, item := range items {
			b.WriteString("\n- " + optionLabel(field, item))
		}
		return b.String()

	case models.ComponentSelect, models.ComponentRadio:
		raw := scalarValue(value)
		opt := findOption(field, raw)
		if opt == nil {
			return label + ": " + raw
		}
		if opt.Description != "" {
			return label + ": " + opt.Label + " (" + opt.Description + ")"
		}
		return label + ": " + opt.Label

	case models.ComponentText, models.ComponentTextarea, models.ComponentNumber,
		models.ComponentToggle, models.ComponentDate:
		text := scalarValue(value)
		if text == "" {
			return ""
		}
		if userPromptFieldRegex.MatchString(field.Name) {
			return text
		}
		return label + ": " + text

	case models.ComponentLanguage:
		// Handled by the language directive.
		return ""

	default:
		// Unknown component kinds degrade to a plain scalar line.
		text := scalarValue(value)
		if text == "" {
			return ""
		}
		return label + ": " + text
	}
}

// languageDirective builds the respond-in-language instruction when an
// output-language field resolves to a non-default language.
func languageDirective(fields []models.RenderField, values map[string]any) string {
	for _, f := range fields {
		if !isLanguageField(f) {
			continue
		}
		lang := scalarValue(values[f.Name])
		if lang == "" || strings.EqualFold(lang, "en") || strings.EqualFold(lang, "english") {
			return ""
		}
		if opt := findOption(f, lang); opt != nil {
			lang = opt.Label
		}
		return fmt.Sprintf(
			"Respond in %s. Keep technical abbreviations (%s) in English.",
			lang, strings.Join(keepEnglish, ", "),
		)
	}
	return ""
}

// modificationBlock renders the edit-intent block: annotation groups, the
// verbatim prior response fenced as code, and the apply-only instruction.
func modificationBlock(data *models.AgentRequestData) string {
	if len(data.Annotations) == 0 || data.PreviousResponse == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("Modify the existing output below.\n")

	for _, ann := range data.Annotations {
		title := strings.TrimSpace(ann.Title)
		if title == "" {
			title = "Requested changes"
		}
		b.WriteString("\n### " + title + "\n")
		for _, c := range ann.Comments {
			b.WriteString("- " + strings.TrimSpace(c) + "\n")
		}
	}

	b.WriteString("\nExisting output:\n")
	b.WriteString("```\n")
	b.WriteString(data.PreviousResponse)
	b.WriteString("\n```\n\n")
	b.WriteString("Apply only the changes listed above and preserve everything else exactly as it is.")

	return b.String()
}

// ── Field helpers ────────────────────────────────────────────

// FieldLabel returns the field's display label, deriving Title Case from a
// camelCase name when no explicit label is set.
func FieldLabel(field models.RenderField) string {
	if field.Label != "" {
		return field.Label
	}
	return humanizeCamel(field.Name)
}

// humanizeCamel converts camelCase and snake_case identifiers to Title
// Case: "outputLanguage" becomes "Output Language".
func humanizeCamel(name string) string {
	if name == "" {
		return ""
	}

	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case r >= 'A' && r <= 'Z':
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()

	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func isLanguageField(f models.RenderField) bool {
	return f.Component == models.ComponentLanguage || languageFieldRegex.MatchString(f.Name)
}

func findOption(field models.RenderField, value string) *models.FieldOption {
	for i := range field.Options {
		if field.Options[i].Value == value || field.Options[i].Label == value {
			return &field.Options[i]
		}
	}
	return nil
}

func optionLabel(field models.RenderField, value string) string {
	if opt := findOption(field, value); opt != nil {
		return opt.Label
	}
	return value
}

// scalarValue renders a single submitted value as text. Option values may
// arrive as raw ids or as already-resolved {value,label} objects.
func scalarValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s
		}
		if s, ok := v["label"].(string); ok {
			return s
		}
		return ""
	case float64:
		// JSON numbers: render integers without the trailing ".0".
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// valueList renders a multi-valued submission as a list of scalar texts.
func valueList(value any) []string {
	var items []string
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if s := scalarValue(item); s != "" {
				items = append(items, s)
			}
		}
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
	case string:
		if s := strings.TrimSpace(v); s != "" {
			items = append(items, s)
		}
	}
	return items
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}
