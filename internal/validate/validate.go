// Package validate checks agent configurations and user-submitted field
// values before any network activity, and normalizes untrusted prompt text.
//
// Field validation accumulates every failure instead of stopping at the
// first one, so the dashboard can report all problems in one round trip.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// ErrEmptyPrompt is returned when the composed prompt is empty after
// sanitization. Distinct from field validation so callers can tell
// "bad field" from "nothing to say".
var ErrEmptyPrompt = errors.New("prompt is empty after sanitization")

// Agent validates the agent configuration itself. Configuration errors are
// always caught before prompt composition or any provider call.
func Agent(agent *models.AgentConfig) error {
	if agent == nil {
		return errors.New("agent configuration is missing")
	}
	if agent.ID == "" {
		return errors.New("agent configuration is missing an id")
	}
	if !agent.Kind.Valid() {
		return fmt.Errorf("unsupported agent kind %q", agent.Kind)
	}
	if agent.Kind.NeedsModel() && agent.Model == "" {
		return fmt.Errorf("agent %q declares no model", agent.ID)
	}
	return nil
}

// Fields applies each declared field's validation rules against the
// submitted values. Routed fields are handled by their own API routes and
// skipped here. All failures are accumulated.
func Fields(agent *models.AgentConfig, values map[string]any) []models.FieldError {
	var errs []models.FieldError

	for _, field := range agent.Fields {
		if field.Route != "" || field.Rules == nil {
			continue
		}
		ok, msg := CheckValue(values[field.Name], field.Rules)
		if !ok {
			errs = append(errs, models.FieldError{Field: field.Name, Message: msg})
		}
	}

	return errs
}

// CheckValue validates a single submitted value against declared rules.
// This is the field-validation contract the dashboard form layer also
// consumes. Returns (true, "") on pass.
func CheckValue(value any, rules *models.FieldRules) (bool, string) {
	if rules == nil {
		return true, ""
	}

	text, empty := flatten(value)

	if rules.Required && empty {
		return false, "This field is required"
	}
	if empty {
		return true, ""
	}

	if rules.MinLength > 0 && utf8.RuneCountInString(text) < rules.MinLength {
		return false, fmt.Sprintf("Must be at least %d characters", rules.MinLength)
	}
	if rules.MaxLength > 0 && utf8.RuneCountInString(text) > rules.MaxLength {
		return false, fmt.Sprintf("Must be at most %d characters", rules.MaxLength)
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			// A broken pattern is a config bug, not a user error.
			return false, "Invalid validation pattern: " + err.Error()
		}
		if !re.MatchString(text) {
			return false, "Value does not match the required pattern"
		}
	}

	return true, ""
}

// SanitizePrompt trims the prompt and strips control sequences. Newlines
// and tabs survive; everything else in the control range is dropped.
func SanitizePrompt(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// flatten renders a submitted value as text for rule checks and reports
// whether it is empty. List values join their items; everything else is
// formatted with %v.
func flatten(value any) (text string, empty bool) {
	switch v := value.(type) {
	case nil:
		return "", true
	case string:
		trimmed := strings.TrimSpace(v)
		return trimmed, trimmed == ""
	case []any:
		if len(v) == 0 {
			return "", true
		}
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ","), false
	case []string:
		if len(v) == 0 {
			return "", true
		}
		return strings.Join(v, ","), false
	default:
		return fmt.Sprintf("%v", v), false
	}
}
