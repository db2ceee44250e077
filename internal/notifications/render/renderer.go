// Package render substitutes {variable} placeholders in notification templates.
package render

import (
	"fmt"
	"regexp"

	apperrors "kennel-notifications/internal/common/errors"
	"kennel-notifications/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// Policy decides what happens to a placeholder with no supplied value.
type Policy int

const (
	// FailOpen leaves the placeholder verbatim and reports it in Unresolved.
	FailOpen Policy = iota
	// Strict rejects the render with UNRESOLVED_PLACEHOLDER.
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "fail-open"
}

type RenderedMessage struct {
	Subject    string
	Body       string
	Unresolved []string
}

type Renderer struct {
	policy Policy
}

func New(policy Policy) *Renderer {
	return &Renderer{policy: policy}
}

// NewFromConfig maps notifications.strict_templates onto a policy.
func NewFromConfig(strict bool) *Renderer {
	if strict {
		return New(Strict)
	}
	return New(FailOpen)
}

func (r *Renderer) Policy() Policy {
	return r.policy
}

// Render substitutes vars into the template subject and body in a single pass,
// so substituted values are never themselves expanded.
func (r *Renderer) Render(tpl models.NotificationTemplate, vars map[string]string) (RenderedMessage, error) {
	if !tpl.Active {
		return RenderedMessage{}, apperrors.NewTemplateInactiveError(tpl.Name)
	}

	if r.policy == Strict {
		if err := Validate(tpl, vars); err != nil {
			return RenderedMessage{}, err
		}
	}

	seen := map[string]bool{}
	var unresolved []string
	substitute := func(text string) string {
		return placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
			key := token[1 : len(token)-1]
			if v, ok := vars[key]; ok {
				return v
			}
			if !seen[key] {
				seen[key] = true
				unresolved = append(unresolved, key)
			}
			return token
		})
	}

	msg := RenderedMessage{
		Subject: substitute(tpl.Subject),
		Body:    substitute(tpl.Body),
	}
	msg.Unresolved = unresolved
	return msg, nil
}

// Placeholders lists the keys referenced by text in first-occurrence order.
func Placeholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		keys = append(keys, m[1])
	}
	return keys
}

// OrderedValues returns the value of each body placeholder in order, as the
// positional parameters of a provider-side template. Missing keys yield "".
func OrderedValues(body string, vars map[string]string) []string {
	keys := Placeholders(body)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = vars[k]
	}
	return values
}

// Validate checks vars against a JSON schema requiring every placeholder of
// the template as a non-empty string.
func Validate(tpl models.NotificationTemplate, vars map[string]string) error {
	keys := Placeholders(tpl.Subject + "\n" + tpl.Body)
	if len(keys) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schemaFor(keys)),
		gojsonschema.NewGoLoader(documentFor(vars)),
	)
	if err != nil {
		return fmt.Errorf("validate template variables: %w", err)
	}
	if result.Valid() {
		return nil
	}

	failed := map[string]bool{}
	for _, desc := range result.Errors() {
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok {
				failed[prop] = true
			}
			continue
		}
		failed[desc.Field()] = true
	}

	missing := make([]string, 0, len(failed))
	for _, k := range keys {
		if failed[k] {
			missing = append(missing, k)
		}
	}
	return apperrors.NewUnresolvedPlaceholderError(tpl.Name, missing)
}

func schemaFor(keys []string) map[string]interface{} {
	props := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		props[k] = map[string]interface{}{"type": "string", "minLength": 1}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   keys,
	}
}

func documentFor(vars map[string]string) map[string]interface{} {
	doc := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		doc[k] = v
	}
	return doc
}
