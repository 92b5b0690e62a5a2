package expressions

import (
	"fmt"
	"regexp"
	"strings"
)

// templatePattern matches {{ expression }} placeholders.
var templatePattern = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// Template renders strings with embedded JMESPath placeholders. Mapping
// rules use it for defaults sourced from the server record, such as
// "{{ server.item_group }}".
type Template struct {
	evaluator *Evaluator
}

// NewTemplate creates a Template backed by the given evaluator so both
// share one compile cache.
func NewTemplate(evaluator *Evaluator) *Template {
	return &Template{evaluator: evaluator}
}

// Render substitutes every {{ expression }} in the template with its value
// from data. A failed expression leaves its placeholder in place and the
// first failure is returned after the whole string has been processed.
func (t *Template) Render(template string, data interface{}) (string, error) {
	var firstErr error

	result := templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		submatch := templatePattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		expression := strings.TrimSpace(submatch[1])
		value, err := t.evaluator.EvaluateString(expression, data)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to evaluate %q: %w", expression, err)
			}
			return match
		}
		return value
	})

	return result, firstErr
}
