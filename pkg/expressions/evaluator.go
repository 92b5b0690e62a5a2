// Package expressions evaluates the JMESPath expressions that field mapping
// rules use to address paths inside local documents and raw WooCommerce
// payloads.
package expressions

import (
	"fmt"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator compiles and runs JMESPath expressions. Mapping rules reuse the
// same handful of expressions for every record in a sync pass, so compiled
// forms are cached.
type Evaluator struct {
	mu       sync.RWMutex
	compiled map[string]*jmespath.JMESPath
}

// NewEvaluator creates an Evaluator with an empty compile cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{compiled: make(map[string]*jmespath.JMESPath)}
}

// Evaluate runs the expression against data. A path that does not exist in
// the document yields nil, not an error.
func (e *Evaluator) Evaluate(expression string, data interface{}) (interface{}, error) {
	expr, err := e.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := expr.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// EvaluateString runs the expression and stringifies the result. Nil becomes
// the empty string so templates render missing fields as blanks.
func (e *Evaluator) EvaluateString(expression string, data interface{}) (string, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	if s, ok := result.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", result), nil
}

// Validate reports whether the expression compiles. Used when mapping rules
// are saved, so a bad path fails the config write instead of every sync run.
func Validate(expression string) error {
	if _, err := jmespath.Compile(expression); err != nil {
		return fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	return nil
}

func (e *Evaluator) compile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	expr, ok := e.compiled[expression]
	e.mu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.compiled[expression] = expr
	e.mu.Unlock()
	return expr, nil
}
