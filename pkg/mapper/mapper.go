package mapper

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/wooconduit/conduit/pkg/expressions"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

// FieldMapper applies field mapping rules in both directions. Pulling reads
// remote payloads with JMESPath expressions; pushing writes remote documents
// through dotted setter paths. A failing rule is logged and skipped so one
// bad path never aborts the rest of the rule set.
type FieldMapper struct {
	evaluator *expressions.Evaluator
	template  *expressions.Template
	logger    ectologger.Logger
}

// New creates a field mapper
func New(logger ectologger.Logger) *FieldMapper {
	evaluator := expressions.NewEvaluator()
	return &FieldMapper{
		evaluator: evaluator,
		template:  expressions.NewTemplate(evaluator),
		logger:    logger,
	}
}

// Pull maps a remote payload onto local field values. The result only holds
// fields whose mapped value differs from the current local document, so an
// empty result means nothing changed. Missing remote paths skip the rule.
func (m *FieldMapper) Pull(ctx context.Context, mctx *expressions.Context, rules []models.FieldMappingRule) (map[string]interface{}, bool) {
	data, err := mctx.ToMap()
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Error("Failed to build mapping context")
		return nil, false
	}

	local, _ := data["local"].(map[string]interface{})

	active := ectolinq.Filter(rules, func(r models.FieldMappingRule) bool {
		return r.AppliesTo(models.MappingPull)
	})

	changed := make(map[string]interface{}, len(active))
	for _, rule := range active {
		value, err := m.pullValue(rule, data)
		if err != nil {
			mapErr := &woocommerce.MappingError{Rule: rule.LocalField, Direction: "pull", Err: err}
			m.logger.WithContext(ctx).WithError(mapErr).Warnf("Skipping field mapping rule: %s", rule.LocalField)
			continue
		}

		value = withDefault(value, rule.Default)
		if value == nil {
			continue
		}

		if local != nil && valuesEqual(local[rule.LocalField], value) {
			continue
		}

		changed[rule.LocalField] = value
	}

	return changed, len(changed) > 0
}

func (m *FieldMapper) pullValue(rule models.FieldMappingRule, data map[string]interface{}) (interface{}, error) {
	var value interface{}

	if rule.Template != "" {
		rendered, err := m.template.Render(rule.Template, data)
		if err != nil {
			return nil, err
		}
		if rendered == "" {
			return nil, nil
		}
		value = rendered
	} else {
		evaluated, err := m.evaluator.Evaluate(rule.RemotePath, data["remote"])
		if err != nil {
			return nil, err
		}
		value = evaluated
	}

	if value == nil {
		return nil, nil
	}
	return castValue(rule.Cast, value)
}

// Push updates the remote document in place from the local document and
// reports whether anything changed. A remote path that yields no match is an
// error on an existing record and tolerated on a record not yet created.
func (m *FieldMapper) Push(ctx context.Context, mctx *expressions.Context, remoteDoc map[string]interface{}, isNew bool, rules []models.FieldMappingRule) bool {
	data, err := mctx.ToMap()
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Error("Failed to build mapping context")
		return false
	}

	active := ectolinq.Filter(rules, func(r models.FieldMappingRule) bool {
		return r.AppliesTo(models.MappingPush) && r.Template == ""
	})

	modified := false
	for _, rule := range active {
		localValue, err := m.evaluator.Evaluate(rule.LocalField, data["local"])
		if err != nil {
			mapErr := &woocommerce.MappingError{Rule: rule.LocalField, Direction: "push", Err: err}
			m.logger.WithContext(ctx).WithError(mapErr).Warnf("Skipping field mapping rule: %s", rule.LocalField)
			continue
		}

		localValue = withDefault(localValue, rule.Default)
		if localValue == nil {
			continue
		}

		localValue, err = castValue(rule.Cast, localValue)
		if err != nil {
			mapErr := &woocommerce.MappingError{Rule: rule.LocalField, Direction: "push", Err: err}
			m.logger.WithContext(ctx).WithError(mapErr).Warnf("Skipping field mapping rule: %s", rule.LocalField)
			continue
		}

		remoteValue, err := m.evaluator.Evaluate(rule.RemotePath, remoteDoc)
		if err == nil && remoteValue == nil && !isNew {
			// The field is expected to exist on a record the store returned
			mapErr := &woocommerce.MappingError{
				Rule:      rule.LocalField,
				Direction: "push",
				Err:       fmt.Errorf("remote path %q not present on existing record", rule.RemotePath),
			}
			m.logger.WithContext(ctx).WithError(mapErr).Warnf("Skipping field mapping rule: %s", rule.LocalField)
			continue
		}

		if valuesEqual(remoteValue, localValue) {
			continue
		}

		if err := expressions.SetPath(remoteDoc, rule.RemotePath, localValue); err != nil {
			mapErr := &woocommerce.MappingError{Rule: rule.LocalField, Direction: "push", Err: err}
			m.logger.WithContext(ctx).WithError(mapErr).Warnf("Skipping field mapping rule: %s", rule.LocalField)
			continue
		}
		modified = true
	}

	return modified
}

func withDefault(value, fallback interface{}) interface{} {
	if value == nil {
		return fallback
	}
	// An empty string from the source counts as unset
	if s, ok := value.(string); ok && s == "" && fallback != nil {
		return fallback
	}
	return value
}

// valuesEqual compares mapped values loosely enough to survive a JSON round
// trip, so "12" and 12 and 12.0 all match.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if reflect.DeepEqual(a, b) {
		return true
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// castValue coerces a mapped value to the rule's declared type
func castValue(cast string, value interface{}) (interface{}, error) {
	switch cast {
	case "":
		return value, nil

	case "string":
		if s, ok := value.(string); ok {
			return s, nil
		}
		if f, ok := value.(float64); ok && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return fmt.Sprintf("%v", value), nil

	case "int":
		switch v := value.(type) {
		case float64:
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot cast %q to int: %w", v, err)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("cannot cast %T to int", value)
		}

	case "float":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				return float64(0), nil
			}
			parsed, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot cast %q to float: %w", v, err)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("cannot cast %T to float", value)
		}

	case "bool":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			return v == "true" || v == "yes" || v == "1", nil
		case float64:
			return v != 0, nil
		default:
			return nil, fmt.Errorf("cannot cast %T to bool", value)
		}

	default:
		return nil, fmt.Errorf("unknown cast %q", cast)
	}
}
