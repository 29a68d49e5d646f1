package runners

import (
	"context"
	"strconv"
	"strings"

	"github.com/petrijr/relay/internal/template"
	"github.com/petrijr/relay/pkg/api"
)

// Condition evaluates one field of the execution context against an
// operator and a comparison value. It performs no external I/O; the only
// failure mode is malformed config, reported as a non-fatal failure whose
// output still carries result=false so branch selection falls through to
// the "false" edge.
//
// Config keys:
//
//	field     dotted path into the execution context (required)
//	operator  equals, not_equals, contains, gt, gte, lt, lte (required)
//	value     comparison value
type Condition struct{}

var _ api.Runner = (*Condition)(nil)

func NewCondition() *Condition { return &Condition{} }

func (c *Condition) Run(ctx context.Context, config map[string]any, execCtx map[string]any) (api.NodeResult, error) {
	field := configString(config, "field")
	operator := configString(config, "operator")
	if field == "" || operator == "" {
		return conditionFailure("condition: field and operator are required"), nil
	}

	actual, _ := template.Lookup(execCtx, field)
	expected := config["value"]

	result, ok := evaluate(operator, actual, expected)
	if !ok {
		return conditionFailure("condition: unknown operator " + operator), nil
	}

	return api.NodeResult{
		Success: true,
		Output:  map[string]any{api.OutputResult: result},
	}, nil
}

func conditionFailure(detail string) api.NodeResult {
	return api.NodeResult{
		Success: false,
		Output:  map[string]any{api.OutputResult: false, "error": detail},
	}
}

func evaluate(operator string, actual, expected any) (result, known bool) {
	switch operator {
	case "equals":
		return equalValues(actual, expected), true
	case "not_equals":
		return !equalValues(actual, expected), true
	case "contains":
		return strings.Contains(template.Stringify(actual), template.Stringify(expected)), true
	case "gt", "gte", "lt", "lte":
		a, okA := toFloat(actual)
		b, okB := toFloat(expected)
		if !okA || !okB {
			return false, true
		}
		switch operator {
		case "gt":
			return a > b, true
		case "gte":
			return a >= b, true
		case "lt":
			return a < b, true
		default:
			return a <= b, true
		}
	default:
		return false, false
	}
}

// equalValues compares through the template string form so numeric types
// arriving via JSON decoding (float64) still match their config literals.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return template.Stringify(a) == template.Stringify(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
