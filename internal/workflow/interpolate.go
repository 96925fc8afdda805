package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// Parameter interpolation replaces {{reference}} placeholders in step
// parameters before the action handler runs. References use the same path
// syntax as condition expressions: plain variable paths or
// steps.<id>.output.<path>. A string that is exactly one placeholder keeps
// the referenced value's type; placeholders embedded in longer strings are
// rendered with fmt.Sprint. Unresolvable references are left verbatim so
// the handler can report a meaningful error.

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// InterpolateParams returns a deep copy of params with all placeholder
// references resolved against the evaluation context.
func InterpolateParams(params map[string]any, ec *EvalContext) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = interpolateValue(v, ec)
	}
	return out
}

func interpolateValue(v any, ec *EvalContext) any {
	switch val := v.(type) {
	case string:
		return interpolateString(val, ec)
	case map[string]any:
		return InterpolateParams(val, ec)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(item, ec)
		}
		return out
	default:
		return v
	}
}

func interpolateString(s string, ec *EvalContext) any {
	// A lone placeholder preserves the referenced value's type, so
	// parameters can carry numbers, lists, and maps through templates.
	if m := placeholderPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		if value, ok := resolveReference(m[1], ec); ok {
			return value
		}
		return s
	}

	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		ref := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := resolveReference(ref, ec)
		if !ok || value == nil {
			return match
		}
		return fmt.Sprint(value)
	})
}

func resolveReference(ref string, ec *EvalContext) (any, bool) {
	value, err := ec.Lookup(strings.Split(ref, "."))
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}
