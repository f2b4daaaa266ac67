package models

import (
	"fmt"
	"reflect"
)

// Reserved and well-known policy fields
const (
	PolicyFieldComponent    = "component"
	PolicyFieldUseTool      = "use_tool"
	PolicyFieldToolCommand  = "tool_command"
	PolicyFieldCapabilities = "capabilities"
	PolicyFieldLogLevel     = "log_level"
)

// Policy is an open-ended configuration document routed alongside a request.
// Only the "component" field is reserved; everything else is opaque to the engine.
type Policy map[string]interface{}

// IsEmpty reports whether the policy is nil or has no fields
func (p Policy) IsEmpty() bool {
	return len(p) == 0
}

// Has reports whether the policy carries the given top-level field
func (p Policy) Has(field string) bool {
	_, ok := p[field]
	return ok
}

// Component returns the component name and whether the field is present.
// Non-string values are rendered with fmt so they can still be reported.
func (p Policy) Component() (string, bool) {
	v, ok := p[PolicyFieldComponent]
	if !ok {
		return "", false
	}
	if s, isString := v.(string); isString {
		return s, true
	}
	return fmt.Sprint(v), true
}

// UseTool returns the tool-use decision, false when absent or not a boolean
func (p Policy) UseTool() bool {
	v, ok := p[PolicyFieldUseTool].(bool)
	return ok && v
}

// ToolCommand returns the configured tool command or an empty string
func (p Policy) ToolCommand() string {
	if v, ok := p[PolicyFieldToolCommand].(string); ok {
		return v
	}
	return ""
}

// Capabilities returns the declared capability list and whether it is present as a list
func (p Policy) Capabilities() ([]interface{}, bool) {
	v, ok := p[PolicyFieldCapabilities]
	if !ok {
		return nil, false
	}
	switch caps := v.(type) {
	case []interface{}:
		return caps, true
	case []string:
		out := make([]interface{}, len(caps))
		for i, c := range caps {
			out[i] = c
		}
		return out, true
	default:
		return nil, false
	}
}

// ValuesEqual compares two loosely typed document values.
// Numbers compare by value regardless of their decoded Go type, so a YAML int
// matches a JSON float64. A bool compared with a number counts as 1 or 0.
func ValuesEqual(a, b interface{}) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	if ab, ok := a.(bool); ok && bNum {
		return boolNumber(ab) == bf
	}
	if bb, ok := b.(bool); ok && aNum {
		return boolNumber(bb) == af
	}
	return reflect.DeepEqual(a, b)
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Contains reports whether value is a member of list according to ValuesEqual
func Contains(list []interface{}, value interface{}) bool {
	for _, item := range list {
		if ValuesEqual(item, value) {
			return true
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
