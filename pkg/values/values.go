// Package values defines the coercion rules for the dynamic values that flow
// between extraction, transforms, and output assembly. Values are the generic
// JSON forms produced by encoding/json (nil, bool, float64, string,
// []interface{}, map[string]interface{}) plus []byte for raw byte slices.
package values

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SafeToString renders a value for string-domain operators and output
// assembly: empty for null/absent, "true"/"false" for booleans, shortest
// decimal for numbers (integral floats carry no decimal point), 0x-hex for
// byte slices, compact JSON for objects and arrays. Non-serializable trees
// degrade to the literal "[object]".
func SafeToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return FormatNumber(t)
	case float32:
		return FormatNumber(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case json.Number:
		return t.String()
	case []byte:
		return "0x" + hex.EncodeToString(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "[object]"
		}
		return string(b)
	}
}

// FormatNumber renders a float as its shortest round-trip decimal, with no
// decimal point for integral values within the safe-integer range.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToNumber coerces a value to a float64. The second return is false when the
// value has no numeric interpretation.
func ToNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Equal compares two values strictly: same JSON type tag and same scalar.
// Numbers compare numerically across numeric representations.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, aNum := numericOnly(a); aNum {
		nb, bNum := numericOnly(b)
		return bNum && na == nb
	}
	switch ta := a.(type) {
	case string:
		tb, ok := b.(string)
		return ok && ta == tb
	case bool:
		tb, ok := b.(bool)
		return ok && ta == tb
	default:
		ab, errA := json.Marshal(a)
		bb, errB := json.Marshal(b)
		return errA == nil && errB == nil && string(ab) == string(bb)
	}
}

// numericOnly is ToNumber without the string/bool coercions.
func numericOnly(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// Describe names a value's JSON type for error messages.
func Describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, uint64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case []byte:
		return "bytes"
	default:
		return fmt.Sprintf("%T", v)
	}
}
