// internal/predicate/coercion.go
package predicate

/*
 * Value coercion for predicate values.
 *
 * Form inputs are strings. Coercion converts them to the wire type implied by
 * the condition dataType or the subject key:
 *   - number:   strconv.ParseFloat on the trimmed string; NaN/Inf rejected
 *   - datetime: "YYYY-MM-DDTHH:MM" gains ":00", offset-less values are read
 *               in the session location, output is ISO-8601 UTC with
 *               millisecond precision ("2025-01-01T10:00:00.000Z")
 *   - string:   trimmed; IP-address conditions must pass ValidateIPList
 *
 * Empty or whitespace-only input is never an error: it reports absent and
 * the caller omits the key.
 */

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/policykit/internal/types"
)

const (
	// layoutMinute is what a datetime-local input produces.
	layoutMinute = "2006-01-02T15:04"
	// layoutSecond is layoutMinute normalized with seconds.
	layoutSecond = "2006-01-02T15:04:05"
	// layoutISOUTC matches JavaScript Date.toISOString output.
	layoutISOUTC = "2006-01-02T15:04:05.000Z"
)

// CoerceCondition converts a raw condition input to its wire value.
// Returns present=false for empty input.
func CoerceCondition(def types.ConditionDef, raw string, loc *time.Location) (value any, present bool, err error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, false, nil
	}

	switch def.DataType {
	case types.DataTypeNumber:
		f, err := parseNumber(v)
		if err != nil {
			return nil, false, err
		}
		return f, true, nil
	case types.DataTypeDatetime:
		s, err := FormatDatetime(v, loc)
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	default:
		if def.IsIPAddress() {
			if err := ValidateIPList(v); err != nil {
				return nil, false, err
			}
		}
		return v, true, nil
	}
}

// NormalizeDatetime appends ":00" to minute-precision datetime-local
// values. Anything else is returned unchanged.
func NormalizeDatetime(s string) string {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(layoutMinute, s); err == nil {
		return s + ":00"
	}
	return s
}

// FormatDatetime parses a datetime input and renders it as ISO-8601 UTC.
// Values carrying an offset (RFC 3339) keep it; others are read in loc.
func FormatDatetime(s string, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = NormalizeDatetime(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Format(layoutISOUTC), nil
	}
	t, err := time.ParseInLocation(layoutSecond, s, loc)
	if err != nil {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidDatetime, s)
	}
	return t.UTC().Format(layoutISOUTC), nil
}

// parseNumber converts a trimmed, non-empty string to float64.
func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", types.ErrCoercionFailed, s)
	}
	return f, nil
}

// formatScalar renders a decoded JSON scalar back into form-input text.
// Reports false for values with no text form (objects, arrays, null).
func formatScalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
