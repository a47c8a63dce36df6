package etl

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ── Coercion ───────────────────────────────────────────────
// Converts raw source values into the attribute value of a declared type.
// Each coerce* function returns ok=false when the value cannot represent the
// type; the caller records a type mismatch and keeps the original value.

var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// twoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are moved
// to the previous century.
const twoDigitYearPivot = 20

var (
	timestampLayouts = []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006",
		// dotted dates are day first
		"2.1.2006", "02.01.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "2.1.06", "02.01.06",
	}
)

// isBlank reports whether v counts as an absent value.
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// cleanNumeric strips thousands separators and surrounding space and reports
// whether what is left is a plain decimal number.
func cleanNumeric(s string) (string, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return s, numericRegex.MatchString(s)
}

func coerceString(v any, maxLen int) (string, bool) {
	var s string
	switch val := v.(type) {
	case string:
		s = strings.TrimSpace(val)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		s = strconv.FormatBool(val)
	case time.Time:
		s = val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		s = val.String()
	default:
		if _, ok := toInt64(v); ok {
			s = fmt.Sprint(v)
		} else {
			return "", false
		}
	}
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		return "", false
	}
	return s, true
}

// toInt64 handles the native integer kinds drivers return.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	}
	return 0, false
}

func coerceInteger(v any) (int64, bool) {
	if n, ok := toInt64(v); ok {
		return n, true
	}
	switch val := v.(type) {
	case float64:
		return integralFloat(val)
	case float32:
		return integralFloat(float64(val))
	case string:
		s, ok := cleanNumeric(val)
		if !ok {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return integralFloat(f)
	}
	return 0, false
}

func integralFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func coerceDouble(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case string:
		s, ok := cleanNumeric(val)
		if !ok {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		n, ok := toInt64(v)
		if !ok {
			return 0, false
		}
		f = float64(n)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// coerceDate returns the instant as epoch milliseconds (UTC), the encoding
// hosted layers use for date fields.
func coerceDate(v any) (int64, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UnixMilli(), true
	case string:
		t, ok := parseDate(val)
		if !ok {
			return 0, false
		}
		return t.UnixMilli(), true
	}
	return 0, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	// 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	pivotYear := time.Now().Year() + twoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// coerceBoolean returns 1 or 0; layers store booleans as small integers.
func coerceBoolean(v any) (int64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "yes", "y", "1":
			return 1, true
		case "false", "f", "no", "n", "0":
			return 0, true
		}
		return 0, false
	case float64:
		if val == 0 || val == 1 {
			return int64(val), true
		}
		return 0, false
	}
	if n, ok := toInt64(v); ok && (n == 0 || n == 1) {
		return n, true
	}
	return 0, false
}
