package rules

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"
)

// Calendar layouts accepted by iso_date, most specific first.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func present(fields map[string]any, name string) (any, bool) {
	value, ok := fields[name]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

func stringValue(value any) string {
	return strings.TrimSpace(rawString(value))
}

// rawString is the untrimmed string form of value.
func rawString(value any) string {
	if value == nil {
		return ""
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return ""
	}
	return s
}

func floatValue(value any) (float64, error) {
	f, err := parseFloat(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a finite number")
	}
	return f, nil
}

func parseFloat(value any) (float64, error) {
	switch typed := value.(type) {
	case bool:
		return 0, errors.New("bool is not a number")
	case json.Number:
		return typed.Float64()
	case string:
		typed = strings.TrimSpace(typed)
		if typed == "" {
			return 0, errors.New("empty number")
		}
		return cast.ToFloat64E(typed)
	default:
		return cast.ToFloat64E(value)
	}
}

func parseDateTime(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format")
}

func runeLen(text string) int {
	return utf8.RuneCountInString(text)
}

// normalized is the value handed to callers after validation: trimmed strings, raw scalars otherwise.
func normalized(value any) any {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}
