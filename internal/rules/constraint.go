package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// ConstraintKind tags the variant held by a Constraint.
type ConstraintKind string

const (
	KindRequired     ConstraintKind = "required"
	KindLength       ConstraintKind = "length"
	KindNumericRange ConstraintKind = "numeric_range"
	KindEnum         ConstraintKind = "enum"
	KindPattern      ConstraintKind = "pattern"
	KindISODate      ConstraintKind = "iso_date"
	KindCustom       ConstraintKind = "custom"
)

const patternMatchTimeout = 100 * time.Millisecond

// Predicate is a custom check. now is the engine clock at evaluation time.
type Predicate func(value any, now time.Time) bool

// Constraint is one atomic rule bound to a field. Only the members relevant to Kind are read.
type Constraint struct {
	Kind ConstraintKind `json:"kind" yaml:"kind"`

	MinLength *int `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty" yaml:"max_length,omitempty"`

	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	Values []string `json:"values,omitempty" yaml:"values,omitempty"`

	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	PredicateName string `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	Message       string `json:"message,omitempty" yaml:"message,omitempty"`

	predicate Predicate
	re        *regexp2.Regexp
}

func Required() Constraint {
	return Constraint{Kind: KindRequired}
}

// Length bounds the trimmed rune count. A max of zero leaves the upper bound open.
func Length(min, max int) Constraint {
	c := Constraint{Kind: KindLength, MinLength: &min}
	if max > 0 {
		c.MaxLength = &max
	}
	return c
}

func MaxLength(max int) Constraint {
	return Constraint{Kind: KindLength, MaxLength: &max}
}

// Range is an inclusive numeric bound.
func Range(min, max float64) Constraint {
	return Constraint{Kind: KindNumericRange, Min: &min, Max: &max}
}

func Enum(values ...string) Constraint {
	return Constraint{Kind: KindEnum, Values: append([]string(nil), values...)}
}

// Pattern requires the whole trimmed value to match expr. Lookaheads are supported.
func Pattern(expr, message string) Constraint {
	return Constraint{Kind: KindPattern, Pattern: expr, Message: message}
}

func ISODate() Constraint {
	return Constraint{Kind: KindISODate}
}

// Custom binds an inline predicate. name is used when the rule set is exported.
func Custom(name string, fn Predicate, message string) Constraint {
	return Constraint{Kind: KindCustom, PredicateName: name, Message: message, predicate: fn}
}

// compile resolves the regex and the named predicate so evaluation never fails on setup.
func (c *Constraint) compile(predicates map[string]Predicate) error {
	c.Kind = ConstraintKind(strings.ToLower(strings.TrimSpace(string(c.Kind))))
	switch c.Kind {
	case KindRequired, KindISODate:
		return nil
	case KindLength:
		if c.MinLength == nil && c.MaxLength == nil {
			return fmt.Errorf("length requires min_length or max_length")
		}
		if c.MinLength != nil && *c.MinLength < 0 {
			return fmt.Errorf("min_length must be >= 0")
		}
		if c.MinLength != nil && c.MaxLength != nil && *c.MinLength > *c.MaxLength {
			return fmt.Errorf("min_length must be <= max_length")
		}
		return nil
	case KindNumericRange:
		if c.Min == nil && c.Max == nil {
			return fmt.Errorf("numeric_range requires min or max")
		}
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return fmt.Errorf("min must be <= max")
		}
		return nil
	case KindEnum:
		if len(c.Values) == 0 {
			return fmt.Errorf("enum requires values")
		}
		return nil
	case KindPattern:
		if strings.TrimSpace(c.Pattern) == "" {
			return fmt.Errorf("pattern is required")
		}
		re, err := regexp2.Compile(`\A(?:`+c.Pattern+`)\z`, regexp2.None)
		if err != nil {
			return fmt.Errorf("compile pattern: %w", err)
		}
		re.MatchTimeout = patternMatchTimeout
		c.re = re
		return nil
	case KindCustom:
		if c.predicate != nil {
			return nil
		}
		name := strings.TrimSpace(c.PredicateName)
		if name == "" {
			return fmt.Errorf("custom requires predicate")
		}
		fn, ok := predicates[name]
		if !ok {
			return fmt.Errorf("unknown predicate %q", name)
		}
		c.predicate = fn
		return nil
	case "":
		return fmt.Errorf("kind is required")
	default:
		return fmt.Errorf("kind unsupported: %q", c.Kind)
	}
}

// check reports whether value satisfies c, and a message when it does not.
// text is the trimmed string form of value.
func (c Constraint) check(value any, text string, now time.Time) (bool, string) {
	switch c.Kind {
	case KindLength:
		n := runeLen(text)
		if c.MinLength != nil && n < *c.MinLength {
			return false, fmt.Sprintf("must be at least %d characters", *c.MinLength)
		}
		if c.MaxLength != nil && n > *c.MaxLength {
			return false, fmt.Sprintf("must be at most %d characters", *c.MaxLength)
		}
		return true, ""
	case KindNumericRange:
		f, err := floatValue(value)
		if err != nil {
			return false, "must be a number"
		}
		if (c.Min != nil && f < *c.Min) || (c.Max != nil && f > *c.Max) {
			return false, rangeMessage(c.Min, c.Max)
		}
		return true, ""
	case KindEnum:
		raw := rawString(value)
		for _, allowed := range c.Values {
			if raw == allowed {
				return true, ""
			}
		}
		return false, "must be one of: " + strings.Join(c.Values, ", ")
	case KindPattern:
		if c.re == nil {
			return false, c.messageOr("has an invalid format")
		}
		ok, err := c.re.MatchString(text)
		if err != nil || !ok {
			return false, c.messageOr("has an invalid format")
		}
		return true, ""
	case KindISODate:
		if _, err := parseDateTime(text); err != nil {
			return false, "must be a valid date"
		}
		return true, ""
	case KindCustom:
		if c.predicate == nil || !c.predicate(value, now) {
			return false, c.messageOr("is invalid")
		}
		return true, ""
	default:
		return true, ""
	}
}

func (c Constraint) messageOr(fallback string) string {
	if msg := strings.TrimSpace(c.Message); msg != "" {
		return msg
	}
	return fallback
}

func rangeMessage(min, max *float64) string {
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("must be between %g and %g", *min, *max)
	case min != nil:
		return fmt.Sprintf("must be at least %g", *min)
	default:
		return fmt.Sprintf("must be at most %g", *max)
	}
}
