package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/gatherly/intake/internal/domain"
)

// Result is the outcome of evaluating one submission against one rule spec.
type Result struct {
	Failures []domain.FieldFailure
	// Values holds the declared fields that were present and passed, normalized.
	Values map[string]any
}

func (r Result) Valid() bool {
	return len(r.Failures) == 0
}

// Engine evaluates submissions against a fixed registry of rule specs.
// It is immutable after construction and safe for concurrent use.
type Engine struct {
	specs map[string]RuleSpec
	now   func() time.Time
}

type Option func(*Engine)

// WithClock replaces the wall clock used by time-dependent predicates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine compiles specs and registers them by name. Later specs replace earlier
// ones with the same name, so a loaded document can override the built-ins.
func NewEngine(specs []RuleSpec, predicates map[string]Predicate, opts ...Option) (*Engine, error) {
	e := &Engine{
		specs: make(map[string]RuleSpec, len(specs)),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	for i, spec := range specs {
		compiled, err := spec.compile(predicates)
		if err != nil {
			return nil, fmt.Errorf("specs[%d]: %w", i, err)
		}
		e.specs[compiled.Name] = compiled
	}
	return e, nil
}

// Names lists the registered rule spec names in sorted order.
func (e *Engine) Names() []string {
	names := make([]string, 0, len(e.specs))
	for name := range e.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) Spec(name string) (RuleSpec, bool) {
	spec, ok := e.specs[name]
	return spec, ok
}

// Evaluate checks every declared field independently. Per field the first failing
// constraint is reported; failures follow the rule spec's field order.
func (e *Engine) Evaluate(ruleSpecName string, sub domain.Submission) (Result, error) {
	spec, ok := e.specs[ruleSpecName]
	if !ok {
		return Result{}, domain.Malformed("unknown rule spec %q", ruleSpecName)
	}
	if err := sub.CheckShape(); err != nil {
		return Result{}, err
	}

	now := e.now()
	res := Result{Values: make(map[string]any, len(spec.Fields))}
	for _, rule := range spec.Fields {
		if failure, ok := evaluateField(rule, sub.Fields, now); !ok {
			res.Failures = append(res.Failures, failure)
			continue
		}
		if value, ok := present(sub.Fields, rule.Field); ok {
			if rule.Optional && stringValue(value) == "" {
				continue
			}
			res.Values[rule.Field] = normalized(value)
		}
	}
	return res, nil
}

func evaluateField(rule FieldRule, fields map[string]any, now time.Time) (domain.FieldFailure, bool) {
	value, isPresent := present(fields, rule.Field)
	text := stringValue(value)
	blank := !isPresent || text == ""

	if rule.Optional && blank {
		return domain.FieldFailure{}, true
	}
	// A blank value fails on required wherever it is declared in the list.
	if blank {
		for _, c := range rule.Constraints {
			if c.Kind == KindRequired {
				return domain.FieldFailure{
					Field:   rule.Field,
					Reason:  string(KindRequired),
					Message: c.messageOr("is required"),
					Value:   value,
				}, false
			}
		}
	}
	if !isPresent {
		return domain.FieldFailure{}, true
	}
	for _, c := range rule.Constraints {
		if c.Kind == KindRequired {
			continue
		}
		if ok, msg := c.check(value, text, now); !ok {
			return domain.FieldFailure{
				Field:   rule.Field,
				Reason:  string(c.Kind),
				Message: msg,
				Value:   value,
			}, false
		}
	}
	return domain.FieldFailure{}, true
}
