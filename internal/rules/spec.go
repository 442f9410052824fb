package rules

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const DocumentSchemaV1 = "intake.rules.v1"

// RuleSpec is the named, ordered rule set for one operation.
type RuleSpec struct {
	Name   string      `json:"name" yaml:"name"`
	Fields []FieldRule `json:"fields" yaml:"fields"`
}

// FieldRule binds an ordered constraint list to one field. Optional fields that are
// absent or blank skip all of their constraints.
type FieldRule struct {
	Field       string       `json:"field" yaml:"field"`
	Optional    bool         `json:"optional,omitempty" yaml:"optional,omitempty"`
	Constraints []Constraint `json:"constraints" yaml:"constraints"`
}

// Document is the on-disk form of a set of rule specs.
type Document struct {
	Schema string     `json:"schema" yaml:"schema"`
	Specs  []RuleSpec `json:"specs" yaml:"specs"`
}

func Field(name string, constraints ...Constraint) FieldRule {
	return FieldRule{Field: name, Constraints: constraints}
}

func OptionalField(name string, constraints ...Constraint) FieldRule {
	return FieldRule{Field: name, Optional: true, Constraints: constraints}
}

// ParseDocument decodes a YAML rule document and compiles every spec in it.
func ParseDocument(input []byte, predicates map[string]Predicate) ([]RuleSpec, error) {
	var doc Document
	if err := yaml.Unmarshal(input, &doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if strings.TrimSpace(doc.Schema) != DocumentSchemaV1 {
		return nil, fmt.Errorf("rules.schema must be %q", DocumentSchemaV1)
	}
	if len(doc.Specs) == 0 {
		return nil, errors.New("rules.specs must be non-empty")
	}
	specs := make([]RuleSpec, 0, len(doc.Specs))
	for i, spec := range doc.Specs {
		compiled, err := spec.compile(predicates)
		if err != nil {
			return nil, fmt.Errorf("rules.specs[%d]: %w", i, err)
		}
		specs = append(specs, compiled)
	}
	return specs, nil
}

// compile validates the rule spec and returns a copy with regexes and predicates resolved.
func (s RuleSpec) compile(predicates map[string]Predicate) (RuleSpec, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return RuleSpec{}, errors.New("name is required")
	}
	if len(s.Fields) == 0 {
		return RuleSpec{}, fmt.Errorf("spec %q: fields must be non-empty", name)
	}

	out := RuleSpec{Name: name, Fields: make([]FieldRule, 0, len(s.Fields))}
	seen := make(map[string]struct{}, len(s.Fields))
	for i, rule := range s.Fields {
		field := strings.TrimSpace(rule.Field)
		if field == "" {
			return RuleSpec{}, fmt.Errorf("spec %q: fields[%d].field is required", name, i)
		}
		if _, ok := seen[field]; ok {
			return RuleSpec{}, fmt.Errorf("spec %q: fields[%d].field must be unique (duplicate %q)", name, i, field)
		}
		seen[field] = struct{}{}

		constraints := make([]Constraint, len(rule.Constraints))
		copy(constraints, rule.Constraints)
		for j := range constraints {
			if err := constraints[j].compile(predicates); err != nil {
				return RuleSpec{}, fmt.Errorf("spec %q: fields[%d].constraints[%d]: %w", name, i, j, err)
			}
		}
		out.Fields = append(out.Fields, FieldRule{
			Field:       field,
			Optional:    rule.Optional,
			Constraints: constraints,
		})
	}
	return out, nil
}
