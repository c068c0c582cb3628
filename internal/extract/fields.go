// Package extract runs one retrieval and generation cycle per named field
// and collects the answers in field order.
package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field is one named extraction instruction.
type Field struct {
	Name        string `yaml:"name" json:"name"`
	Instruction string `yaml:"instruction" json:"instruction"`
}

// FieldSpec is an ordered list of fields. Output follows this order.
type FieldSpec []Field

// DefaultFieldSpec is the built-in personal-injury intake field set.
func DefaultFieldSpec() FieldSpec {
	return FieldSpec{
		{Name: "Plaintiff", Instruction: "What is the full name of the plaintiff or injured client?"},
		{Name: "Defendant", Instruction: "Who is the defendant or the party alleged to be at fault?"},
		{Name: "DOB", Instruction: "What is the plaintiff's date of birth?"},
		{Name: "Date of Incident", Instruction: "On what date did the incident occur?"},
		{Name: "Incident Overview", Instruction: "Summarize how the incident happened in two or three sentences."},
		{Name: "Injuries", Instruction: "List the injuries the plaintiff sustained."},
		{Name: "Treatment", Instruction: "Describe the medical treatment the plaintiff received, including providers and dates."},
	}
}

// Validate checks that names are present and unique and every field has an
// instruction.
func (s FieldSpec) Validate() error {
	if len(s) == 0 {
		return errors.New("field spec is empty")
	}
	seen := make(map[string]bool, len(s))
	for i, f := range s {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate field name %q", name)
		}
		seen[name] = true
		if strings.TrimSpace(f.Instruction) == "" {
			return fmt.Errorf("field %q has no instruction", name)
		}
	}
	return nil
}

// Names returns the field names in order.
func (s FieldSpec) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Select keeps only the named fields, in spec order.
func (s FieldSpec) Select(names []string) (FieldSpec, error) {
	if len(names) == 0 {
		return s, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}
	var out FieldSpec
	for _, f := range s {
		if want[f.Name] {
			out = append(out, f)
			delete(want, f.Name)
		}
	}
	for _, n := range names {
		if want[strings.TrimSpace(n)] {
			return nil, fmt.Errorf("unknown field %q", n)
		}
	}
	return out, nil
}

// ParseFieldSpec reads YAML in either form:
//
//	Plaintiff: What is the plaintiff's name?
//	DOB: What is the plaintiff's date of birth?
//
// or a sequence of {name, instruction} items. Mapping order is kept.
func ParseFieldSpec(data []byte) (FieldSpec, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse field spec: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.New("field spec is empty")
	}
	node := root.Content[0]

	// Allow a top-level "fields:" key.
	if node.Kind == yaml.MappingNode && len(node.Content) == 2 && node.Content[0].Value == "fields" &&
		node.Content[1].Kind != yaml.ScalarNode {
		node = node.Content[1]
	}

	var spec FieldSpec
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("field %q: instruction must be a string (line %d)", k.Value, v.Line)
			}
			spec = append(spec, Field{Name: k.Value, Instruction: v.Value})
		}
	case yaml.SequenceNode:
		if err := node.Decode(&spec); err != nil {
			return nil, fmt.Errorf("parse field spec: %w", err)
		}
	default:
		return nil, fmt.Errorf("field spec must be a mapping or a list (line %d)", node.Line)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// LoadFieldSpec reads a field spec file.
func LoadFieldSpec(path string) (FieldSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field spec: %w", err)
	}
	return ParseFieldSpec(data)
}
