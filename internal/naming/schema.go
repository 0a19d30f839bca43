/*
Copyright 2018 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package naming implements the parameterized blob-name templates shared
// by the driver and the worker: substitution (MakeString), reversal
// (Parse) and deterministic prefix enumeration for blob-store listing
// (Prefix).
package naming

import (
	"sort"
	"strings"

	"github.com/gravitational/trace"
)

// FieldKind distinguishes a field whose legal values form a small, known
// enumeration from one that accepts any validated string.
type FieldKind int

const (
	// Arbitrary fields accept any string accepted by Validate.
	Arbitrary FieldKind = iota
	// Enum fields are restricted to the values listed in Values.
	Enum
)

// Field describes one templated component of a Schema.
type Field struct {
	// Name identifies the field in MakeString/Parse/Prefix arguments.
	Name string
	// Kind selects how Prefix treats unknown values for this field.
	Kind FieldKind
	// Values lists the permitted values for an Enum field.
	Values []string
	// Validate rejects malformed values for an Arbitrary field. A nil
	// Validate accepts any non-empty string.
	Validate func(string) error
}

func (f Field) validate(value string) error {
	switch f.Kind {
	case Enum:
		for _, v := range f.Values {
			if v == value {
				return nil
			}
		}
		return trace.BadParameter("field %q: %q is not one of %v", f.Name, value, f.Values)
	default:
		if value == "" {
			return trace.BadParameter("field %q: empty value", f.Name)
		}
		if f.Validate != nil {
			return f.Validate(value)
		}
		return nil
	}
}

// piece is one element of a compiled Schema template: either a literal
// separator or a reference to one of the schema's fields.
type piece struct {
	literal string
	field   *Field
}

// Schema is a parameterized blob-name template: a sequence of literal
// separators and named fields, in the textual order they appear in the
// name.
type Schema struct {
	pieces []piece
	fields map[string]*Field
}

// NewSchema compiles a template from literal and field parts, supplied in
// the order they occur in the name. Pass a string for a literal separator
// and a Field value for a templated component; any other type panics.
func NewSchema(parts ...interface{}) *Schema {
	s := &Schema{fields: make(map[string]*Field)}
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			s.pieces = append(s.pieces, piece{literal: v})
		case Field:
			f := v
			s.fields[f.Name] = &f
			s.pieces = append(s.pieces, piece{field: &f})
		default:
			panic("naming: NewSchema part must be a string or Field")
		}
	}
	return s
}

// MakeString substitutes fields into the template, validating each value
// against its field's constraints.
func (s *Schema) MakeString(fields map[string]string) (string, error) {
	var b strings.Builder
	for _, p := range s.pieces {
		if p.field == nil {
			b.WriteString(p.literal)
			continue
		}
		value, ok := fields[p.field.Name]
		if !ok {
			return "", trace.BadParameter("missing value for field %q", p.field.Name)
		}
		if err := p.field.validate(value); err != nil {
			return "", trace.Wrap(err)
		}
		b.WriteString(value)
	}
	return b.String(), nil
}

// Parse splits name according to the template and returns the field
// values found. It fails if name does not match the template shape. A
// field's value ends at the first occurrence of the literal that follows
// it, so Parse reverses MakeString only when no such value contains that
// literal.
func (s *Schema) Parse(name string) (map[string]string, error) {
	out := make(map[string]string)
	rest := name
	for i, p := range s.pieces {
		if p.field == nil {
			if !strings.HasPrefix(rest, p.literal) {
				return nil, trace.BadParameter("name %q does not match schema at literal %q", name, p.literal)
			}
			rest = rest[len(p.literal):]
			continue
		}
		// Determine the delimiter that ends this field's value: the
		// literal immediately following it, if any.
		var value string
		if i+1 < len(s.pieces) && s.pieces[i+1].field == nil {
			delim := s.pieces[i+1].literal
			idx := strings.Index(rest, delim)
			if idx < 0 {
				return nil, trace.BadParameter("name %q does not match schema: missing %q after field %q", name, delim, p.field.Name)
			}
			value = rest[:idx]
			rest = rest[idx:]
		} else {
			value = rest
			rest = ""
		}
		if err := p.field.validate(value); err != nil {
			return nil, trace.Wrap(err, "name %q", name)
		}
		out[p.field.Name] = value
	}
	if rest != "" {
		return nil, trace.BadParameter("name %q has trailing content %q", name, rest)
	}
	return out, nil
}

// Prefix enumerates the shortest blob-name prefixes that could match any
// legal completion of the template, given that some fields are known
// (non-empty entries of fields) and others are unknown (absent or empty
// entries). It walks the template left to right; for each unknown field
// it either enumerates every permitted value (if doing so keeps the
// result within maxCount), or collapses to the longest common prefix of
// that field's permitted values and stops, since anything after an
// unresolved field can no longer be anchored deterministically.
func (s *Schema) Prefix(fields map[string]string, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		maxCount = 1
	}
	prefixes := []string{""}
	for _, p := range s.pieces {
		if p.field == nil {
			for i := range prefixes {
				prefixes[i] += p.literal
			}
			continue
		}
		known, ok := fields[p.field.Name]
		if ok && known != "" {
			for i := range prefixes {
				prefixes[i] += known
			}
			continue
		}
		if p.field.Kind != Enum {
			// Arbitrary field with no known value: cannot enumerate or
			// bound a common prefix beyond "", so this is where
			// enumeration necessarily stops.
			return prefixes, nil
		}
		values := append([]string(nil), p.field.Values...)
		sort.Strings(values)
		if len(prefixes)*len(values) <= maxCount {
			expanded := make([]string, 0, len(prefixes)*len(values))
			for _, existing := range prefixes {
				for _, v := range values {
					expanded = append(expanded, existing+v)
				}
			}
			prefixes = expanded
			continue
		}
		common := longestCommonPrefix(values)
		for i := range prefixes {
			prefixes[i] += common
		}
		return prefixes, nil
	}
	return prefixes, nil
}

func longestCommonPrefix(values []string) string {
	if len(values) == 0 {
		return ""
	}
	prefix := values[0]
	for _, v := range values[1:] {
		prefix = commonPrefix(prefix, v)
		if prefix == "" {
			break
		}
	}
	return prefix
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
