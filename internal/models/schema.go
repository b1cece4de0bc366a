package models

import (
	"fmt"
	"strings"
)

// SchemaError reports an invalid resource definition.
type SchemaError struct {
	Resource string
	Reason   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("resource %q: %s", e.Resource, e.Reason)
}

// Schema is the immutable description of one resource kind: its endpoint and
// its fields in declaration order.
type Schema struct {
	Name     string
	Endpoint string
	Help     string

	fields   []Field
	byName   map[string]int
	unique   map[string]bool
	required []string
}

// NewSchema builds a Schema. Fields keep the order they are listed in; the
// endpoint gets a trailing slash if it lacks one.
func NewSchema(name, endpoint string, fields ...Field) (*Schema, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, &SchemaError{Resource: name, Reason: "an endpoint is required"}
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	s := &Schema{
		Name:     name,
		Endpoint: endpoint,
		fields:   make([]Field, len(fields)),
		byName:   make(map[string]int, len(fields)),
		unique:   make(map[string]bool),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, &SchemaError{Resource: name, Reason: fmt.Sprintf("field %d has no name", i)}
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, &SchemaError{Resource: name, Reason: fmt.Sprintf("duplicate field %q", f.Name)}
		}
		if f.Type == nil {
			f.Type = String
		}
		f.Ordinal = i
		s.fields[i] = f
		s.byName[f.Name] = i
		if f.Unique {
			s.unique[f.Name] = true
		}
		if f.Required {
			s.required = append(s.required, f.Name)
		}
	}
	return s, nil
}

// MustSchema is NewSchema for package-level resource definitions.
func MustSchema(name, endpoint string, fields ...Field) *Schema {
	s, err := NewSchema(name, endpoint, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// IsUnique reports whether name is one of the unique fields.
func (s *Schema) IsUnique(name string) bool {
	return s.unique[name]
}

// UniqueFields returns the unique field names in declaration order.
func (s *Schema) UniqueFields() []string {
	var names []string
	for _, f := range s.fields {
		if f.Unique {
			names = append(names, f.Name)
		}
	}
	return names
}

// RequiredFields returns the required field names in declaration order.
func (s *Schema) RequiredFields() []string {
	out := make([]string, len(s.required))
	copy(out, s.required)
	return out
}

// DetailPath returns the endpoint of a single record.
func (s *Schema) DetailPath(pk int) string {
	return fmt.Sprintf("%s%d/", s.Endpoint, pk)
}
