package models

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Type converts raw CLI text into the value sent to the API.
type Type interface {
	// Name is the short type name shown in help text.
	Name() string
	// Convert validates raw and returns the semantic value.
	Convert(raw string) (interface{}, error)
}

type stringType struct{}

func (stringType) Name() string { return "str" }

func (stringType) Convert(raw string) (interface{}, error) { return raw, nil }

type intType struct{}

func (intType) Name() string { return "int" }

func (intType) Convert(raw string) (interface{}, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%q is not a valid integer", raw)
	}
	return n, nil
}

type boolType struct{}

func (boolType) Name() string { return "bool" }

func (boolType) Convert(raw string) (interface{}, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return nil, fmt.Errorf("%q is not a valid boolean", raw)
}

// Basic field types.
var (
	String Type = stringType{}
	Int    Type = intType{}
	Bool   Type = boolType{}
)

// ChoiceType accepts one of a fixed set of values. When Mapped is set the
// typed choice is translated to the value sent over the wire.
type ChoiceType struct {
	Values []string
	Mapped map[string]interface{}
}

// Choice returns a ChoiceType over the given values.
func Choice(values ...string) ChoiceType {
	return ChoiceType{Values: values}
}

// MappedChoice returns a ChoiceType whose CLI spelling differs from the API
// value. Order of the CLI choices follows keys.
func MappedChoice(keys []string, mapping map[string]interface{}) ChoiceType {
	return ChoiceType{Values: keys, Mapped: mapping}
}

func (c ChoiceType) Name() string { return "choice" }

func (c ChoiceType) Convert(raw string) (interface{}, error) {
	for _, v := range c.Values {
		if v == raw {
			if c.Mapped != nil {
				return c.Mapped[v], nil
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("invalid choice: %s. (choose from %s)", raw, strings.Join(c.Values, ", "))
}

type fileType struct{}

func (fileType) Name() string { return "file" }

// Convert reads the named file and returns its content. A leading ~ is
// expanded to the user's home directory.
func (fileType) Convert(raw string) (interface{}, error) {
	path, err := ExpandUser(raw)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", raw, err)
	}
	return string(data), nil
}

// File reads its argument as a path and sends the file content.
var File Type = fileType{}

// ExpandUser replaces a leading ~ with the current user's home directory.
func ExpandUser(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

var digitsRe = regexp.MustCompile(`^\d+$`)

// RelatedType is a primary key of another resource kind. Digits convert to an
// int directly; anything else becomes a RelatedRef that the resource layer
// resolves with a lookup on Resource by Criterion.
type RelatedType struct {
	Resource  string
	Criterion string
}

// Related returns a RelatedType matching on the "name" field.
func Related(resource string) RelatedType {
	return RelatedType{Resource: resource, Criterion: "name"}
}

func (r RelatedType) Name() string { return r.Resource }

func (r RelatedType) Convert(raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty %s reference", r.Resource)
	}
	if digitsRe.MatchString(raw) {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	return RelatedRef{Resource: r.Resource, Criterion: r.Criterion, Value: raw}, nil
}

// RelatedRef is an unresolved reference to another record by a lookup field.
type RelatedRef struct {
	Resource  string
	Criterion string
	Value     string
}

func (r RelatedRef) String() string {
	return fmt.Sprintf("%s %s=%q", r.Resource, r.Criterion, r.Value)
}
