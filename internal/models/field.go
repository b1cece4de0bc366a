package models

import (
	"fmt"
	"strings"
)

// Field describes one attribute of a resource kind.
type Field struct {
	Name    string
	Type    Type
	Default interface{}
	Help    string

	Filterable bool
	Unique     bool
	ReadOnly   bool
	Required   bool
	Password   bool

	// Implicit fields are never read from flags; Formula derives them from
	// the other values of a write.
	Implicit bool
	Formula  func(values Record) (interface{}, error)

	// Ordinal is the declaration position, assigned by NewSchema.
	Ordinal int
}

// F declares a field with the defaults of a plain attribute: string typed,
// filterable and required.
func F(name string, opts ...FieldOption) Field {
	f := Field{Name: name, Type: String, Filterable: true, Required: true}
	for _, o := range opts {
		o(&f)
	}
	return f
}

// FieldOption customizes a Field declared with F.
type FieldOption func(*Field)

// Typed sets the field's value type. Fields default to String.
func Typed(t Type) FieldOption { return func(f *Field) { f.Type = t } }

// Default sets the value create sends when the flag is not given.
func Default(v interface{}) FieldOption { return func(f *Field) { f.Default = v } }

// HelpText sets the flag's help string.
func HelpText(s string) FieldOption { return func(f *Field) { f.Help = s } }

// Unique marks a field that identifies a record on its own.
func Unique() FieldOption { return func(f *Field) { f.Unique = true } }

// ReadOnly excludes the field from create and modify.
func ReadOnly() FieldOption { return func(f *Field) { f.ReadOnly = true } }

// Optional drops the requirement that create supply the field.
func Optional() FieldOption { return func(f *Field) { f.Required = false } }

// NotFilterable keeps the field out of list, get and delete filters.
func NotFilterable() FieldOption { return func(f *Field) { f.Filterable = false } }

// Secret marks a password field: masked on output and never filterable.
func Secret() FieldOption {
	return func(f *Field) {
		f.Password = true
		f.Filterable = false
	}
}

// Implicit declares a field computed by formula rather than given on the
// command line.
func Implicit(name string, formula func(values Record) (interface{}, error), opts ...FieldOption) Field {
	f := Field{Name: name, Type: String, Required: true, Implicit: true, Formula: formula}
	for _, o := range opts {
		o(&f)
	}
	return f
}

// Option returns the command-line flag spelling of the field, e.g. "--first-name".
func (f Field) Option() string {
	return "--" + f.FlagName()
}

// FlagName is Option without the leading dashes.
func (f Field) FlagName() string {
	return strings.ReplaceAll(f.Name, "_", "-")
}

// Flags describes the field's attributes for help output.
func (f Field) Flags() string {
	if f.Implicit {
		return "implicit"
	}
	parts := []string{f.Type.Name()}
	if f.ReadOnly {
		parts = append(parts, "read-only")
	}
	if f.Unique {
		parts = append(parts, "unique")
	}
	if !f.Filterable {
		parts = append(parts, "not filterable")
	}
	if !f.Required {
		parts = append(parts, "not required")
	}
	return strings.Join(parts, ", ")
}

// HelpString returns the help text, or a generic description, followed by
// the field's default if it has one.
func (f Field) HelpString() string {
	help := f.Help
	if help == "" {
		help = "The " + f.Name + " field."
	}
	if f.Default != nil {
		help += fmt.Sprintf(" Defaults to %v.", f.Default)
	}
	return help
}

// Writable reports whether the field can be sent on create or modify.
func (f Field) Writable() bool {
	return !f.ReadOnly && !f.Implicit
}
