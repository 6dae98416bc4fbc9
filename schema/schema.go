// Package schema provides composable value validators.
//
// A Schema parses an arbitrary value and either returns its (possibly
// normalized) output or an Errors value listing every violation. Schemas
// compose: Record, Union, Nilable, MapOf and Assert wrap other schemas, and
// nested violations are reported with dotted paths such as "user.email".
package schema

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

type Schema interface {
	Parse(value any) (any, error)
}

type parser interface {
	parse(path string, value any) (any, Errors)
}

func parse(schema Schema, path string, value any) (any, Errors) {
	if schema == nil {
		return value, nil
	}
	if p, ok := schema.(parser); ok {
		return p.parse(path, value)
	}
	output, err := schema.Parse(value)
	if err == nil {
		return output, nil
	}
	if issues := Extract(err); issues != nil {
		prefixed := make(Errors, 0, len(issues))
		for _, issue := range issues {
			prefixed = append(prefixed, Issue{Path: join(path, issue.Path), Message: issue.Message})
		}
		return nil, prefixed
	}
	return nil, Errors{{Path: path, Message: err.Error()}}
}

func run(p parser, value any) (any, error) {
	output, issues := p.parse("", value)
	if len(issues) > 0 {
		return nil, issues
	}
	return output, nil
}

func join(path, field string) string {
	switch {
	case path == "":
		return field
	case field == "":
		return path
	}
	return path + "." + field
}

/******* Scalars *******/

type kindSchema struct {
	name  string
	check func(value any) bool
}

func (s kindSchema) Parse(value any) (any, error) { return run(s, value) }

func (s kindSchema) parse(path string, value any) (any, Errors) {
	if !s.check(value) {
		var issues Errors
		issues.add(path, "expected %s, got %s", s.name, describe(value))
		return nil, issues
	}
	return value, nil
}

func Any() Schema {
	return kindSchema{name: "any", check: func(any) bool { return true }}
}

func String() Schema {
	return kindSchema{name: "string", check: func(value any) bool {
		_, ok := value.(string)
		return ok
	}}
}

func Bool() Schema {
	return kindSchema{name: "bool", check: func(value any) bool {
		_, ok := value.(bool)
		return ok
	}}
}

func Number() Schema {
	return kindSchema{name: "number", check: func(value any) bool {
		if value == nil {
			return false
		}
		switch reflect.TypeOf(value).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	}}
}

func describe(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}

/******* Literal *******/

type literal struct {
	values []any
}

// Literal accepts a value deeply equal to one of values.
func Literal(values ...any) Schema {
	return literal{values: values}
}

func (s literal) Parse(value any) (any, error) { return run(s, value) }

func (s literal) parse(path string, value any) (any, Errors) {
	for _, candidate := range s.values {
		if reflect.DeepEqual(candidate, value) {
			return value, nil
		}
	}
	var issues Errors
	issues.add(path, "expected one of %v, got %v", s.values, value)
	return nil, issues
}

/******* Record *******/

type Fields map[string]Schema

type record struct {
	fields Fields
}

// Record accepts a map[string]any whose declared fields each satisfy their
// schema. Undeclared keys are passed through untouched; a missing key is
// parsed as nil so that Nilable fields may be omitted.
func Record(fields Fields) Schema {
	return record{fields: fields}
}

func (s record) Parse(value any) (any, error) { return run(s, value) }

func (s record) parse(path string, value any) (any, Errors) {
	input, ok := value.(map[string]any)
	if !ok {
		if value == nil {
			input = map[string]any{}
		} else {
			var issues Errors
			issues.add(path, "expected record, got %s", describe(value))
			return nil, issues
		}
	}
	output := maps.Clone(input)
	if output == nil {
		output = map[string]any{}
	}
	var issues Errors
	for _, name := range slices.Sorted(maps.Keys(s.fields)) {
		raw, present := input[name]
		if !present {
			if _, nilable := s.fields[name].(nilable); !nilable {
				issues.add(join(path, name), "required")
				continue
			}
		}
		parsed, fieldIssues := parse(s.fields[name], join(path, name), raw)
		if len(fieldIssues) > 0 {
			issues = append(issues, fieldIssues...)
			continue
		}
		if present || parsed != nil {
			output[name] = parsed
		}
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return output, nil
}

/******* Union *******/

type union struct {
	options []Schema
}

// Union accepts the output of the first option that parses value.
func Union(options ...Schema) Schema {
	return union{options: options}
}

func (s union) Parse(value any) (any, error) { return run(s, value) }

func (s union) parse(path string, value any) (any, Errors) {
	var all Errors
	for _, option := range s.options {
		output, issues := parse(option, path, value)
		if len(issues) == 0 {
			return output, nil
		}
		all = append(all, issues...)
	}
	var issues Errors
	issues.add(path, "no union member matched")
	return nil, append(issues, all...)
}

/******* Nilable *******/

type nilable struct {
	inner Schema
}

func Nilable(inner Schema) Schema {
	return nilable{inner: inner}
}

func (s nilable) Parse(value any) (any, error) { return run(s, value) }

func (s nilable) parse(path string, value any) (any, Errors) {
	if value == nil {
		return nil, nil
	}
	return parse(s.inner, path, value)
}

/******* MapOf *******/

type mapOf struct {
	values Schema
}

// MapOf accepts a map[string]any whose every value satisfies values.
func MapOf(values Schema) Schema {
	return mapOf{values: values}
}

func (s mapOf) Parse(value any) (any, error) { return run(s, value) }

func (s mapOf) parse(path string, value any) (any, Errors) {
	input, ok := value.(map[string]any)
	if !ok {
		var issues Errors
		issues.add(path, "expected map, got %s", describe(value))
		return nil, issues
	}
	output := make(map[string]any, len(input))
	var issues Errors
	for _, key := range slices.Sorted(maps.Keys(input)) {
		parsed, valueIssues := parse(s.values, join(path, key), input[key])
		if len(valueIssues) > 0 {
			issues = append(issues, valueIssues...)
			continue
		}
		output[key] = parsed
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return output, nil
}

/******* Assert *******/

type assert struct {
	inner   Schema
	check   func(value any) bool
	message string
}

// Assert runs check on the output of inner and fails with message when it
// returns false.
func Assert(inner Schema, check func(value any) bool, message string, args ...any) Schema {
	return assert{inner: inner, check: check, message: fmt.Sprintf(message, args...)}
}

func (s assert) Parse(value any) (any, error) { return run(s, value) }

func (s assert) parse(path string, value any) (any, Errors) {
	output, issues := parse(s.inner, path, value)
	if len(issues) > 0 {
		return nil, issues
	}
	if s.check != nil && !s.check(output) {
		issues.add(path, "%s", s.message)
		return nil, issues
	}
	return output, nil
}
