// Package schema provides JSON parsing and bounded, typed validation for
// gaffer's persisted operational files (locks, stats, metrics, pause and
// approval records).
//
// Persisted files are written incrementally over long-running processes,
// often by older versions of the tool. A single corrupted or
// partially-upgraded record must not make an entire history unreadable,
// so validation supports opt-in recovery: fields with a declared default
// are substituted rather than rejected, and array elements that cannot be
// recovered are dropped individually.
package schema

import (
	"fmt"
	"math"
	"regexp"
	"slices"
)

// FieldType enumerates the JSON types a field constraint can require.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Field declares the constraints for a single field.
type Field struct {
	Type     FieldType
	Required bool

	// Numeric constraints. Nil means unconstrained.
	Min     *float64
	Max     *float64
	Integer bool

	// String constraints. Nil means unconstrained.
	MinLength *int
	MaxLength *int
	Pattern   *regexp.Regexp
	Enum      []string

	// Default, when HasDefault is set, makes the field recoverable: a
	// missing or invalid value may be replaced instead of rejecting the
	// whole record.
	Default    any
	HasDefault bool

	// Fields is the sub-schema for object-typed fields.
	Fields map[string]Field

	// Item is the element constraint for array-typed fields.
	Item *Field
}

// Schema is a named set of field constraints for one persisted structure.
type Schema struct {
	Name   string
	Fields map[string]Field
}

// FieldError describes one validation failure.
type FieldError struct {
	Path      string
	Message   string
	Value     any
	Recovered bool
}

// Error implements the error interface for FieldError.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Path, e.Message, e.Value)
}

// Result is the outcome of validating one record.
type Result struct {
	Valid         bool
	Data          map[string]any
	Errors        []FieldError
	HasRecoveries bool
}

// Options controls validation behavior.
type Options struct {
	// Recover substitutes declared defaults for missing or invalid fields
	// instead of failing the record, and drops unrecoverable array
	// elements in ValidateArray.
	Recover bool
}

// Validate checks data against the schema. Unknown fields pass through
// untouched. The returned Data is a copy of the input, nested containers
// included, with any recovered defaults applied; the caller's data is
// never mutated. Data is only meaningful when Valid is true or recovery
// produced a usable record.
func Validate(data map[string]any, s Schema, opts Options) Result {
	res := Result{
		Valid: true,
		Data:  make(map[string]any, len(data)),
	}
	for k, v := range data {
		res.Data[k] = copyValue(v)
	}

	for name, field := range s.Fields {
		validateField(&res, res.Data, name, name, field, opts)
	}

	return res
}

// validateField validates a single field inside container, recording
// errors under path. It mutates container when recovery substitutes a
// default.
func validateField(res *Result, container map[string]any, key, path string, field Field, opts Options) {
	value, present := container[key]

	if !present || value == nil {
		if field.Required {
			recoverOrFail(res, container, key, path, field, nil, "required field is missing", opts)
		}
		return
	}

	if !typeMatches(value, field.Type) {
		recoverOrFail(res, container, key, path, field, value,
			fmt.Sprintf("expected %s", field.Type), opts)
		return
	}

	switch field.Type {
	case TypeNumber:
		n := value.(float64)
		if field.Integer && n != math.Trunc(n) {
			recoverOrFail(res, container, key, path, field, value, "must be an integer", opts)
			return
		}
		if field.Min != nil && n < *field.Min {
			recoverOrFail(res, container, key, path, field, value,
				fmt.Sprintf("must be at least %v", *field.Min), opts)
			return
		}
		if field.Max != nil && n > *field.Max {
			recoverOrFail(res, container, key, path, field, value,
				fmt.Sprintf("exceeds maximum of %v", *field.Max), opts)
			return
		}

	case TypeString:
		str := value.(string)
		if field.MinLength != nil && len(str) < *field.MinLength {
			recoverOrFail(res, container, key, path, field, value,
				fmt.Sprintf("must be at least %d characters", *field.MinLength), opts)
			return
		}
		if field.MaxLength != nil && len(str) > *field.MaxLength {
			recoverOrFail(res, container, key, path, field, value,
				fmt.Sprintf("exceeds maximum length of %d characters", *field.MaxLength), opts)
			return
		}
		if field.Pattern != nil && !field.Pattern.MatchString(str) {
			recoverOrFail(res, container, key, path, field, value,
				fmt.Sprintf("must match pattern %s", field.Pattern.String()), opts)
			return
		}
		if len(field.Enum) > 0 && !slices.Contains(field.Enum, str) {
			recoverOrFail(res, container, key, path, field, value,
				fmt.Sprintf("must be one of: %v", field.Enum), opts)
			return
		}

	case TypeObject:
		if field.Fields != nil {
			nested := value.(map[string]any)
			for name, sub := range field.Fields {
				validateField(res, nested, name, path+"."+name, sub, opts)
			}
		}

	case TypeArray:
		if field.Item != nil {
			items := value.([]any)
			for i := range items {
				validateElement(res, items, i, fmt.Sprintf("%s[%d]", path, i), *field.Item, opts)
			}
		}
	}
}

// validateElement validates one array element in place.
func validateElement(res *Result, items []any, i int, path string, field Field, opts Options) {
	value := items[i]

	if !typeMatches(value, field.Type) {
		res.Errors = append(res.Errors, FieldError{
			Path:    path,
			Message: fmt.Sprintf("expected %s", field.Type),
			Value:   value,
		})
		res.Valid = false
		return
	}

	if field.Type == TypeObject && field.Fields != nil {
		nested := value.(map[string]any)
		for name, sub := range field.Fields {
			validateField(res, nested, name, path+"."+name, sub, opts)
		}
	}
}

// recoverOrFail applies the recovery rule: when recovery is enabled and
// the field declares a default, substitute it and record a recovered
// error; otherwise record a hard error and mark the record invalid.
func recoverOrFail(res *Result, container map[string]any, key, path string, field Field, value any, msg string, opts Options) {
	if opts.Recover && field.HasDefault {
		container[key] = field.Default
		res.Errors = append(res.Errors, FieldError{
			Path:      path,
			Message:   msg + " (default substituted)",
			Value:     value,
			Recovered: true,
		})
		res.HasRecoveries = true
		return
	}

	res.Errors = append(res.Errors, FieldError{
		Path:    path,
		Message: msg,
		Value:   value,
	})
	res.Valid = false
}

// copyValue deep-copies decoded JSON containers. Recovery substitutes
// defaults into nested maps and array elements in place, so the result
// must not share containers with the caller's data.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = copyValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = copyValue(val)
		}
		return s
	default:
		return v
	}
}

// typeMatches reports whether a decoded JSON value satisfies the declared
// field type. Decoded numbers are always float64.
func typeMatches(value any, t FieldType) bool {
	switch t {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeNumber:
		_, ok := value.(float64)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	case TypeArray:
		_, ok := value.([]any)
		return ok
	default:
		return false
	}
}

// ArrayResult is the outcome of validating a collection element-by-element.
type ArrayResult struct {
	Valid  bool
	Data   []map[string]any
	Errors []FieldError
}

// ValidateArray validates each element independently against itemSchema.
// Under recovery, elements that fail validation are dropped from the
// output (never defaulted wholesale) while valid and recovered elements
// are kept; Valid reports whether anything was dropped. Without recovery,
// any failing element makes the whole collection invalid.
func ValidateArray(items []any, itemSchema Schema, opts Options) ArrayResult {
	res := ArrayResult{Valid: true}

	for i, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			res.Errors = append(res.Errors, FieldError{
				Path:    fmt.Sprintf("[%d]", i),
				Message: "expected object",
				Value:   raw,
			})
			res.Valid = false
			continue
		}

		elem := Validate(obj, itemSchema, opts)
		for _, e := range elem.Errors {
			e.Path = fmt.Sprintf("[%d].%s", i, e.Path)
			res.Errors = append(res.Errors, e)
		}

		if elem.Valid {
			res.Data = append(res.Data, elem.Data)
			continue
		}

		// Element failed validation: dropped under recovery, fatal otherwise.
		res.Valid = false
		if !opts.Recover {
			continue
		}
	}

	return res
}
