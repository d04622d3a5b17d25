package schema

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema is the root of every authoring-time defect.
var ErrInvalidSchema = errors.New("invalid schema")

// SchemaError reports a defect in a schema definition. It is never recovered
// automatically; initialization must fail.
type SchemaError struct {
	Entity string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("schema %s.%s: %s", e.Entity, e.Field, e.Reason)
	case e.Entity != "":
		return fmt.Sprintf("schema %s: %s", e.Entity, e.Reason)
	default:
		return "schema: " + e.Reason
	}
}

func (e *SchemaError) Unwrap() error { return ErrInvalidSchema }

func schemaErrorf(entity, field, format string, args ...any) *SchemaError {
	return &SchemaError{Entity: entity, Field: field, Reason: fmt.Sprintf(format, args...)}
}
