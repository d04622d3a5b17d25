package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Field describes one API field of an entity.
type Field struct {
	// WireName is the literal JSON key.
	WireName string
	// Name is the semantic name; empty means the wire name.
	Name       string
	Kind       Kind
	Optional   bool
	Nullable   bool
	Deprecated bool
	// Default is used when the field is optional and absent. Only meaningful
	// when HasDefault is set, so that a zero value can be a default.
	Default    any
	HasDefault bool
}

// FieldOption configures a Field built by NewField.
type FieldOption func(*Field)

func Optional() FieldOption   { return func(f *Field) { f.Optional = true } }
func Nullable() FieldOption   { return func(f *Field) { f.Nullable = true } }
func Deprecated() FieldOption { return func(f *Field) { f.Deprecated = true } }

// Named sets a semantic name distinct from the wire name.
func Named(name string) FieldOption { return func(f *Field) { f.Name = name } }

// Default sets the value used when the field is absent. It implies Optional.
func Default(v any) FieldOption {
	return func(f *Field) {
		f.Optional = true
		f.Default = v
		f.HasDefault = true
	}
}

func NewField(wireName string, kind Kind, opts ...FieldOption) Field {
	f := Field{WireName: wireName, Kind: kind}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// SemanticName returns Name, falling back to the wire name.
func (f Field) SemanticName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.WireName
}

// Validate checks the descriptor's own shape. entity is only used for error context.
func (f Field) Validate(entity string) error {
	if f.WireName == "" {
		return schemaErrorf(entity, "", "field without wire name")
	}
	if err := f.Kind.validate(); err != nil {
		return schemaErrorf(entity, f.WireName, "%v", err)
	}
	if !f.HasDefault {
		return nil
	}
	if !f.Optional {
		return schemaErrorf(entity, f.WireName, "default set on a required field")
	}
	if _, err := NormalizeDefault(f.Kind, f.Default); err != nil {
		return schemaErrorf(entity, f.WireName, "%v", err)
	}
	return nil
}

// Equal compares two descriptors field by field.
func (f Field) Equal(other Field) bool {
	if f.WireName != other.WireName || f.Name != other.Name || !f.Kind.Equal(other.Kind) ||
		f.Optional != other.Optional || f.Nullable != other.Nullable ||
		f.Deprecated != other.Deprecated || f.HasDefault != other.HasDefault {
		return false
	}
	return !f.HasDefault || f.Default == other.Default
}

// NormalizeDefault converts a default value to the canonical Go type for the kind:
// string, int64, float64, bool for primitives and uint64 for enums.
// Defaults on references and arrays are not supported.
func NormalizeDefault(kind Kind, v any) (any, error) {
	switch kind.Type {
	case KindPrimitive:
		switch kind.Primitive {
		case PrimitiveString:
			if s, ok := v.(string); ok {
				return s, nil
			}
		case PrimitiveBoolean:
			if b, ok := v.(bool); ok {
				return b, nil
			}
		case PrimitiveInteger:
			if i, ok := toInt64(v); ok {
				return i, nil
			}
		case PrimitiveFloat:
			if fl, ok := toFloat64(v); ok {
				return fl, nil
			}
		}
		return nil, fmt.Errorf("default %v (%T) does not match kind %s", v, v, kind)
	case KindEnum:
		u, ok := toUint64(v)
		if !ok {
			return nil, fmt.Errorf("default %v (%T) is not a non-negative flag value", v, v)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("defaults are only supported on primitive and enum fields, not %s", kind)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return toInt64(f)
	}
	return 0, false
}

// toUint64 covers the full flag range, bit 63 included.
func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	case float64:
		if n != math.Trunc(n) || n < 0 || n >= math.MaxUint64 {
			return 0, false
		}
		return uint64(n), true
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return toUint64(f)
	}
	i, ok := toInt64(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
