package schema

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ValidationMode selects when references between schemas are checked.
type ValidationMode uint8

const (
	// ValidationLazy defers reference resolution to decode time, so schemas
	// can be registered in any order and may form cycles.
	ValidationLazy ValidationMode = iota
	// ValidationStrict requires every referenced entity and enum to be known
	// when the schema is validated. Self references are always allowed.
	ValidationStrict
)

func (m ValidationMode) String() string {
	if m == ValidationStrict {
		return "strict"
	}
	return "lazy"
}

// ParseValidationMode accepts "lazy" (or empty) and "strict".
func ParseValidationMode(s string) (ValidationMode, error) {
	switch s {
	case "", "lazy":
		return ValidationLazy, nil
	case "strict":
		return ValidationStrict, nil
	}
	return ValidationLazy, fmt.Errorf("unknown validation mode %q", s)
}

// Resolver answers whether referenced names exist. The registry implements it.
type Resolver interface {
	HasEntity(name string) bool
	HasEnum(name string) bool
}

// Entity is an immutable, ordered set of field descriptors forming one record type.
type Entity struct {
	name        string
	description string
	fields      []Field
	byWire      map[string]int
	byName      map[string]int
	fingerprint uint64
}

// NewEntity builds an entity schema and validates the shape of every field.
// Default values are normalized to their canonical Go types.
func NewEntity(name string, fields ...Field) (*Entity, error) {
	return NewDescribedEntity(name, "", fields...)
}

func NewDescribedEntity(name, description string, fields ...Field) (*Entity, error) {
	if name == "" {
		return nil, schemaErrorf("", "", "entity without name")
	}

	e := &Entity{
		name:        name,
		description: description,
		fields:      make([]Field, 0, len(fields)),
		byWire:      make(map[string]int, len(fields)),
		byName:      make(map[string]int, len(fields)),
	}

	for _, f := range fields {
		if err := f.Validate(name); err != nil {
			return nil, err
		}
		if _, dup := e.byWire[f.WireName]; dup {
			return nil, schemaErrorf(name, f.WireName, "duplicate wire name")
		}
		if f.HasDefault {
			f.Default, _ = NormalizeDefault(f.Kind, f.Default)
		}
		e.byWire[f.WireName] = len(e.fields)
		if _, taken := e.byName[f.SemanticName()]; !taken {
			e.byName[f.SemanticName()] = len(e.fields)
		}
		e.fields = append(e.fields, f)
	}

	e.fingerprint = fingerprint(e)
	return e, nil
}

// MustEntity is NewEntity for statically declared schemas.
func MustEntity(name string, fields ...Field) *Entity {
	e, err := NewEntity(name, fields...)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Entity) Name() string        { return e.name }
func (e *Entity) Description() string { return e.description }
func (e *Entity) Len() int            { return len(e.fields) }

// Fields returns a copy of the descriptors in declaration order.
func (e *Entity) Fields() []Field {
	out := make([]Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// FieldAt returns the i-th descriptor without copying the whole table.
func (e *Entity) FieldAt(i int) Field { return e.fields[i] }

// Field finds a descriptor by wire name, then by semantic name.
func (e *Entity) Field(name string) (Field, bool) {
	if i, ok := e.IndexOf(name); ok {
		return e.fields[i], true
	}
	return Field{}, false
}

// IndexOf returns the position of a field by wire name, then by semantic name.
func (e *Entity) IndexOf(name string) (int, bool) {
	if i, ok := e.byWire[name]; ok {
		return i, true
	}
	i, ok := e.byName[name]
	return i, ok
}

// Fingerprint identifies this version of the schema. Any change to a field's
// wire name, kind, optionality, nullability, deprecation or default changes it.
func (e *Entity) Fingerprint() uint64 { return e.fingerprint }

// Validate checks wire-name uniqueness and, in strict mode, that every
// reference resolves. resolver may be nil in lazy mode.
func (e *Entity) Validate(mode ValidationMode, resolver Resolver) error {
	seen := make(map[string]struct{}, len(e.fields))
	for _, f := range e.fields {
		if _, dup := seen[f.WireName]; dup {
			return schemaErrorf(e.name, f.WireName, "duplicate wire name")
		}
		seen[f.WireName] = struct{}{}
	}

	if mode != ValidationStrict {
		return nil
	}
	if resolver == nil {
		return schemaErrorf(e.name, "", "strict validation requires a resolver")
	}
	for _, f := range e.fields {
		leaf := f.Kind.Leaf()
		switch leaf.Type {
		case KindReference:
			if leaf.Target != e.name && !resolver.HasEntity(leaf.Target) {
				return schemaErrorf(e.name, f.WireName, "references unregistered entity %q", leaf.Target)
			}
		case KindEnum:
			if !resolver.HasEnum(leaf.Target) {
				return schemaErrorf(e.name, f.WireName, "references unregistered enum %q", leaf.Target)
			}
		}
	}
	return nil
}

// FieldsFor returns the descriptors whose wire names are among rawKeys, in schema order.
func (e *Entity) FieldsFor(rawKeys map[string]struct{}) []Field {
	out := make([]Field, 0, len(rawKeys))
	for _, f := range e.fields {
		if _, ok := rawKeys[f.WireName]; ok {
			out = append(out, f)
		}
	}
	return out
}

// UnknownKeys returns the keys of rawKeys not described by the schema, sorted.
func (e *Entity) UnknownKeys(rawKeys map[string]struct{}) []string {
	var out []string
	for k := range rawKeys {
		if _, ok := e.byWire[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Deprecated lists the deprecated descriptors.
func (e *Entity) Deprecated() []Field {
	var out []Field
	for _, f := range e.fields {
		if f.Deprecated {
			out = append(out, f)
		}
	}
	return out
}

// References returns the distinct entity and enum names this schema points at, sorted.
func (e *Entity) References() (entities, enums []string) {
	seenEntity := make(map[string]struct{})
	seenEnum := make(map[string]struct{})
	for _, f := range e.fields {
		leaf := f.Kind.Leaf()
		switch leaf.Type {
		case KindReference:
			if _, ok := seenEntity[leaf.Target]; !ok {
				seenEntity[leaf.Target] = struct{}{}
				entities = append(entities, leaf.Target)
			}
		case KindEnum:
			if _, ok := seenEnum[leaf.Target]; !ok {
				seenEnum[leaf.Target] = struct{}{}
				enums = append(enums, leaf.Target)
			}
		}
	}
	sort.Strings(entities)
	sort.Strings(enums)
	return entities, enums
}

func fingerprint(e *Entity) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(e.name)
	for _, f := range e.fields {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(f.WireName)
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(f.Name)
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(f.Kind.String())
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(strconv.FormatBool(f.Optional))
		_, _ = d.WriteString(strconv.FormatBool(f.Nullable))
		_, _ = d.WriteString(strconv.FormatBool(f.Deprecated))
		if f.HasDefault {
			_, _ = d.WriteString(fmt.Sprintf("|%T=%v", f.Default, f.Default))
		}
	}
	return d.Sum64()
}
