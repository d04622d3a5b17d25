package decoder

import (
	"strconv"
	"strings"

	"github.com/zeusync/apischema/internal/core/schema"
	"github.com/zeusync/apischema/internal/core/schema/flags"
)

// ValueKind tells which accessor of a Value is meaningful.
type ValueKind uint8

const (
	ValueAbsent ValueKind = iota
	ValueNull
	ValueString
	ValueInteger
	ValueFloat
	ValueBoolean
	ValueEntity
	ValueList
	ValueFlags
)

func (k ValueKind) String() string {
	switch k {
	case ValueAbsent:
		return "absent"
	case ValueNull:
		return "null"
	case ValueString:
		return "string"
	case ValueInteger:
		return "integer"
	case ValueFloat:
		return "float"
	case ValueBoolean:
		return "boolean"
	case ValueEntity:
		return "entity"
	case ValueList:
		return "list"
	case ValueFlags:
		return "flags"
	}
	return "unknown"
}

// Value is one immutable decoded field value.
type Value struct {
	kind      ValueKind
	defaulted bool

	str     string
	num     int64
	float   float64
	boolean bool
	entity  *Entity
	list    []Value
	flags   flags.Set
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsAbsent() bool  { return v.kind == ValueAbsent }
func (v Value) IsNull() bool    { return v.kind == ValueNull }

// Defaulted reports that the field was absent and filled from the schema
// default or the canonical empty value.
func (v Value) Defaulted() bool { return v.defaulted }

func (v Value) AsString() (string, bool)  { return v.str, v.kind == ValueString }
func (v Value) AsInt() (int64, bool)       { return v.num, v.kind == ValueInteger }
func (v Value) AsFloat() (float64, bool)   { return v.float, v.kind == ValueFloat }
func (v Value) AsBool() (bool, bool)       { return v.boolean, v.kind == ValueBoolean }
func (v Value) AsEntity() (*Entity, bool)  { return v.entity, v.kind == ValueEntity }
func (v Value) AsFlags() (flags.Set, bool) { return v.flags, v.kind == ValueFlags }

// AsList returns a copy of the elements.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != ValueList {
		return nil, false
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, true
}

// Len is the element count of a list value, zero otherwise.
func (v Value) Len() int { return len(v.list) }

// Equal compares decoded content; whether a value came from a default is ignored.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.str == other.str
	case ValueInteger:
		return v.num == other.num
	case ValueFloat:
		return v.float == other.float
	case ValueBoolean:
		return v.boolean == other.boolean
	case ValueEntity:
		return v.entity.Equal(other.entity)
	case ValueFlags:
		return v.flags.Equal(other.flags)
	case ValueList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
	}
	return true
}

// Entity is an immutable, fully validated record decoded against one entity schema.
type Entity struct {
	schema *schema.Entity
	values []Value
}

func (e *Entity) Name() string { return e.schema.Name() }

// Fingerprint identifies the schema version the entity was decoded with.
func (e *Entity) Fingerprint() uint64 { return e.schema.Fingerprint() }

// Schema returns the entity schema, itself immutable.
func (e *Entity) Schema() *schema.Entity { return e.schema }

// Get returns a field's value by wire or semantic name. Unknown names report false;
// known but absent fields return an absent value and true.
func (e *Entity) Get(name string) (Value, bool) {
	i, ok := e.schema.IndexOf(name)
	if !ok {
		return Value{}, false
	}
	return e.values[i], true
}

// Lookup walks a dotted path of wire names with optional indexes, e.g.
// "referenced_message.author.id" or "mentions[1].id".
func (e *Entity) Lookup(p string) (Value, bool) {
	cur := Value{kind: ValueEntity, entity: e}
	for _, seg := range strings.Split(p, ".") {
		name, indexes, ok := splitIndexes(seg)
		if !ok {
			return Value{}, false
		}
		ent, isEntity := cur.AsEntity()
		if !isEntity {
			return Value{}, false
		}
		if cur, ok = ent.Get(name); !ok {
			return Value{}, false
		}
		for _, idx := range indexes {
			if cur.kind != ValueList || idx < 0 || idx >= len(cur.list) {
				return Value{}, false
			}
			cur = cur.list[idx]
		}
	}
	return cur, true
}

func splitIndexes(seg string) (string, []int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, nil, seg != ""
	}
	name, rest := seg[:open], seg[open:]
	var idx []int
	for rest != "" {
		end := strings.IndexByte(rest, ']')
		if rest[0] != '[' || end < 0 {
			return "", nil, false
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, false
		}
		idx = append(idx, n)
		rest = rest[end+1:]
	}
	return name, idx, name != ""
}

// Keys lists the wire names whose values are present (including null and defaults), in schema order.
func (e *Entity) Keys() []string {
	out := make([]string, 0, len(e.values))
	for i, v := range e.values {
		if v.kind != ValueAbsent {
			out = append(out, e.schema.FieldAt(i).WireName)
		}
	}
	return out
}

func (e *Entity) Equal(other *Entity) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.schema.Name() != other.schema.Name() || len(e.values) != len(other.values) {
		return false
	}
	for i := range e.values {
		if !e.values[i].Equal(other.values[i]) {
			return false
		}
	}
	return true
}
