// Package flags implements integer bit-flag enumerations whose members are
// combined with bitwise OR and tested with bitwise AND. Bits that do not
// belong to any known member survive decoding as residual bits, so flags the
// provider adds later are never silently dropped.
package flags

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/apischema/internal/core/schema"
)

// Member is one named flag. Value is zero (the "none" member) or a single bit.
type Member struct {
	Name  string
	Value uint64
	// Alias marks a member that intentionally shares its bit with an earlier one.
	Alias bool
}

// Alias declares an aliased member.
func Alias(name string, value uint64) Member {
	return Member{Name: name, Value: value, Alias: true}
}

// Enum is an immutable bit-flag enumeration.
type Enum struct {
	name        string
	members     []Member
	byName      map[string]int
	known       uint64
	fingerprint uint64
}

// New validates and builds an enum. Members must be zero or a power of two,
// the zero member may appear at most once, and two non-alias members may not
// share a bit.
func New(name string, members ...Member) (*Enum, error) {
	if name == "" {
		return nil, &schema.SchemaError{Reason: "enum without name"}
	}

	e := &Enum{
		name:    name,
		members: make([]Member, 0, len(members)),
		byName:  make(map[string]int, len(members)),
	}
	owner := make(map[uint64]string, len(members))

	for _, m := range members {
		if m.Name == "" {
			return nil, &schema.SchemaError{Entity: name, Reason: "member without name"}
		}
		if _, dup := e.byName[m.Name]; dup {
			return nil, &schema.SchemaError{Entity: name, Field: m.Name, Reason: "duplicate member name"}
		}
		if m.Value != 0 && bits.OnesCount64(m.Value) != 1 {
			return nil, &schema.SchemaError{Entity: name, Field: m.Name,
				Reason: fmt.Sprintf("value %#x is not a single bit", m.Value)}
		}

		prev, collides := owner[m.Value]
		switch {
		case m.Alias && !collides:
			return nil, &schema.SchemaError{Entity: name, Field: m.Name,
				Reason: fmt.Sprintf("alias for value %#x has no member to alias", m.Value)}
		case !m.Alias && collides:
			return nil, &schema.SchemaError{Entity: name, Field: m.Name,
				Reason: fmt.Sprintf("bit %#x collides with member %s", m.Value, prev)}
		case !m.Alias:
			owner[m.Value] = m.Name
		}

		e.byName[m.Name] = len(e.members)
		e.members = append(e.members, m)
		e.known |= m.Value
	}

	e.fingerprint = e.computeFingerprint()
	return e, nil
}

// MustNew is New for statically declared enums.
func MustNew(name string, members ...Member) *Enum {
	e, err := New(name, members...)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Enum) Name() string { return e.name }

// Members returns a copy of the members in declaration order.
func (e *Enum) Members() []Member {
	out := make([]Member, len(e.members))
	copy(out, e.members)
	return out
}

// Member returns the value of a named member.
func (e *Enum) Member(name string) (uint64, bool) {
	i, ok := e.byName[name]
	if !ok {
		return 0, false
	}
	return e.members[i].Value, true
}

// Known is the union of every member's bit.
func (e *Enum) Known() uint64 { return e.known }

func (e *Enum) Fingerprint() uint64 { return e.fingerprint }

// Combine ORs the named members together.
func (e *Enum) Combine(names ...string) (uint64, error) {
	var v uint64
	for _, n := range names {
		m, ok := e.Member(n)
		if !ok {
			return 0, fmt.Errorf("enum %s: unknown member %q", e.name, n)
		}
		v |= m
	}
	return v, nil
}

// Has reports whether the member's bit is set in value. Unknown members and
// the zero member on a non-zero value report false.
func (e *Enum) Has(value uint64, name string) bool {
	m, ok := e.Member(name)
	if !ok {
		return false
	}
	if m == 0 {
		return value == 0
	}
	return value&m == m
}

// Decode splits value into the known members it contains and the residual unknown bits.
func (e *Enum) Decode(value uint64) Set {
	s := Set{enum: e.name, raw: value, residual: value &^ e.known}
	for _, m := range e.members {
		if m.Alias {
			continue
		}
		if (m.Value == 0 && value == 0) || (m.Value != 0 && value&m.Value != 0) {
			s.names = append(s.names, m.Name)
		}
	}
	return s
}

func (e *Enum) computeFingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(e.name)
	for _, m := range e.members {
		_, _ = d.WriteString("\x00" + m.Name + "=" + strconv.FormatUint(m.Value, 10) + strconv.FormatBool(m.Alias))
	}
	return d.Sum64()
}

// Set is the decoded form of a flags integer.
type Set struct {
	enum     string
	names    []string
	raw      uint64
	residual uint64
}

// Enum names the enum the set was decoded with.
func (s Set) Enum() string { return s.enum }

// Names returns the known members present, in enum declaration order.
func (s Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Has reports whether the named member was decoded into the set.
func (s Set) Has(name string) bool {
	for _, n := range s.names {
		if n == name {
			return true
		}
	}
	return false
}

// Residual holds the bits no known member accounts for.
func (s Set) Residual() uint64 { return s.residual }

// Value is the original integer, known and residual bits together.
func (s Set) Value() uint64 { return s.raw }

func (s Set) Equal(other Set) bool {
	if s.enum != other.enum || s.raw != other.raw || s.residual != other.residual || len(s.names) != len(other.names) {
		return false
	}
	for i := range s.names {
		if s.names[i] != other.names[i] {
			return false
		}
	}
	return true
}

func (s Set) String() string {
	parts := s.Names()
	if s.residual != 0 {
		parts = append(parts, fmt.Sprintf("%#x", s.residual))
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}
