package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// KindType identifies which member of the Kind union is set.
type KindType uint8

const (
	KindPrimitive KindType = iota + 1
	KindReference
	KindArray
	KindEnum
)

// Primitive is the JSON category a primitive field must carry on the wire.
type Primitive uint8

const (
	PrimitiveString Primitive = iota + 1
	PrimitiveInteger
	PrimitiveBoolean
	PrimitiveFloat
)

var primitiveNames = map[Primitive]string{
	PrimitiveString:  "string",
	PrimitiveInteger: "integer",
	PrimitiveBoolean: "boolean",
	PrimitiveFloat:   "float",
}

func (p Primitive) String() string {
	if name, ok := primitiveNames[p]; ok {
		return name
	}
	return fmt.Sprintf("primitive(%d)", uint8(p))
}

// Kind describes the semantic type of a field.
// Exactly one of Primitive, Target or Elem is meaningful, depending on Type.
type Kind struct {
	Type      KindType
	Primitive Primitive
	// Target names the referenced entity (KindReference) or enum (KindEnum).
	Target string
	Elem   *Kind
}

func String() Kind  { return Kind{Type: KindPrimitive, Primitive: PrimitiveString} }
func Integer() Kind { return Kind{Type: KindPrimitive, Primitive: PrimitiveInteger} }
func Boolean() Kind { return Kind{Type: KindPrimitive, Primitive: PrimitiveBoolean} }
func Float() Kind   { return Kind{Type: KindPrimitive, Primitive: PrimitiveFloat} }

// Ref is a reference to another entity schema, resolved through the registry.
func Ref(entity string) Kind { return Kind{Type: KindReference, Target: entity} }

// EnumOf is an integer decoded through the named bit-flag enum.
func EnumOf(enum string) Kind { return Kind{Type: KindEnum, Target: enum} }

func ArrayOf(elem Kind) Kind {
	e := elem
	return Kind{Type: KindArray, Elem: &e}
}

// String renders the kind in the grammar accepted by ParseKind.
func (k Kind) String() string {
	switch k.Type {
	case KindPrimitive:
		return k.Primitive.String()
	case KindReference:
		return "ref(" + k.Target + ")"
	case KindEnum:
		return "enum(" + k.Target + ")"
	case KindArray:
		if k.Elem == nil {
			return "array(?)"
		}
		return "array(" + k.Elem.String() + ")"
	default:
		return "invalid"
	}
}

// Equal reports whether two kinds describe the same wire shape.
func (k Kind) Equal(other Kind) bool {
	if k.Type != other.Type {
		return false
	}
	switch k.Type {
	case KindPrimitive:
		return k.Primitive == other.Primitive
	case KindReference, KindEnum:
		return k.Target == other.Target
	case KindArray:
		if k.Elem == nil || other.Elem == nil {
			return k.Elem == other.Elem
		}
		return k.Elem.Equal(*other.Elem)
	}
	return true
}

// Leaf returns the innermost non-array kind.
func (k Kind) Leaf() Kind {
	for k.Type == KindArray && k.Elem != nil {
		k = *k.Elem
	}
	return k
}

func (k Kind) validate() error {
	switch k.Type {
	case KindPrimitive:
		if _, ok := primitiveNames[k.Primitive]; !ok {
			return fmt.Errorf("unknown primitive %d", k.Primitive)
		}
	case KindReference:
		if k.Target == "" {
			return fmt.Errorf("reference without target entity")
		}
	case KindEnum:
		if k.Target == "" {
			return fmt.Errorf("enum kind without target enum")
		}
	case KindArray:
		if k.Elem == nil {
			return fmt.Errorf("array kind without element kind")
		}
		return k.Elem.validate()
	default:
		return fmt.Errorf("unknown kind type %d", k.Type)
	}
	return nil
}

// ParseKind parses the textual kind grammar:
//
//	string | integer | boolean | float | ref(Name) | enum(Name) | array(<kind>)
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for p, name := range primitiveNames {
		if s == name {
			return Kind{Type: KindPrimitive, Primitive: p}, nil
		}
	}

	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return Kind{}, fmt.Errorf("%w: malformed kind %q", ErrInvalidSchema, s)
	}
	head, inner := s[:open], strings.TrimSpace(s[open+1:len(s)-1])
	if inner == "" {
		return Kind{}, fmt.Errorf("%w: empty argument in kind %q", ErrInvalidSchema, s)
	}

	switch head {
	case "ref", "enum":
		if strings.ContainsFunc(inner, func(r rune) bool { return r == '(' || r == ')' || unicode.IsSpace(r) }) {
			return Kind{}, fmt.Errorf("%w: invalid target %q in kind %q", ErrInvalidSchema, inner, s)
		}
		if head == "ref" {
			return Ref(inner), nil
		}
		return EnumOf(inner), nil
	case "array":
		elem, err := ParseKind(inner)
		if err != nil {
			return Kind{}, err
		}
		return ArrayOf(elem), nil
	default:
		return Kind{}, fmt.Errorf("%w: unknown kind constructor %q", ErrInvalidSchema, head)
	}
}

// MarshalText implements encoding.TextMarshaler so kinds read naturally in YAML and JSON.
func (k Kind) MarshalText() ([]byte, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
