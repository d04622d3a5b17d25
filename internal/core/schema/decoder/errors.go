package decoder

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrUnexpectedNull       = errors.New("unexpected null")
	ErrTypeMismatch         = errors.New("type mismatch")
	ErrTooDeep              = errors.New("maximum decode depth exceeded")
	ErrUnresolvedReference  = errors.New("unresolved schema reference")
	ErrInvalidJSON          = errors.New("invalid JSON")
)

// DecodeError locates a decode failure. Err is one of the sentinels above, so
// callers can match with errors.Is; Cause carries an underlying error when
// there is one (for example registry.ErrNotFound).
type DecodeError struct {
	Err    error
	Entity string
	Path   string
	Detail string
	Cause  error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode ")
	b.WriteString(e.Entity)
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// UnknownField is a strict-mode warning for a key the schema does not describe.
type UnknownField struct {
	Entity string
	Path   string
	Key    string
}

func (u UnknownField) String() string {
	return u.Entity + ": unknown field " + u.Path
}

// path is a parent-linked field path, rendered only when an error or warning needs it.
type path struct {
	parent  *path
	key     string
	index   int
	isIndex bool
}

func (p *path) field(key string) *path { return &path{parent: p, key: key} }
func (p *path) elem(i int) *path       { return &path{parent: p, index: i, isIndex: true} }

// String renders paths like "referenced_message.author.id" and "mentions[1].id".
func (p *path) String() string {
	var segs []*path
	for cur := p; cur != nil; cur = cur.parent {
		segs = append(segs, cur)
	}

	var b strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		if s.isIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.index))
			b.WriteByte(']')
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.key)
	}
	return b.String()
}
