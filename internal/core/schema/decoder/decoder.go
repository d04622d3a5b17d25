// Package decoder turns raw JSON trees into immutable entities according to
// the entity schemas held by a registry.
//
// A decode either yields a fully valid *Entity or a *DecodeError naming the
// exact field path and reason; entities are never returned half populated.
// Recursion follows the input tree, so self-referential schemas need no
// special handling, and a configurable depth limit protects the stack from
// adversarial input.
package decoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/zeusync/apischema/internal/core/observability/log"
	"github.com/zeusync/apischema/internal/core/observability/metrics"
	"github.com/zeusync/apischema/internal/core/schema"
	"github.com/zeusync/apischema/internal/core/schema/registry"
)

// DefaultMaxDepth bounds nesting of objects and arrays in one payload.
const DefaultMaxDepth = 64

// Decoder is safe for concurrent use; it holds no per-call state.
type Decoder struct {
	schemas     registry.Lookuper
	maxDepth    int
	strict      bool
	parallelism int
	logger      log.Log
	metrics     metrics.Recorder
}

type Option func(*Decoder)

// WithMaxDepth sets the nesting limit; values below 1 keep the default.
func WithMaxDepth(depth int) Option {
	return func(d *Decoder) {
		if depth > 0 {
			d.maxDepth = depth
		}
	}
}

// WithStrict makes the decoder collect keys the schema does not describe as
// warnings. Decoding still succeeds.
func WithStrict(strict bool) Option {
	return func(d *Decoder) { d.strict = strict }
}

// WithParallelism bounds the goroutines DecodeAll uses.
func WithParallelism(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.parallelism = n
		}
	}
}

func WithLogger(l log.Log) Option {
	return func(d *Decoder) { d.logger = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(d *Decoder) { d.metrics = m }
}

func New(schemas registry.Lookuper, opts ...Option) *Decoder {
	d := &Decoder{
		schemas:     schemas,
		maxDepth:    DefaultMaxDepth,
		parallelism: runtime.GOMAXPROCS(0),
		logger:      log.Nop(),
		metrics:     metrics.Nop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("decoder")
	return d
}

// Result is a successful decode.
type Result struct {
	Entity *Entity
	// Warnings lists unknown keys; only populated in strict mode.
	Warnings []UnknownField
}

// Decode decodes raw against the registered entity schema named entity.
func (d *Decoder) Decode(entity string, raw any) (*Result, error) {
	s, err := d.schemas.Lookup(entity)
	if err != nil {
		return nil, &DecodeError{Err: ErrUnresolvedReference, Entity: entity, Cause: err}
	}
	return d.DecodeSchema(s, raw)
}

// DecodeJSON parses data, keeping integer and float literals apart, and decodes it.
func (d *Decoder) DecodeJSON(entity string, data []byte) (*Result, error) {
	raw, err := ParseJSON(data)
	if err != nil {
		return nil, &DecodeError{Err: ErrInvalidJSON, Entity: entity, Cause: err}
	}
	return d.Decode(entity, raw)
}

// ParseJSON materializes a JSON document as a tree of map[string]any, []any,
// string, bool, nil and json.Number.
func ParseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return raw, nil
}

// DecodeSchema decodes raw against s. References inside s are resolved through the registry.
func (d *Decoder) DecodeSchema(s *schema.Entity, raw any) (*Result, error) {
	start := time.Now()
	st := &state{root: s.Name()}

	ent, err := d.decodeEntity(st, s, raw, nil, 1)

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	d.metrics.ObserveDecode(s.Name(), outcome, time.Since(start))
	d.metrics.DeprecatedFields(s.Name(), st.deprecated)

	if err != nil {
		if d.logger.Enabled(log.LevelDebug) {
			d.logger.Debug("decode failed", log.String("entity", s.Name()), log.Error(err))
		}
		return nil, err
	}

	d.metrics.UnknownFields(s.Name(), len(st.warnings))
	if len(st.warnings) > 0 && d.logger.Enabled(log.LevelDebug) {
		d.logger.Debug("unknown fields", log.String("entity", s.Name()), log.Int("count", len(st.warnings)))
	}
	return &Result{Entity: ent, Warnings: st.warnings}, nil
}

// state is scoped to a single decode call.
type state struct {
	root       string
	warnings   []UnknownField
	deprecated int
}

func (st *state) fail(sentinel error, p *path, detail string) *DecodeError {
	return &DecodeError{Err: sentinel, Entity: st.root, Path: p.String(), Detail: detail}
}

func (d *Decoder) decodeEntity(st *state, s *schema.Entity, raw any, p *path, depth int) (*Entity, error) {
	if depth > d.maxDepth {
		return nil, st.fail(ErrTooDeep, p, fmt.Sprintf("limit %d", d.maxDepth))
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, st.fail(ErrTypeMismatch, p, fmt.Sprintf("expected object for %s, got %s", s.Name(), typeName(raw)))
	}

	ent := &Entity{schema: s, values: make([]Value, s.Len())}
	for i := 0; i < s.Len(); i++ {
		f := s.FieldAt(i)
		v, err := d.decodeField(st, f, obj, p.field(f.WireName), depth)
		if err != nil {
			return nil, err
		}
		ent.values[i] = v
	}

	if d.strict && len(obj) > 0 {
		keys := make(map[string]struct{}, len(obj))
		for key := range obj {
			keys[key] = struct{}{}
		}
		for _, key := range s.UnknownKeys(keys) {
			st.warnings = append(st.warnings, UnknownField{Entity: s.Name(), Path: p.field(key).String(), Key: key})
		}
	}
	return ent, nil
}

func (d *Decoder) decodeField(st *state, f schema.Field, obj map[string]any, p *path, depth int) (Value, error) {
	raw, present := obj[f.WireName]
	if !present {
		if !f.Optional {
			return Value{}, st.fail(ErrMissingRequiredField, p, "")
		}
		return d.absent(st, f, p)
	}
	if f.Deprecated {
		st.deprecated++
	}
	if raw == nil {
		if !f.Nullable {
			return Value{}, st.fail(ErrUnexpectedNull, p, "")
		}
		return Value{kind: ValueNull}, nil
	}
	return d.decodeValue(st, f.Kind, raw, p, depth)
}

// absent yields the declared default, or the canonical empty value: an empty
// list for arrays and an absent value otherwise.
func (d *Decoder) absent(st *state, f schema.Field, p *path) (Value, error) {
	if f.HasDefault {
		switch f.Kind.Type {
		case schema.KindPrimitive:
			v := primitiveDefault(f.Kind.Primitive, f.Default)
			v.defaulted = true
			return v, nil
		case schema.KindEnum:
			enum, err := d.schemas.LookupEnum(f.Kind.Target)
			if err != nil {
				return Value{}, &DecodeError{Err: ErrUnresolvedReference, Entity: st.root, Path: p.String(), Cause: err}
			}
			return Value{kind: ValueFlags, flags: enum.Decode(f.Default.(uint64)), defaulted: true}, nil
		}
	}
	if f.Kind.Type == schema.KindArray {
		return Value{kind: ValueList, defaulted: true}, nil
	}
	return Value{kind: ValueAbsent}, nil
}

func primitiveDefault(p schema.Primitive, def any) Value {
	switch p {
	case schema.PrimitiveString:
		return Value{kind: ValueString, str: def.(string)}
	case schema.PrimitiveInteger:
		return Value{kind: ValueInteger, num: def.(int64)}
	case schema.PrimitiveFloat:
		return Value{kind: ValueFloat, float: def.(float64)}
	default:
		return Value{kind: ValueBoolean, boolean: def.(bool)}
	}
}

func (d *Decoder) decodeValue(st *state, k schema.Kind, raw any, p *path, depth int) (Value, error) {
	switch k.Type {
	case schema.KindPrimitive:
		return decodePrimitive(st, k.Primitive, raw, p)

	case schema.KindReference:
		target, err := d.schemas.Lookup(k.Target)
		if err != nil {
			return Value{}, &DecodeError{Err: ErrUnresolvedReference, Entity: st.root, Path: p.String(), Cause: err}
		}
		ent, err := d.decodeEntity(st, target, raw, p, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: ValueEntity, entity: ent}, nil

	case schema.KindArray:
		if depth+1 > d.maxDepth {
			return Value{}, st.fail(ErrTooDeep, p, fmt.Sprintf("limit %d", d.maxDepth))
		}
		items, ok := raw.([]any)
		if !ok {
			return Value{}, st.fail(ErrTypeMismatch, p, "expected array, got "+typeName(raw))
		}
		list := make([]Value, len(items))
		for i, item := range items {
			ep := p.elem(i)
			if item == nil {
				return Value{}, st.fail(ErrUnexpectedNull, ep, "array elements are not nullable")
			}
			v, err := d.decodeValue(st, *k.Elem, item, ep, depth+1)
			if err != nil {
				return Value{}, err
			}
			list[i] = v
		}
		return Value{kind: ValueList, list: list}, nil

	case schema.KindEnum:
		enum, err := d.schemas.LookupEnum(k.Target)
		if err != nil {
			return Value{}, &DecodeError{Err: ErrUnresolvedReference, Entity: st.root, Path: p.String(), Cause: err}
		}
		n, ok := flagValue(raw)
		if !ok {
			return Value{}, st.fail(ErrTypeMismatch, p, "expected non-negative integer flags, got "+typeName(raw))
		}
		return Value{kind: ValueFlags, flags: enum.Decode(n)}, nil
	}
	return Value{}, st.fail(ErrTypeMismatch, p, "unsupported kind "+k.String())
}

// decodePrimitive checks the JSON category. Strings are never parsed as
// numbers and numbers never become strings.
func decodePrimitive(st *state, prim schema.Primitive, raw any, p *path) (Value, error) {
	switch prim {
	case schema.PrimitiveString:
		if s, ok := raw.(string); ok {
			return Value{kind: ValueString, str: s}, nil
		}
	case schema.PrimitiveBoolean:
		if b, ok := raw.(bool); ok {
			return Value{kind: ValueBoolean, boolean: b}, nil
		}
	case schema.PrimitiveInteger:
		if n, ok := integerValue(raw); ok {
			return Value{kind: ValueInteger, num: n}, nil
		}
	case schema.PrimitiveFloat:
		if f, ok := floatValue(raw); ok {
			return Value{kind: ValueFloat, float: f}, nil
		}
	}
	return Value{}, st.fail(ErrTypeMismatch, p, fmt.Sprintf("expected %s, got %s", prim, typeName(raw)))
}

func integerValue(raw any) (int64, bool) {
	switch n := raw.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		// 3.0 and 1e2 are integral too.
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return integerValue(f)
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return integerValue(float64(n))
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
	}
	return 0, false
}

func floatValue(raw any) (float64, bool) {
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := integerValue(raw); ok {
		return float64(i), true
	}
	return 0, false
}

// flagValue accepts the full unsigned range, since providers use high bits.
func flagValue(raw any) (uint64, bool) {
	switch n := raw.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return unsignedValue(f)
	case float64:
		return unsignedValue(n)
	case float32:
		return unsignedValue(float64(n))
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	}
	i, ok := integerValue(raw)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

func unsignedValue(f float64) (uint64, bool) {
	if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
		return 0, false
	}
	return uint64(f), true
}

func typeName(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", raw)
}
