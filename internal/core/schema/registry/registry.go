package registry

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/zeusync/apischema/internal/core/observability/log"
	"github.com/zeusync/apischema/internal/core/schema"
	"github.com/zeusync/apischema/internal/core/schema/flags"
)

var (
	ErrDuplicateName = errors.New("schema name already registered")
	ErrNotFound      = errors.New("schema not found")
	ErrSealed        = errors.New("registry is sealed")
)

// Lookuper is the read side of the registry consumed by the decoder.
type Lookuper interface {
	schema.Resolver
	Lookup(name string) (*schema.Entity, error)
	LookupEnum(name string) (*flags.Enum, error)
}

var (
	_ Lookuper        = (*Registry)(nil)
	_ schema.Resolver = (*Registry)(nil)
)

// Registry maps entity and enum names to their schemas. It is populated during
// initialization, sealed, and read-only afterwards. Reads after Seal take no lock.
type Registry struct {
	mu     sync.RWMutex
	sealed atomic.Bool

	entities    map[string]*schema.Entity
	entityOrder []string
	enums       map[string]*flags.Enum
	enumOrder   []string

	mode       schema.ValidationMode
	generation uuid.UUID
	logger     log.Log
}

type Option func(*Registry)

// WithValidation selects lazy (default) or strict reference checking on Register.
func WithValidation(mode schema.ValidationMode) Option {
	return func(r *Registry) { r.mode = mode }
}

func WithLogger(l log.Log) Option {
	return func(r *Registry) { r.logger = l }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		entities:   make(map[string]*schema.Entity),
		enums:      make(map[string]*flags.Enum),
		generation: uuid.New(),
		logger:     log.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("registry").With(log.String("generation", r.generation.String()))
	return r
}

// Register adds an entity schema. The first registration of a name wins; a
// second one fails with ErrDuplicateName and leaves the first untouched.
func (r *Registry) Register(e *schema.Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", schema.ErrInvalidSchema)
	}
	if r.sealed.Load() {
		return fmt.Errorf("register %s: %w", e.Name(), ErrSealed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("register %s: %w", e.Name(), ErrSealed)
	}
	if _, ok := r.entities[e.Name()]; ok {
		return fmt.Errorf("register %s: %w", e.Name(), ErrDuplicateName)
	}
	if err := e.Validate(r.mode, lockedResolver{r}); err != nil {
		return err
	}

	r.entities[e.Name()] = e
	r.entityOrder = append(r.entityOrder, e.Name())
	r.logger.Debug("entity registered",
		log.String("entity", e.Name()),
		log.Int("fields", e.Len()),
		log.Hex("fingerprint", e.Fingerprint()))
	return nil
}

// RegisterEnum adds a bit-flag enum. Enums live in their own namespace.
func (r *Registry) RegisterEnum(e *flags.Enum) error {
	if e == nil {
		return fmt.Errorf("%w: nil enum", schema.ErrInvalidSchema)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("register enum %s: %w", e.Name(), ErrSealed)
	}
	if _, ok := r.enums[e.Name()]; ok {
		return fmt.Errorf("register enum %s: %w", e.Name(), ErrDuplicateName)
	}

	r.enums[e.Name()] = e
	r.enumOrder = append(r.enumOrder, e.Name())
	return nil
}

func (r *Registry) Lookup(name string) (*schema.Entity, error) {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", name, ErrNotFound)
	}
	return e, nil
}

func (r *Registry) LookupEnum(name string) (*flags.Enum, error) {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	e, ok := r.enums[name]
	if !ok {
		return nil, fmt.Errorf("enum %s: %w", name, ErrNotFound)
	}
	return e, nil
}

func (r *Registry) HasEntity(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

func (r *Registry) HasEnum(name string) bool {
	_, err := r.LookupEnum(name)
	return err == nil
}

// All yields registered entity names in registration order. The sequence is
// lazy and may be ranged over any number of times; each pass sees a snapshot.
func (r *Registry) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range r.snapshot(func() []string { return r.entityOrder }) {
			if !yield(name) {
				return
			}
		}
	}
}

// Enums yields registered enum names in registration order.
func (r *Registry) Enums() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range r.snapshot(func() []string { return r.enumOrder }) {
			if !yield(name) {
				return
			}
		}
	}
}

func (r *Registry) snapshot(order func() []string) []string {
	if r.sealed.Load() {
		return order()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), order()...)
}

// Seal freezes the registry. It is one-way; sealing twice is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Swap(true) {
		return
	}
	r.logger.Info("registry sealed",
		log.Int("entities", len(r.entities)),
		log.Int("enums", len(r.enums)),
		log.Hex("fingerprint", r.fingerprintLocked()))
}

func (r *Registry) Sealed() bool { return r.sealed.Load() }

// Generation identifies this registry instance, so hot-reloaded registries
// can be told apart in logs.
func (r *Registry) Generation() uuid.UUID { return r.generation }

// Mode reports the validation mode applied on Register.
func (r *Registry) Mode() schema.ValidationMode { return r.mode }

// Fingerprint combines every entity and enum fingerprint, independent of registration order.
func (r *Registry) Fingerprint() uint64 {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return r.fingerprintLocked()
}

func (r *Registry) fingerprintLocked() uint64 {
	lines := make([]string, 0, len(r.entities)+len(r.enums))
	for name, e := range r.entities {
		lines = append(lines, "entity:"+name+":"+strconv.FormatUint(e.Fingerprint(), 16))
	}
	for name, e := range r.enums {
		lines = append(lines, "enum:"+name+":"+strconv.FormatUint(e.Fingerprint(), 16))
	}
	sort.Strings(lines)

	d := xxhash.New()
	for _, l := range lines {
		_, _ = d.WriteString(l)
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}

// DanglingRef is a reference whose target is not registered.
type DanglingRef struct {
	Entity string
	Field  string
	Target string
	Enum   bool
}

func (d DanglingRef) String() string {
	kind := "entity"
	if d.Enum {
		kind = "enum"
	}
	return fmt.Sprintf("%s.%s -> %s %s", d.Entity, d.Field, kind, d.Target)
}

// Dangling lists references that would fail at decode time. It is a
// diagnostic and works in either validation mode.
func (r *Registry) Dangling() []DanglingRef {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	var out []DanglingRef
	for _, name := range r.entityOrder {
		e := r.entities[name]
		for _, f := range e.Fields() {
			leaf := f.Kind.Leaf()
			switch leaf.Type {
			case schema.KindReference:
				if _, ok := r.entities[leaf.Target]; !ok {
					out = append(out, DanglingRef{Entity: name, Field: f.WireName, Target: leaf.Target})
				}
			case schema.KindEnum:
				if _, ok := r.enums[leaf.Target]; !ok {
					out = append(out, DanglingRef{Entity: name, Field: f.WireName, Target: leaf.Target, Enum: true})
				}
			}
		}
	}
	return out
}

// Deprecated maps entity name to its deprecated wire names, for lint tooling.
func (r *Registry) Deprecated() map[string][]string {
	out := make(map[string][]string)
	for name := range r.All() {
		e, err := r.Lookup(name)
		if err != nil {
			continue
		}
		if dep := e.Deprecated(); len(dep) > 0 {
			out[name] = lo.Map(dep, func(f schema.Field, _ int) string { return f.WireName })
		}
	}
	return out
}

// lockedResolver resolves names while Register already holds the write lock.
type lockedResolver struct{ r *Registry }

func (l lockedResolver) HasEntity(name string) bool {
	_, ok := l.r.entities[name]
	return ok
}

func (l lockedResolver) HasEnum(name string) bool {
	_, ok := l.r.enums[name]
	return ok
}
