// Package loader reads declarative schema description documents in YAML or
// JSON and registers the entities and enums they describe.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/apischema/internal/core/schema"
	"github.com/zeusync/apischema/internal/core/schema/flags"
)

var (
	ErrInvalidDocument   = errors.New("invalid schema document")
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

var validate = validator.New()

// Format is the encoding of a description document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Document is a unified structure able to describe entities and enums in JSON or YAML.
type Document struct {
	Enums    []EnumDoc   `json:"enums,omitempty" yaml:"enums,omitempty" validate:"unique=Name,dive"`
	Entities []EntityDoc `json:"entities,omitempty" yaml:"entities,omitempty" validate:"unique=Name,dive"`
}

type EnumDoc struct {
	Name    string      `json:"name" yaml:"name" validate:"required,max=128"`
	Members []MemberDoc `json:"members" yaml:"members" validate:"required,min=1,unique=Name,dive"`
}

type MemberDoc struct {
	Name  string `json:"name" yaml:"name" validate:"required,max=128"`
	Value uint64 `json:"value" yaml:"value"`
	Alias bool   `json:"alias,omitempty" yaml:"alias,omitempty"`
}

type EntityDoc struct {
	Name        string     `json:"name" yaml:"name" validate:"required,max=128"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []FieldDoc `json:"fields" yaml:"fields" validate:"unique=Wire,dive"`
}

type FieldDoc struct {
	Wire       string `json:"wire" yaml:"wire" validate:"required,max=256"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Type       string `json:"type" yaml:"type" validate:"required"`
	Optional   bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	Nullable   bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Deprecated bool   `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	Default    any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Load decodes a document from r and validates its structure.
func Load(r io.Reader, format Format) (*Document, error) {
	switch format {
	case FormatYAML:
		return LoadYAML(r)
	case FormatJSON:
		return LoadJSON(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// LoadYAML loads a document from a YAML reader. Unknown keys are rejected.
func LoadYAML(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadJSON loads a document from a JSON reader. Unknown keys are rejected and
// numeric defaults keep their literal form.
func LoadJSON(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile reads path, choosing the format by extension.
func LoadFile(path string) (*Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Load(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Validate checks the document structure: required names, unique enum,
// entity and wire names, and parseable field types.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	for _, e := range d.Entities {
		for _, f := range e.Fields {
			if _, err := schema.ParseKind(f.Type); err != nil {
				return fmt.Errorf("%w: %s.%s: %w", ErrInvalidDocument, e.Name, f.Wire, err)
			}
		}
	}
	return nil
}

// Registrar receives the built schemas. *registry.Registry implements it.
type Registrar interface {
	Register(e *schema.Entity) error
	RegisterEnum(e *flags.Enum) error
}

// Apply builds and registers every enum, then every entity, stopping at the
// first failure.
func (d *Document) Apply(reg Registrar) error {
	for _, ed := range d.Enums {
		enum, err := ed.Build()
		if err != nil {
			return err
		}
		if err = reg.RegisterEnum(enum); err != nil {
			return fmt.Errorf("enum %s: %w", ed.Name, err)
		}
	}
	for _, ed := range d.Entities {
		entity, err := ed.Build()
		if err != nil {
			return err
		}
		if err = reg.Register(entity); err != nil {
			return fmt.Errorf("entity %s: %w", ed.Name, err)
		}
	}
	return nil
}

func (ed EnumDoc) Build() (*flags.Enum, error) {
	members := lo.Map(ed.Members, func(m MemberDoc, _ int) flags.Member {
		return flags.Member{Name: m.Name, Value: m.Value, Alias: m.Alias}
	})
	return flags.New(ed.Name, members...)
}

func (ed EntityDoc) Build() (*schema.Entity, error) {
	fields := make([]schema.Field, 0, len(ed.Fields))
	for _, fd := range ed.Fields {
		f, err := fd.Build()
		if err != nil {
			return nil, &schema.SchemaError{Entity: ed.Name, Field: fd.Wire, Reason: err.Error()}
		}
		fields = append(fields, f)
	}
	return schema.NewDescribedEntity(ed.Name, ed.Description, fields...)
}

func (fd FieldDoc) Build() (schema.Field, error) {
	kind, err := schema.ParseKind(fd.Type)
	if err != nil {
		return schema.Field{}, err
	}
	f := schema.Field{
		WireName:   fd.Wire,
		Name:       fd.Name,
		Kind:       kind,
		Optional:   fd.Optional,
		Nullable:   fd.Nullable,
		Deprecated: fd.Deprecated,
	}
	if fd.Default != nil {
		f.Default = fd.Default
		f.HasDefault = true
	}
	return f, nil
}

// Names lists the entity names in document order.
func (d *Document) Names() []string {
	return lo.Map(d.Entities, func(e EntityDoc, _ int) string { return e.Name })
}

// Merge returns base with overlay applied: same-named enums and entities are
// replaced in place, new ones are appended.
func Merge(base, overlay *Document) *Document {
	return &Document{
		Enums:    mergeBy(base.Enums, overlay.Enums, func(e EnumDoc) string { return e.Name }),
		Entities: mergeBy(base.Entities, overlay.Entities, func(e EntityDoc) string { return e.Name }),
	}
}

func mergeBy[T any](base, overlay []T, key func(T) string) []T {
	replace := lo.KeyBy(overlay, key)
	out := lo.Map(base, func(item T, _ int) T {
		if r, ok := replace[key(item)]; ok {
			return r
		}
		return item
	})
	known := lo.KeyBy(base, key)
	return append(out, lo.Filter(overlay, func(item T, _ int) bool {
		_, ok := known[key(item)]
		return !ok
	})...)
}

// Describe renders schemas back into a document, the inverse of Apply.
func Describe(entities []*schema.Entity, enums []*flags.Enum) *Document {
	return &Document{
		Enums: lo.Map(enums, func(e *flags.Enum, _ int) EnumDoc {
			return EnumDoc{
				Name: e.Name(),
				Members: lo.Map(e.Members(), func(m flags.Member, _ int) MemberDoc {
					return MemberDoc{Name: m.Name, Value: m.Value, Alias: m.Alias}
				}),
			}
		}),
		Entities: lo.Map(entities, func(e *schema.Entity, _ int) EntityDoc {
			return EntityDoc{
				Name:        e.Name(),
				Description: e.Description(),
				Fields: lo.Map(e.Fields(), func(f schema.Field, _ int) FieldDoc {
					fd := FieldDoc{
						Wire:       f.WireName,
						Name:       f.Name,
						Type:       f.Kind.String(),
						Optional:   f.Optional,
						Nullable:   f.Nullable,
						Deprecated: f.Deprecated,
					}
					if f.HasDefault {
						fd.Default = f.Default
					}
					return fd
				}),
			}
		}),
	}
}

// WriteYAML encodes the document as YAML.
func (d *Document) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}
