package decoder

import (
	"bytes"
	"encoding/json"
)

type encodeConfig struct {
	omitDefaults bool
}

type EncodeOption func(*encodeConfig)

// OmitDefaults drops fields that were absent on the wire and filled by the
// decoder, reproducing the original payload's key set.
func OmitDefaults() EncodeOption {
	return func(c *encodeConfig) { c.omitDefaults = true }
}

// Encode converts an entity back into a JSON tree accepted by the decoder.
// Absent fields are omitted, nulls become nil, flags become their original
// integer including residual bits.
func Encode(e *Entity, opts ...EncodeOption) map[string]any {
	var cfg encodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return encodeEntity(e, cfg)
}

func encodeEntity(e *Entity, cfg encodeConfig) map[string]any {
	out := make(map[string]any, len(e.values))
	for i, v := range e.values {
		if v.kind == ValueAbsent || (cfg.omitDefaults && v.defaulted) {
			continue
		}
		out[e.schema.FieldAt(i).WireName] = encodeValue(v, cfg)
	}
	return out
}

func encodeValue(v Value, cfg encodeConfig) any {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueInteger:
		return v.num
	case ValueFloat:
		return v.float
	case ValueBoolean:
		return v.boolean
	case ValueFlags:
		return v.flags.Value()
	case ValueEntity:
		return encodeEntity(v.entity, cfg)
	case ValueList:
		list := make([]any, len(v.list))
		for i, item := range v.list {
			list[i] = encodeValue(item, cfg)
		}
		return list
	}
	return nil
}

// MarshalJSON writes fields in schema order so output is deterministic and
// mirrors the declared layout.
func (e *Entity) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeEntity(&buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeEntity(buf *bytes.Buffer, e *Entity) error {
	buf.WriteByte('{')
	first := true
	for i, v := range e.values {
		if v.kind == ValueAbsent {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, err := json.Marshal(e.schema.FieldAt(i).WireName)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := writeValue(buf, v); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case ValueEntity:
		return writeEntity(buf, v.entity)
	case ValueList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}
	b, err := json.Marshal(encodeValue(v, encodeConfig{}))
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
