package decoder

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/apischema/internal/core/schema"
	"github.com/zeusync/apischema/internal/core/schema/flags"
	"github.com/zeusync/apischema/internal/core/schema/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()

	require.NoError(t, reg.RegisterEnum(flags.MustNew("MessageFlags",
		flags.Member{Name: "SUPPRESS_EMBEDS", Value: 0b00000100},
		flags.Member{Name: "EPHEMERAL", Value: 0b01000000},
	)))
	require.NoError(t, reg.Register(schema.MustEntity("Message",
		schema.NewField("id", schema.String()),
		schema.NewField("channel_id", schema.String(), schema.Named("channelId")),
		schema.NewField("author", schema.Ref("User")),
		schema.NewField("content", schema.String()),
		schema.NewField("edited_timestamp", schema.String(), schema.Nullable()),
		schema.NewField("mentions", schema.ArrayOf(schema.Ref("User"))),
		schema.NewField("reactions", schema.ArrayOf(schema.Ref("Reaction")), schema.Optional()),
		schema.NewField("pinned", schema.Boolean()),
		schema.NewField("type", schema.Integer()),
		schema.NewField("flags", schema.EnumOf("MessageFlags"), schema.Default(0)),
		schema.NewField("position", schema.Integer(), schema.Optional()),
		schema.NewField("tts", schema.Boolean(), schema.Default(false)),
		schema.NewField("referenced_message", schema.Ref("Message"), schema.Optional(), schema.Nullable()),
		schema.NewField("stickers", schema.ArrayOf(schema.String()), schema.Optional(), schema.Deprecated()),
	)))
	require.NoError(t, reg.Register(schema.MustEntity("User",
		schema.NewField("id", schema.String()),
		schema.NewField("username", schema.String()),
		schema.NewField("bot", schema.Boolean(), schema.Optional()),
	)))
	require.NoError(t, reg.Register(schema.MustEntity("Reaction",
		schema.NewField("count", schema.Integer()),
		schema.NewField("me", schema.Boolean()),
		schema.NewField("ratio", schema.Float(), schema.Optional()),
	)))
	reg.Seal()
	return reg
}

func userJSON(id string) map[string]any {
	return map[string]any{"id": id, "username": "user-" + id}
}

func messageJSON(id string) map[string]any {
	return map[string]any{
		"id":               id,
		"channel_id":       "c1",
		"author":           userJSON("u-" + id),
		"content":          "hello " + id,
		"edited_timestamp": nil,
		"mentions":         []any{userJSON("m1"), userJSON("m2")},
		"pinned":           false,
		"type":             json.Number("0"),
	}
}

func requireDecodeError(t *testing.T, err error, sentinel error, wantPath string) *DecodeError {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, wantPath, de.Path)
	return de
}

func TestDecode_ExactPayload(t *testing.T) {
	d := New(testRegistry(t))
	raw := messageJSON("1")
	raw["flags"] = json.Number("68")
	raw["reactions"] = []any{map[string]any{"count": json.Number("3"), "me": true, "ratio": json.Number("0.5")}}
	raw["position"] = 7

	res, err := d.Decode("Message", raw)
	require.NoError(t, err)
	m := res.Entity

	id, _ := m.Lookup("id")
	s, ok := id.AsString()
	assert.True(t, ok)
	assert.Equal(t, "1", s)

	channel, ok := m.Get("channelId")
	require.True(t, ok)
	s, _ = channel.AsString()
	assert.Equal(t, "c1", s)

	username, ok := m.Lookup("mentions[1].username")
	require.True(t, ok)
	s, _ = username.AsString()
	assert.Equal(t, "user-m2", s)

	count, ok := m.Lookup("reactions[0].count")
	require.True(t, ok)
	n, _ := count.AsInt()
	assert.Equal(t, int64(3), n)

	ratio, _ := m.Lookup("reactions[0].ratio")
	f, _ := ratio.AsFloat()
	assert.Equal(t, 0.5, f)

	position, _ := m.Get("position")
	n, _ = position.AsInt()
	assert.Equal(t, int64(7), n)

	fl, _ := m.Get("flags")
	set, ok := fl.AsFlags()
	require.True(t, ok)
	assert.Equal(t, []string{"SUPPRESS_EMBEDS", "EPHEMERAL"}, set.Names())
	assert.Zero(t, set.Residual())
	assert.False(t, fl.Defaulted())

	edited, _ := m.Get("edited_timestamp")
	assert.True(t, edited.IsNull())

	assert.Empty(t, res.Warnings)
}

func TestDecode_MissingRequiredField(t *testing.T) {
	d := New(testRegistry(t))
	raw := messageJSON("1")
	delete(raw, "content")

	res, err := d.Decode("Message", raw)

	assert.Nil(t, res)
	de := requireDecodeError(t, err, ErrMissingRequiredField, "content")
	assert.Equal(t, "Message", de.Entity)
}

func TestDecode_RequiredNullableMustBePresent(t *testing.T) {
	d := New(testRegistry(t))
	raw := messageJSON("1")
	delete(raw, "edited_timestamp")

	_, err := d.Decode("Message", raw)
	requireDecodeError(t, err, ErrMissingRequiredField, "edited_timestamp")
}

func TestDecode_OptionalAbsentUsesDefaults(t *testing.T) {
	d := New(testRegistry(t))

	res, err := d.Decode("Message", messageJSON("1"))
	require.NoError(t, err)
	m := res.Entity

	tts, _ := m.Get("tts")
	b, ok := tts.AsBool()
	assert.True(t, ok)
	assert.False(t, b)
	assert.True(t, tts.Defaulted())

	fl, _ := m.Get("flags")
	set, ok := fl.AsFlags()
	require.True(t, ok)
	assert.Empty(t, set.Names())
	assert.True(t, fl.Defaulted())

	reactions, _ := m.Get("reactions")
	list, ok := reactions.AsList()
	assert.True(t, ok)
	assert.Empty(t, list)

	position, _ := m.Get("position")
	assert.True(t, position.IsAbsent())

	ref, _ := m.Get("referenced_message")
	assert.True(t, ref.IsAbsent())
}

func TestDecode_Nulls(t *testing.T) {
	d := New(testRegistry(t))

	raw := messageJSON("1")
	raw["referenced_message"] = nil
	res, err := d.Decode("Message", raw)
	require.NoError(t, err)
	ref, _ := res.Entity.Get("referenced_message")
	assert.True(t, ref.IsNull())

	raw = messageJSON("1")
	raw["position"] = nil
	_, err = d.Decode("Message", raw)
	requireDecodeError(t, err, ErrUnexpectedNull, "position")

	raw = messageJSON("1")
	raw["mentions"] = []any{userJSON("a"), nil}
	_, err = d.Decode("Message", raw)
	requireDecodeError(t, err, ErrUnexpectedNull, "mentions[1]")
}

func TestDecode_TypeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		path  string
	}{
		{"numeric string for integer", "type", "19", "type"},
		{"number for string", "content", json.Number("5"), "content"},
		{"fractional literal for integer", "type", json.Number("1.5"), "type"},
		{"string for boolean", "pinned", "false", "pinned"},
		{"object for array", "mentions", map[string]any{}, "mentions"},
		{"string for reference", "author", "u1", "author"},
		{"negative flags", "flags", json.Number("-1"), "flags"},
		{"string flags", "flags", "4", "flags"},
		{"integer overflow", "type", json.Number("9223372036854775808"), "type"},
	}

	d := New(testRegistry(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := messageJSON("1")
			raw[tt.key] = tt.value

			res, err := d.Decode("Message", raw)
			assert.Nil(t, res)
			requireDecodeError(t, err, ErrTypeMismatch, tt.path)
		})
	}
}

func TestDecode_FloatAcceptsIntegerLiteral(t *testing.T) {
	d := New(testRegistry(t))

	res, err := d.Decode("Reaction", map[string]any{"count": 1, "me": false, "ratio": json.Number("2")})
	require.NoError(t, err)
	ratio, _ := res.Entity.Get("ratio")
	f, ok := ratio.AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 2.0, f)
}

func TestDecode_NumberLiteralsAgreeAcrossEntryPoints(t *testing.T) {
	tests := []struct {
		name    string
		entity  string
		field   string
		literal string
		want    any
	}{
		{"integer", "Reaction", "count", "3", int64(3)},
		{"integral fraction", "Reaction", "count", "3.0", int64(3)},
		{"exponent", "Reaction", "count", "1e2", int64(100)},
		{"negative integral fraction", "Reaction", "count", "-2.0", int64(-2)},
		{"fraction", "Reaction", "count", "3.5", nil},
		{"overflow", "Reaction", "count", "9223372036854775808", nil},
		{"huge exponent", "Reaction", "count", "1e300", nil},
		{"flags integral fraction", "Message", "flags", "4.0", uint64(4)},
		{"flags exponent", "Message", "flags", "6.4e1", uint64(64)},
		{"flags bit 63", "Message", "flags", "9223372036854775808", uint64(1) << 63},
		{"flags fraction", "Message", "flags", "4.5", nil},
		{"flags negative", "Message", "flags", "-4.0", nil},
	}

	d := New(testRegistry(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]any{"count": json.Number("1"), "me": true}
			if tt.entity == "Message" {
				raw = messageJSON("1")
			}
			raw[tt.field] = json.Number(tt.literal)
			data, err := json.Marshal(raw)
			require.NoError(t, err)

			var tree map[string]any
			require.NoError(t, json.Unmarshal(data, &tree))

			fromTree, treeErr := d.Decode(tt.entity, tree)
			fromText, textErr := d.DecodeJSON(tt.entity, data)

			if tt.want == nil {
				requireDecodeError(t, treeErr, ErrTypeMismatch, tt.field)
				requireDecodeError(t, textErr, ErrTypeMismatch, tt.field)
				return
			}
			require.NoError(t, treeErr)
			require.NoError(t, textErr)
			assert.True(t, fromTree.Entity.Equal(fromText.Entity))

			v, _ := fromText.Entity.Get(tt.field)
			switch want := tt.want.(type) {
			case int64:
				got, ok := v.AsInt()
				require.True(t, ok)
				assert.Equal(t, want, got)
			case uint64:
				set, ok := v.AsFlags()
				require.True(t, ok)
				assert.Equal(t, want, set.Value())
			}
		})
	}
}

func TestDecode_SelfReferenceThreeLevels(t *testing.T) {
	d := New(testRegistry(t))
	l3 := messageJSON("3")
	l2 := messageJSON("2")
	l2["referenced_message"] = l3
	l1 := messageJSON("1")
	l1["referenced_message"] = l2
	root := messageJSON("0")
	root["referenced_message"] = l1

	res, err := d.Decode("Message", root)
	require.NoError(t, err)

	deepest, ok := res.Entity.Lookup("referenced_message.referenced_message.referenced_message.content")
	require.True(t, ok)
	s, _ := deepest.AsString()
	assert.Equal(t, "hello 3", s)

	end, ok := res.Entity.Lookup("referenced_message.referenced_message.referenced_message.referenced_message")
	require.True(t, ok)
	assert.True(t, end.IsAbsent())
}

func TestDecode_NestedErrorPath(t *testing.T) {
	d := New(testRegistry(t))
	inner := messageJSON("2")
	inner["author"] = map[string]any{"id": json.Number("9"), "username": "x"}
	outer := messageJSON("1")
	outer["referenced_message"] = inner

	_, err := d.Decode("Message", outer)
	requireDecodeError(t, err, ErrTypeMismatch, "referenced_message.author.id")
	assert.Contains(t, err.Error(), "expected string, got number")
}

func TestDecode_ArrayElementFailureIncludesIndex(t *testing.T) {
	d := New(testRegistry(t))
	raw := messageJSON("1")
	raw["mentions"] = []any{userJSON("ok"), map[string]any{"username": "missing id"}}

	res, err := d.Decode("Message", raw)

	assert.Nil(t, res)
	requireDecodeError(t, err, ErrMissingRequiredField, "mentions[1].id")
}

func TestDecode_BitFlagsResidual(t *testing.T) {
	d := New(testRegistry(t))
	raw := messageJSON("1")
	raw["flags"] = json.Number("132")

	res, err := d.Decode("Message", raw)
	require.NoError(t, err)
	fl, _ := res.Entity.Get("flags")
	set, _ := fl.AsFlags()
	assert.Equal(t, []string{"SUPPRESS_EMBEDS"}, set.Names())
	assert.Equal(t, uint64(0b10000000), set.Residual())
}

func TestDecode_StrictCollectsUnknownKeys(t *testing.T) {
	reg := testRegistry(t)
	raw := messageJSON("1")
	raw["poll"] = map[string]any{}
	raw["mentions"] = []any{userJSON("a"), map[string]any{"id": "b", "username": "b", "global_name": "B"}}

	res, err := New(reg).Decode("Message", raw)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	res, err = New(reg, WithStrict(true)).Decode("Message", raw)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 2)
	paths := []string{res.Warnings[0].Path, res.Warnings[1].Path}
	assert.ElementsMatch(t, []string{"mentions[1].global_name", "poll"}, paths)
}

func TestDecode_TooDeep(t *testing.T) {
	reg := testRegistry(t)
	root := messageJSON("0")
	cur := root
	for i := 1; i <= 5; i++ {
		next := messageJSON("n")
		cur["referenced_message"] = next
		cur = next
	}

	_, err := New(reg, WithMaxDepth(3)).Decode("Message", root)
	require.ErrorIs(t, err, ErrTooDeep)

	_, err = New(reg).Decode("Message", root)
	require.NoError(t, err)
}

func TestDecode_DefaultDepthStopsAdversarialNesting(t *testing.T) {
	d := New(testRegistry(t))
	root := messageJSON("0")
	cur := root
	for i := 0; i < DefaultMaxDepth+10; i++ {
		next := messageJSON("n")
		cur["referenced_message"] = next
		cur = next
	}

	_, err := d.Decode("Message", root)
	de := &DecodeError{}
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrTooDeep)
	assert.True(t, strings.HasPrefix(de.Path, "referenced_message.referenced_message"))
}

func TestDecode_UnresolvedReferenceIsLazy(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(schema.MustEntity("Message",
		schema.NewField("id", schema.String()),
		schema.NewField("thread", schema.Ref("Channel"), schema.Optional()),
	)))
	d := New(reg)

	_, err := d.Decode("Message", map[string]any{"id": "1"})
	require.NoError(t, err)

	_, err = d.Decode("Message", map[string]any{"id": "1", "thread": map[string]any{}})
	requireDecodeError(t, err, ErrUnresolvedReference, "thread")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, err = d.Decode("Guild", map[string]any{})
	require.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestDecode_RootMustBeObject(t *testing.T) {
	d := New(testRegistry(t))

	_, err := d.Decode("User", []any{})
	requireDecodeError(t, err, ErrTypeMismatch, "")
}

func TestDecodeJSON(t *testing.T) {
	d := New(testRegistry(t))

	res, err := d.DecodeJSON("Reaction", []byte(`{"count": 2, "me": true}`))
	require.NoError(t, err)
	count, _ := res.Entity.Get("count")
	n, _ := count.AsInt()
	assert.Equal(t, int64(2), n)

	_, err = d.DecodeJSON("Reaction", []byte(`{"count": 2.0, "me": true}`))
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = d.DecodeJSON("Reaction", []byte(`{"count": 2, "me": true`))
	require.ErrorIs(t, err, ErrInvalidJSON)

	_, err = d.DecodeJSON("Reaction", []byte(`{"count": 2, "me": true} {}`))
	require.ErrorIs(t, err, ErrInvalidJSON)
}

func TestRoundTrip(t *testing.T) {
	d := New(testRegistry(t))
	raw := messageJSON("1")
	raw["flags"] = json.Number("132")
	raw["reactions"] = []any{map[string]any{"count": json.Number("3"), "me": true, "ratio": json.Number("0.25")}}
	inner := messageJSON("2")
	inner["referenced_message"] = nil
	raw["referenced_message"] = inner

	first, err := d.Decode("Message", raw)
	require.NoError(t, err)

	second, err := d.Decode("Message", Encode(first.Entity))
	require.NoError(t, err)
	assert.True(t, first.Entity.Equal(second.Entity))

	data, err := json.Marshal(first.Entity)
	require.NoError(t, err)
	third, err := d.DecodeJSON("Message", data)
	require.NoError(t, err)
	assert.True(t, first.Entity.Equal(third.Entity))
}

func TestEncode_OmitDefaults(t *testing.T) {
	d := New(testRegistry(t))
	raw := messageJSON("1")

	res, err := d.Decode("Message", raw)
	require.NoError(t, err)

	full := Encode(res.Entity)
	assert.Contains(t, full, "tts")
	assert.Contains(t, full, "flags")
	assert.Equal(t, []any{}, full["reactions"])

	preserved := Encode(res.Entity, OmitDefaults())
	assert.NotContains(t, preserved, "tts")
	assert.NotContains(t, preserved, "reactions")
	assert.Len(t, preserved, len(raw))
}

func TestMarshalJSON_SchemaOrder(t *testing.T) {
	d := New(testRegistry(t))

	res, err := d.Decode("User", map[string]any{"username": "neo", "bot": true, "id": "1"})
	require.NoError(t, err)

	data, err := json.Marshal(res.Entity)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1","username":"neo","bot":true}`, string(data))
}

func TestDecodeAll(t *testing.T) {
	d := New(testRegistry(t), WithParallelism(2))
	raws := []any{messageJSON("a"), messageJSON("b"), messageJSON("c")}

	results, err := d.DecodeAll(context.Background(), "Message", raws)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, want := range []string{"a", "b", "c"} {
		id, _ := results[i].Entity.Get("id")
		s, _ := id.AsString()
		assert.Equal(t, want, s)
	}

	bad := messageJSON("d")
	delete(bad, "author")
	results, err = d.DecodeAll(context.Background(), "Message", append(raws, bad))
	assert.Nil(t, results)
	require.ErrorIs(t, err, ErrMissingRequiredField)
	assert.Contains(t, err.Error(), "payload 3")
}

func TestDecode_ConcurrentCallsShareNothing(t *testing.T) {
	d := New(testRegistry(t), WithStrict(true))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw := messageJSON("x")
			raw["extra"] = true
			res, err := d.Decode("Message", raw)
			if assert.NoError(t, err) {
				assert.Len(t, res.Warnings, 1)
			}
		}()
	}
	wg.Wait()
}

type recorder struct {
	mu         sync.Mutex
	outcomes   []string
	deprecated int
	unknown    int
}

func (r *recorder) ObserveDecode(_ string, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorder) UnknownFields(_ string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unknown += n
}

func (r *recorder) DeprecatedFields(_ string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deprecated += n
}

func TestDecode_RecordsMetrics(t *testing.T) {
	rec := &recorder{}
	d := New(testRegistry(t), WithMetrics(rec), WithStrict(true))

	raw := messageJSON("1")
	raw["stickers"] = []any{"s1"}
	raw["poll"] = true
	_, err := d.Decode("Message", raw)
	require.NoError(t, err)

	raw["stickers"] = json.Number("5")
	_, err = d.Decode("Message", raw)
	require.ErrorIs(t, err, ErrTypeMismatch)

	assert.Equal(t, []string{"ok", "error"}, rec.outcomes)
	assert.Equal(t, 2, rec.deprecated)
	assert.Equal(t, 1, rec.unknown)
}

func TestDecodeError_Message(t *testing.T) {
	err := &DecodeError{Err: ErrTypeMismatch, Entity: "Message", Path: "mentions[0].id", Detail: "expected string, got number"}
	assert.Equal(t, "decode Message: mentions[0].id: type mismatch: expected string, got number", err.Error())
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.False(t, errors.Is(err, ErrTooDeep))
}
