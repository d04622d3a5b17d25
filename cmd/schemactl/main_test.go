package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/apischema/internal/core/schema/decoder"
	"github.com/zeusync/apischema/internal/core/schema/loader"
	"github.com/zeusync/apischema/internal/core/schema/registry"
)

const pollSchema = `
entities:
  - name: Poll
    fields:
      - {wire: id, type: string}
      - {wire: question, type: string}
      - {wire: author, type: ref(User), optional: true}
      - {wire: allow_multiselect, type: boolean, optional: true, default: false}
      - {wire: legacy_votes, type: integer, optional: true, deprecated: true}
`

type result struct {
	stdout string
	stderr string
	err    error
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	t.Setenv("SCHEMACTL_LOG_LEVEL", "silent")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	res := run(t, "", "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "schemactl dev")
}

func TestList_Table(t *testing.T) {
	res := run(t, "", "list")
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "FINGERPRINT")
	assert.Regexp(t, `entity\s+Message\s+30\s+1\s+[0-9a-f]{16}`, res.stdout)
	assert.Regexp(t, `enum\s+MessageFlags\s+11`, res.stdout)
}

func TestList_DeprecatedSorted(t *testing.T) {
	path := writeFile(t, "poll.yaml", pollSchema)

	res := run(t, "", "list", "--schema", path, "--deprecated", "--sort")
	require.NoError(t, res.err)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	var entities []string
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 1 && fields[0] == "entity" {
			entities = append(entities, fields[1])
		}
	}
	assert.Equal(t, []string{"Message", "Poll"}, entities)
}

func TestList_YAMLRoundTrip(t *testing.T) {
	res := run(t, "", "list", "-o", "yaml")
	require.NoError(t, res.err)

	doc, err := loader.LoadYAML(strings.NewReader(res.stdout))
	require.NoError(t, err)
	reg := registry.New()
	require.NoError(t, doc.Apply(reg))

	msg, err := reg.Lookup("Message")
	require.NoError(t, err)
	assert.Equal(t, 30, msg.Len())
}

func TestList_UnknownFormat(t *testing.T) {
	res := run(t, "", "list", "-o", "xml")
	assert.ErrorContains(t, res.err, "unknown output format")
}

func TestLint(t *testing.T) {
	path := writeFile(t, "poll.yaml", pollSchema)

	res := run(t, "", "lint", path)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, path+": 29 entities, 3 enums, fingerprint ")
	assert.Contains(t, res.stdout, "deprecated: Message.stickers")
	assert.Contains(t, res.stdout, "deprecated: Poll.legacy_votes")
	assert.True(t, strings.HasSuffix(res.stdout, "ok\n"))
}

func TestLint_UnresolvedReference(t *testing.T) {
	path := writeFile(t, "poll.yaml", pollSchema)

	res := run(t, "", "lint", "--no-catalog", path)
	require.Error(t, res.err)
	assert.Contains(t, res.stdout, "unresolved: Poll.author -> entity User")
	assert.EqualError(t, res.err, "1 unresolved references")
}

func TestLint_StrictValidationFailsFast(t *testing.T) {
	path := writeFile(t, "poll.yaml", pollSchema)

	res := run(t, "", "lint", "--no-catalog", "--validation", "strict", path)
	assert.ErrorContains(t, res.err, "references unregistered entity")
}

func TestLint_BrokenDocument(t *testing.T) {
	path := writeFile(t, "broken.yaml", "entities:\n  - name: Poll\n    fields: [{wire: id, type: strng}]\n")

	res := run(t, "", "lint", path)
	assert.ErrorIs(t, res.err, loader.ErrInvalidDocument)
}

func TestDecode_File(t *testing.T) {
	schemaPath := writeFile(t, "poll.yaml", pollSchema)
	payload := writeFile(t, "poll.json", `{"question": "lunch?", "id": "7", "votes": 3}`)

	res := run(t, "", "decode", "--schema", schemaPath, "--strict", "--entity", "Poll", payload)
	require.NoError(t, res.err)

	assert.JSONEq(t, `{"id": "7", "question": "lunch?", "allow_multiselect": false}`, res.stdout)
	assert.True(t, strings.Index(res.stdout, `"id"`) < strings.Index(res.stdout, `"question"`))
	assert.Contains(t, res.stderr, "warning: Poll: unknown field votes")
}

func TestDecode_OmitDefaultsFromStdin(t *testing.T) {
	schemaPath := writeFile(t, "poll.yaml", pollSchema)

	res := run(t, `{"id": "7", "question": "lunch?"}`, "decode", "-s", schemaPath, "-e", "Poll", "--omit-defaults")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"id": "7", "question": "lunch?"}`, res.stdout)
}

func TestDecode_Failure(t *testing.T) {
	schemaPath := writeFile(t, "poll.yaml", pollSchema)

	res := run(t, `{"id": "7"}`, "decode", "-s", schemaPath, "-e", "Poll")
	require.ErrorIs(t, res.err, decoder.ErrMissingRequiredField)
	assert.Contains(t, res.err.Error(), "question")
	assert.Empty(t, res.stdout)
}

func TestDecode_Batch(t *testing.T) {
	schemaPath := writeFile(t, "poll.yaml", pollSchema)
	stdin := `[{"id": "1", "question": "a"}, {"id": "2", "question": "b"}]`

	res := run(t, stdin, "decode", "-s", schemaPath, "-e", "Poll", "--batch")
	require.NoError(t, res.err)

	dec := json.NewDecoder(strings.NewReader(res.stdout))
	var ids []string
	for dec.More() {
		var v map[string]any
		require.NoError(t, dec.Decode(&v))
		ids = append(ids, v["id"].(string))
	}
	assert.Equal(t, []string{"1", "2"}, ids)

	res = run(t, `{"id": "1"}`, "decode", "-s", schemaPath, "-e", "Poll", "--batch")
	assert.ErrorContains(t, res.err, "JSON array")
}

func TestDecode_RequiresEntity(t *testing.T) {
	res := run(t, "{}", "decode")
	assert.ErrorContains(t, res.err, "entity")
}

func TestDecode_MaxDepthFlag(t *testing.T) {
	payload := `{"id": "1", "username": "a", "discriminator": "0", "avatar": null}`

	res := run(t, payload, "decode", "-e", "User", "--max-depth", "1")
	require.NoError(t, res.err)

	res = run(t, `{"user": `+payload+`, "roles": [], "joined_at": "x", "deaf": false, "mute": false}`,
		"decode", "-e", "GuildMember", "--max-depth", "1")
	assert.ErrorIs(t, res.err, decoder.ErrTooDeep)
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	schemaPath := writeFile(t, "poll.yaml", pollSchema)
	require.NoError(t, os.WriteFile(envPath, []byte("SCHEMACTL_SCHEMA_FILE="+schemaPath+"\nSCHEMACTL_STRICT=true\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("SCHEMACTL_SCHEMA_FILE")
		_ = os.Unsetenv("SCHEMACTL_STRICT")
	})

	res := run(t, `{"id": "7", "question": "q", "extra": 1}`, "--env-file", envPath, "decode", "-e", "Poll")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "unknown field extra")
}

func TestInvalidFlagValue(t *testing.T) {
	res := run(t, "", "list", "--validation", "eager")
	assert.ErrorContains(t, res.err, "SCHEMACTL_VALIDATION")
}
