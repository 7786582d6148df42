package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "annotate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestQueryCommand_Text(t *testing.T) {
	out, err := execute(t, "query", "users", `user_type = "human"`)
	require.NoError(t, err)

	assert.Contains(t, out, "collection: users\n")
	assert.Contains(t, out, `mongo:      {"user_type":"human"}`)
	assert.Contains(t, out,
		"SELECT doc FROM users WHERE json_extract(doc, '$.user_type') IS ? ORDER BY id ASC COLLATE BINARY LIMIT ? OFFSET ?\n"+
			`"human", 50, 0`+"\n")
}

func TestQueryCommand_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "query", "Sound", `license_type = "by" AND title != "x"`)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   QueryPlan `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sounds", resp.Data.Collection)
	assert.Equal(t, `{"$and":[{"license_type":"by"},{"title":{"$ne":"x"}}]}`, resp.Data.Mongo)
	assert.Contains(t, resp.Data.SQL, "(json_extract(doc, '$.license_type') IS ? AND json_extract(doc, '$.title') IS NOT ?)")
}

func TestQueryCommand_Errors(t *testing.T) {
	_, err := execute(t, "query", "playlists", "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "query", "users", `password = "secret"`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid filter")
}

func TestStatsCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, "backend: sqlite\nsqlite_path: "+filepath.Join(dir, "annotate.db")+"\n")

	out, err := execute(t, "--config", cfg, "--format", "json", "stats")
	require.NoError(t, err)

	var resp struct {
		Data Totals `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "sqlite", resp.Data.Backend)
	assert.Equal(t, map[string]int{"Annotation": 0, "Sound": 0, "User": 0}, resp.Data.Counts)
}

func TestIndexesCommand_Memory(t *testing.T) {
	cfg := writeConfig(t, "backend: memory\n")

	out, err := execute(t, "--config", cfg, "indexes")
	require.NoError(t, err)
	assert.Contains(t, out, "on memory backend")
	assert.Contains(t, out, "users.user_name")
	assert.Contains(t, out, "sounds.audio_url")
	assert.Contains(t, out, "annotations.sound_id")
}

func TestResetCommand_RequiresDev(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t, "backend: memory\n"), "reset")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "dev mode")

	out, err := execute(t, "--config", writeConfig(t, "backend: memory\ndev: true\n"), "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "reset memory backend")
}

func TestConfigErrors(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t, "backend: cassandra\n"), "stats")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestExecute_ReportsInSelectedFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute([]string{"--format", "json", "query", "users", `password = "secret"`}, &stdout, &stderr)
	assert.Equal(t, ExitCommandError, code)

	var resp Response
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ARGUMENT", resp.Error.Code)
	assert.Equal(t, "invalid filter", resp.Error.Message)
	assert.Empty(t, stderr.String())

	stdout.Reset()
	code = Execute([]string{"query", "playlists", ""}, &stdout, &stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Empty(t, stdout.String())
	assert.Equal(t, "Error [COMMAND_ERROR]: unknown collection \"playlists\"\n", stderr.String())
}

func TestExecute_Success(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute([]string{"query", "sounds", `title = "hum"`}, &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout.String(), "collection: sounds")
}
