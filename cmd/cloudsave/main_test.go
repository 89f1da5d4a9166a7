package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/cloudsave/pipeline"
	"github.com/franksops/cloudsave/store"
)

type cliEnv struct {
	root      string
	configArg string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CLOUDSAVE_CONFIG", "")

	root := filepath.Join(dir, "objects")
	cfgPath := filepath.Join(dir, "cloudsave.yaml")
	cfg := fmt.Sprintf("storage:\n  file:\n    root: %s\nstate:\n  dir: %s\nlogging:\n  level: error\n",
		root, filepath.Join(dir, "state"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return &cliEnv{root: root, configArg: "--config=" + cfgPath}
}

func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&app{})
	cmd.SetArgs(append([]string{e.configArg}, args...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) read(t *testing.T, key string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.root, key))
	require.NoError(t, err)
	return string(data)
}

func TestSaveCommand_Stdin(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("hello", "save", "file:///out/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", env.read(t, "out/hello.txt"))

	out, err := env.run("", "history", "--json")
	require.NoError(t, err)
	var records []*store.JobRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, store.StateCompleted, records[0].State)
	assert.Equal(t, int64(5), records[0].BytesTransferred)
	assert.Equal(t, "file:///out/hello.txt", records[0].Destination)
}

func TestSaveCommand_FormatsJSONInput(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(`{"b": 1, "a": "x"}`, "save", "--from", "json", "file:///data.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a: x\nb: 1\n", env.read(t, "data.yaml"))

	_, err = env.run(`{"b": 1}`, "save", "--from", "json", "--raw", "file:///raw.yaml")
	assert.ErrorIs(t, err, pipeline.ErrCoercionFailed)
}

func TestSaveCommand_Lines(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("a\nb\n", "save", "--from", "lines", "-r", "file:///joined")
	require.NoError(t, err)
	assert.Equal(t, "ab", env.read(t, "joined"))

	_, err = env.run("a\nb\n", "save", "--from", "lines", "file:///list.json")
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, env.read(t, "list.json"))
}

func TestSaveCommand_Value(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("ignored", "save", "--value", "literal", "file:///v.txt")
	require.NoError(t, err)
	assert.Equal(t, "literal", env.read(t, "v.txt"))
}

func TestSaveCommand_ChildProcess(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("", "save", "file:///cmd.out", "--", "sh", "-c", "printf 'from child'")
	require.NoError(t, err)
	assert.Equal(t, "from child", env.read(t, "cmd.out"))
}

func TestSaveCommand_InvalidLocation(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("data", "save", "no-scheme/key")
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrInvalidLocation)

	_, err = env.run("data", "save", "file:///a", "extra")
	assert.ErrorContains(t, err, "expected one location")

	_, err = env.run("data", "save", "--from", "xml", "file:///a")
	assert.ErrorContains(t, err, "unknown input format")
}

func TestHistoryCommand_Table(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No saves found")

	_, err = env.run("x", "save", "file:///t.txt")
	require.NoError(t, err)
	out, err = env.run("", "history", "--state", "Completed")
	require.NoError(t, err)
	assert.Contains(t, out, "DESTINATION")
	assert.Contains(t, out, "file:///t.txt")
}

func TestCleanupCommand(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("", "cleanup", "--older-than", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "0 aborted, 0 failed")
}
