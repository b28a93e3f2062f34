package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCheckPrintsOrder(t *testing.T) {
	out, _, err := execute(t, "check", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "generic_log (text)")
	assert.Contains(t, out, "bunyan_log (json)")
}

func TestCheckReportsDefinitionErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", `
broken_log:
  regex:
    std:
      pattern: '^(?<timestamp>\S+) (?<body>.*$'
  sample:
    - line: 'x y'
`)
	_, errOut, err := execute(t, "check", "--log-level", "error", "--formats", dir)
	require.Error(t, err)
	assert.Contains(t, errOut, "broken_log")
}

func TestScanPrintsRecordsInArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	text := writeFile(t, dir, "app.log", strings.Join([]string{
		"2024-03-01 12:00:00.100 INFO service started",
		"  listening on :8080",
		"2024-03-01 12:00:01.200 ERROR connection refused",
	}, "\n")+"\n")
	junk := writeFile(t, dir, "notes.txt", "nothing to see\n")

	out, _, err := execute(t, "scan", "--log-level", "error", text, junk)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, text+": generic_log, записей 2", lines[0])
	assert.Equal(t, text+":1 [info] 2024-03-01 12:00:00.100 INFO service started", lines[1])
	assert.Equal(t, "  listening on :8080", lines[2])
	assert.Equal(t, text+":3 [error] 2024-03-01 12:00:01.200 ERROR connection refused", lines[3])
	assert.Equal(t, junk+": формат не определён", lines[4])
}

func TestScanMissingFile(t *testing.T) {
	_, _, err := execute(t, "scan", "--log-level", "error", filepath.Join(t.TempDir(), "absent.log"))
	assert.Error(t, err)
}
