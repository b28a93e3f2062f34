package watcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"LogFormatPump/internal/format"
	"LogFormatPump/internal/models"
)

func builtinRegistry(t *testing.T) *format.Registry {
	t.Helper()
	defs, err := format.Builtins()
	require.NoError(t, err)
	reg, err := format.Build(defs, format.Options{})
	require.NoError(t, err)
	return reg
}

type collector struct {
	records []models.Record
}

func (c *collector) emit(r models.Record) { c.records = append(c.records, r) }

func push(rec *Recorder, lines ...string) {
	var off int64
	for _, l := range lines {
		rec.Push(format.LineInfo{Offset: off, Data: l})
		off += int64(len(l)) + 1
	}
}

func TestRecorderJoinsContinuationLines(t *testing.T) {
	var c collector
	rec := NewRecorder(context.Background(), "app.log", builtinRegistry(t), zap.NewNop(), c.emit)
	rec.DetectLines = 2

	lines := []string{
		"2024-03-01 12:00:00.100 INFO service started",
		"  listening on :8080",
		"2024-03-01 12:00:01.200 ERROR connection refused",
	}
	push(rec, lines...)
	require.NotNil(t, rec.Format())
	assert.Equal(t, "generic_log", rec.Format().Name)
	require.Len(t, c.records, 1)

	first := c.records[0]
	assert.Equal(t, 1, first.LineNumber)
	assert.Equal(t, int64(0), first.Offset)
	assert.Equal(t, format.LevelInfo, first.Level.Base())
	assert.Equal(t, lines[0]+"\n"+lines[1], first.Raw)
	assert.Equal(t, first.Raw, first.Message)
	assert.Equal(t, "service started\n  listening on :8080", first.Body)
	assert.Equal(t, 2024, first.Time.Year())
	assert.Equal(t, "generic_log", first.FormatName())

	rec.Flush()
	require.Len(t, c.records, 2)
	second := c.records[1]
	assert.Equal(t, 3, second.LineNumber)
	assert.Equal(t, int64(len(lines[0])+len(lines[1])+2), second.Offset)
	assert.Equal(t, format.LevelError, second.Level.Base())
	assert.Equal(t, "connection refused", second.Body)
}

const bunyanLine = `{"name":"myapp","hostname":"banana.local","pid":40161,"level":50,"msg":"hi","time":"2013-01-04T18:46:23.851Z","v":0}`

func TestRecorderRendersJSON(t *testing.T) {
	var c collector
	rec := NewRecorder(context.Background(), "app.json", builtinRegistry(t), zap.NewNop(), c.emit)
	rec.DetectLines = 1

	push(rec, bunyanLine, `{"msg":"no time here"}`)
	rec.Flush()

	require.NotNil(t, rec.Format())
	assert.Equal(t, "bunyan_log", rec.Format().Name)
	require.Len(t, c.records, 1, "строка без времени пропускается")

	r := c.records[0]
	assert.Equal(t, format.LevelError, r.Level.Base())
	assert.Equal(t, bunyanLine, r.Raw)
	assert.True(t, strings.HasPrefix(r.Message, "2013-01-04T18:46:23.851 ERROR myapp: hi\n"))
	assert.Contains(t, r.Message, "  hostname: banana.local\n")
	assert.Equal(t, "hi", r.Body)
}

func TestRecorderKeepsMultilineJSONBody(t *testing.T) {
	defs, err := format.LoadBytes([]byte(`
msg_json:
  file-type: json
  timestamp-field: ts
  body-field: msg
  value:
    ts:
      kind: string
      hidden: true
    body:
      kind: string
  line-format:
    - field: body
`), false)
	require.NoError(t, err)
	reg, err := format.Build(defs, format.Options{})
	require.NoError(t, err)

	var c collector
	rec := NewRecorder(context.Background(), "app.json", reg, zap.NewNop(), c.emit)
	rec.DetectLines = 1

	push(rec, `{"ts":"2020-01-01T00:00:00Z","msg":"first\nsecond"}`)
	rec.Flush()

	require.Len(t, c.records, 1)
	r := c.records[0]
	assert.Equal(t, "first\nsecond\n", r.Message)
	assert.Equal(t, "first\nsecond", r.Body)
}

func TestRecorderSkipsUnknownFile(t *testing.T) {
	var c collector
	rec := NewRecorder(context.Background(), "notes.txt", builtinRegistry(t), zap.NewNop(), c.emit)
	rec.DetectLines = 2

	push(rec, "just some text", "and more text", "2024-03-01 12:00:00.100 INFO too late")
	rec.Flush()

	assert.True(t, rec.Skipped())
	assert.Nil(t, rec.Format())
	assert.Empty(t, c.records)
}

func TestRecorderFlushDetectsShortFile(t *testing.T) {
	var c collector
	rec := NewRecorder(context.Background(), "app.log", builtinRegistry(t), zap.NewNop(), c.emit)

	push(rec, "2024-03-01 12:00:00.300 WARN disk almost full")
	assert.Nil(t, rec.Format())
	rec.Flush()

	require.Len(t, c.records, 1)
	assert.Equal(t, format.LevelWarning, c.records[0].Level.Base())
}

type upperExecutor struct{}

func (upperExecutor) Execute(_ context.Context, req format.ExecRequest) (string, error) {
	for _, v := range req.Values {
		if v.Meta.Name == "user" {
			return strings.ToUpper(v.Text), nil
		}
	}
	return "", nil
}

func TestRecorderRewritesValues(t *testing.T) {
	defs, err := format.LoadBytes([]byte(`
auth_log:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) user=(?<user>\w+) (?<body>.*)$'
  value:
    user:
      kind: string
      rewriter: 'echo'
  sample:
    - line: '2020-01-01 10:00:00 user=bob logged in'
`), false)
	require.NoError(t, err)
	reg, err := format.Build(defs, format.Options{})
	require.NoError(t, err)

	var c collector
	rec := NewRecorder(context.Background(), "auth.log", reg, zap.NewNop(), c.emit)
	rec.DetectLines = 1
	rec.Exec = upperExecutor{}

	push(rec, "2020-01-01 10:00:00 user=bob logged in")
	rec.Flush()

	require.Len(t, c.records, 1)
	r := c.records[0]
	assert.Equal(t, "2020-01-01 10:00:00 user=BOB logged in", r.Message)
	assert.Equal(t, "2020-01-01 10:00:00 user=bob logged in", r.Raw)
	assert.Equal(t, "logged in", r.Body)
}
