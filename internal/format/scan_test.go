package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleDoc = `
simple_log:
  title: Simple
  timestamp-field: ts
  level-field: lvl
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2}) (?<lvl>\w+) (?<body>.*)$'
  sample:
    - line: '2020-01-01 INFO hello'
      level: info
`

func TestScanSimpleFormat(t *testing.T) {
	reg := buildRegistry(t, simpleDoc)
	f := reg.Open("app.log", reg.Lookup("simple_log"))

	const line = "2020-01-01 INFO hello"
	res, lines := f.Scan(LineInfo{Data: line})
	require.Equal(t, ScanMatch, res)
	require.Len(t, lines, 1)
	assert.Equal(t, LevelInfo, lines[0].Level)
	assert.True(t, lines[0].Time.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)), lines[0].Time)

	attrs, values := f.Annotate(0, line)
	body, ok := attrOf(attrs, AttrBody)
	require.True(t, ok)
	assert.Equal(t, "hello", line[body.Range.Start:body.Range.End])

	ts, ok := attrOf(attrs, AttrTimestamp)
	require.True(t, ok)
	assert.Equal(t, "2020-01-01", line[ts.Range.Start:ts.Range.End])

	v, ok := valueOf(values, "body")
	require.True(t, ok)
	assert.Equal(t, "hello", v.Text)
}

const lockDoc = `
lock_log:
  timestamp-field: ts
  multiline: false
  regex:
    alpha:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) A (?<body>.*)$'
    beta:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) B (?<body>.*)$'
  sample:
    - line: '2020-01-01 10:00:00 A one'
    - line: '2020-01-01 10:00:01 B two'
`

func TestPatternLocks(t *testing.T) {
	reg := buildRegistry(t, lockDoc)
	f := reg.Open("lock.log", reg.Lookup("lock_log"))

	input := []string{
		"2020-01-01 10:00:00 A one",
		"2020-01-01 10:00:01 A two",
		"2020-01-01 10:00:02 B three",
		"garbage that matches nothing",
		"2020-01-01 10:00:03 A four",
	}
	for i, line := range input {
		res, out := f.Scan(LineInfo{Offset: int64(i * 100), Data: line})
		require.Equal(t, ScanMatch, res, line)
		require.Len(t, out, 1, line)
	}

	assert.Equal(t, []PatternLock{{Line: 0, Index: 0}, {Line: 2, Index: 1}, {Line: 4, Index: 0}}, f.Locks())
	for n, want := range []int{0, 0, 1, 1, 0} {
		assert.Equal(t, want, f.PatternIndexForLine(n), "line %d", n)
	}
}

func TestInvalidLineKeepsPreviousTime(t *testing.T) {
	reg := buildRegistry(t, lockDoc)
	f := reg.Open("lock.log", reg.Lookup("lock_log"))

	_, first := f.Scan(LineInfo{Data: "2020-01-01 10:00:00 A one"})
	require.Len(t, first, 1)

	res, lines := f.Scan(LineInfo{Offset: 26, Data: "not a log line"})
	require.Equal(t, ScanMatch, res)
	require.Len(t, lines, 1)
	assert.Equal(t, LevelInvalid, lines[0].Level)
	assert.True(t, lines[0].Time.Equal(first[0].Time))

	attrs, _ := f.Annotate(1, "not a log line")
	inv, ok := attrOf(attrs, AttrInvalid)
	require.True(t, ok)
	assert.Equal(t, "Log line does not match any pattern", inv.Message)
	assert.Equal(t, -1, inv.Range.End)
}

func TestUnconfirmedNoMatch(t *testing.T) {
	reg := buildRegistry(t, lockDoc)
	assert.Nil(t, reg.DetectFormat("x.log", []byte("nothing\nto see\n")))
}

const multilineDoc = `
ml_log:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) (?<body>.*)$'
  sample:
    - line: '2020-01-01 10:00:00 panic: boom'
`

func TestContinuationLines(t *testing.T) {
	reg := buildRegistry(t, multilineDoc)
	f := reg.Open("ml.log", reg.Lookup("ml_log"))

	_, _ = f.Scan(LineInfo{Data: "2020-01-01 10:00:00 panic: boom"})
	res, lines := f.Scan(LineInfo{Offset: 31, Data: "goroutine 1 [running]:"})
	assert.Equal(t, ScanNoMatch, res)
	assert.Empty(t, lines)

	ll, ok := f.Continue(LineInfo{Offset: 31, Data: "goroutine 1 [running]:"})
	require.True(t, ok)
	assert.True(t, ll.Continued())
	assert.Equal(t, 1, ll.SubOffset)
	assert.Len(t, f.Lines(), 2)
}

const xferDoc = `
xfer_log:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) sent (?<size>\d+(?:\.\d+)?)(?<unit>KB|MB|B)$'
  value:
    size:
      kind: float
      unit:
        field: unit
        scaling-factor:
          KB:
            op: multiply
            value: 1024
    unit:
      kind: string
  sample:
    - line: '2020-01-01 10:00:00 sent 2KB'
`

func TestUnitScalingFoldsIntoStats(t *testing.T) {
	reg := buildRegistry(t, xferDoc)
	f := reg.Open("xfer.log", reg.Lookup("xfer_log"))

	const line = "2020-01-01 10:00:00 sent 2KB"
	res, _ := f.Scan(LineInfo{Data: line})
	require.Equal(t, ScanMatch, res)
	_, _ = f.Scan(LineInfo{Offset: 29, Data: "2020-01-01 10:00:01 sent 5B"})

	st, ok := f.Stats("size")
	require.True(t, ok)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 2053.0, st.Sum)
	assert.Equal(t, 5.0, st.Min)
	assert.Equal(t, 2048.0, st.Max)

	_, values := f.Annotate(0, line)
	v, ok := valueOf(values, "size")
	require.True(t, ok)
	assert.Equal(t, KindFloat, v.Kind)
	assert.Equal(t, 2048.0, v.Float)

	_, ok = f.Stats("unit")
	assert.False(t, ok)
}

func TestRolloverMovesPreviousLines(t *testing.T) {
	defs, err := Builtins()
	require.NoError(t, err)
	reg, err := Build(defs, Options{BaseTime: testBase})
	require.NoError(t, err)

	f := reg.Open("messages", reg.Lookup("syslog_log"))
	_, first := f.Scan(LineInfo{Data: "Dec 31 23:59:00 host app[1]: closing year"})
	require.Len(t, first, 1)
	_, _ = f.Scan(LineInfo{Offset: 42, Data: "Jan 01 00:01:00 host app[1]: new year"})

	lines := f.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 2023, lines[0].Time.Year())
	assert.Equal(t, 2024, lines[1].Time.Year())
	assert.True(t, lines[0].Time.Before(lines[1].Time))
}

func TestRolloverCanBeDisabled(t *testing.T) {
	defs, err := Builtins()
	require.NoError(t, err)
	reg, err := Build(defs, Options{BaseTime: testBase, DisableRollover: true})
	require.NoError(t, err)

	f := reg.Open("messages", reg.Lookup("syslog_log"))
	_, _ = f.Scan(LineInfo{Data: "Dec 31 23:59:00 host app[1]: closing year"})
	_, _ = f.Scan(LineInfo{Offset: 42, Data: "Jan 01 00:01:00 host app[1]: new year"})

	assert.Equal(t, 2024, f.Lines()[0].Time.Year())
}

func TestSyslogLevelFromBody(t *testing.T) {
	defs, err := Builtins()
	require.NoError(t, err)
	reg, err := Build(defs, Options{BaseTime: testBase})
	require.NoError(t, err)

	f := reg.Open("messages", reg.Lookup("syslog_log"))
	_, lines := f.Scan(LineInfo{Data: "Aug 11 12:40:06 web-01 sshd[2345]: error: failed to load host key"})
	require.Len(t, lines, 1)
	assert.Equal(t, LevelError, lines[0].Level)
	assert.Equal(t, hashOpid("2345"), lines[0].Opid)
}

func TestTimestampFormatSwitchesBetweenLines(t *testing.T) {
	reg := buildRegistry(t, `
mixed_log:
  timestamp-field: ts
  timestamp-format:
    - '%Y-%m-%d %H:%M:%S'
    - '%d/%m/%Y %H:%M:%S'
  regex:
    std:
      pattern: '^(?<ts>\S+ \d{2}:\d{2}:\d{2}) (?<body>.*)$'
  sample:
    - line: '2020-01-02 10:00:00 iso'
    - line: '03/01/2020 10:00:01 european'
`)
	f := reg.Open("mixed.log", reg.Lookup("mixed_log"))

	input := []struct {
		line string
		want time.Time
	}{
		{"2020-01-02 10:00:00 iso", time.Date(2020, 1, 2, 10, 0, 0, 0, time.UTC)},
		{"03/01/2020 10:00:01 european", time.Date(2020, 1, 3, 10, 0, 1, 0, time.UTC)},
		{"2020-01-04 10:00:02 iso again", time.Date(2020, 1, 4, 10, 0, 2, 0, time.UTC)},
		{"05/01/2020 10:00:03 european again", time.Date(2020, 1, 5, 10, 0, 3, 0, time.UTC)},
	}
	for i, in := range input {
		res, lines := f.Scan(LineInfo{Offset: int64(i * 40), Data: in.line})
		require.Equal(t, ScanMatch, res, in.line)
		require.Len(t, lines, 1)
		assert.NotEqual(t, LevelInvalid, lines[0].Level, in.line)
		assert.True(t, lines[0].Time.Equal(in.want), "%s: %v", in.line, lines[0].Time)
	}
	assert.Len(t, f.Lines(), len(input))
}
