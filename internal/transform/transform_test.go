package transform

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LogFormatPump/internal/format"
	"LogFormatPump/internal/models"
)

const jobDoc = `
job_log:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) (?<user>\w+) (?<rows>\S+) (?<ratio>\S+) (?<ok>\w+)$'
  value:
    user:
      kind: string
    rows:
      kind: integer
    ratio:
      kind: float
    ok:
      kind: boolean
  sample:
    - line: '2024-05-01 10:00:00 alice 10 0.5 true'
`

func jobRecord(t *testing.T, line string) models.Record {
	t.Helper()
	defs, err := format.LoadBytes([]byte(jobDoc), false)
	require.NoError(t, err)
	reg, err := format.Build(defs, format.Options{})
	require.NoError(t, err)

	f := reg.Open("job.log", reg.Lookup("job_log"))
	_, lines := f.Scan(format.LineInfo{Data: line})
	require.Len(t, lines, 1)
	_, values := f.Annotate(0, line)
	return models.Record{
		File:    "job.log",
		Def:     f.Definition(),
		Time:    lines[0].Time,
		Level:   lines[0].Level,
		Raw:     line,
		Message: line + "\n",
		Values:  values,
	}
}

func TestToRow(t *testing.T) {
	rec := jobRecord(t, "2024-05-01 10:00:00 alice 10 0.5 true")
	id := uuid.New()

	row, err := ToRow(id, rec)
	require.NoError(t, err)
	assert.Equal(t, id, row.BatchID)
	assert.Equal(t, "job_log", row.Format)
	assert.Equal(t, "info", row.Level)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), row.EventDate)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), row.EventTime)
	assert.Equal(t, "2024-05-01 10:00:00 alice 10 0.5 true", row.Message)

	require.Len(t, row.Values, 4)
	user, rows, ratio, ok := "alice", int64(10), 0.5, true
	assert.Equal(t, &user, row.Values[0])
	assert.Equal(t, &rows, row.Values[1])
	assert.Equal(t, &ratio, row.Values[2])
	assert.Equal(t, &ok, row.Values[3])
}

func TestColumnValueConversion(t *testing.T) {
	text := func(s string) *format.LogicalValue {
		return &format.LogicalValue{Kind: format.KindText, Text: s}
	}

	n := int64(42)
	assert.Equal(t, &n, columnValue(format.KindInteger, text(" 42 ")))
	assert.Equal(t, (*int64)(nil), columnValue(format.KindInteger, text("abc")))
	assert.Equal(t, (*int64)(nil), columnValue(format.KindInteger, nil))

	f := 2.0
	assert.Equal(t, &f, columnValue(format.KindFloat, &format.LogicalValue{Kind: format.KindInteger, Int: 2}))

	b := true
	assert.Equal(t, &b, columnValue(format.KindBoolean, text("true")))
	assert.Equal(t, (*bool)(nil), columnValue(format.KindBoolean, &format.LogicalValue{Kind: format.KindNull}))

	s := "{\"a\":1}"
	assert.Equal(t, &s, columnValue(format.KindJSON, &format.LogicalValue{Kind: format.KindJSON, Text: s}))
	assert.Equal(t, (*string)(nil), columnValue(format.KindText, nil))
}

func TestToRowErrors(t *testing.T) {
	_, err := ToRow(uuid.New(), models.Record{})
	assert.ErrorIs(t, err, ErrNoFormat)

	rec := jobRecord(t, "2024-05-01 10:00:00 alice 10 0.5 true")
	rec.Time = time.Time{}
	_, err = ToRow(uuid.New(), rec)
	assert.ErrorIs(t, err, ErrNoTime)
}
