package ptime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

func TestParseISO(t *testing.T) {
	res, ok := Parse("%Y-%m-%dT%H:%M:%S.%f%z", "2020-03-04T05:06:07.250+02:00 rest", base)
	require.True(t, ok)
	assert.Equal(t, time.Date(2020, 3, 4, 3, 6, 7, 250_000_000, time.UTC), res.Time)
	assert.True(t, res.Flags.Has(YearSet|MonthSet|DaySet|ZoneSet))
	assert.Equal(t, len("2020-03-04T05:06:07.250+02:00"), res.Matched)
}

func TestParseSyslogHasNoYear(t *testing.T) {
	res, ok := Parse("%b %d %H:%M:%S", "Jan  2 10:11:12 host", base)
	require.True(t, ok)
	assert.False(t, res.Flags.Has(YearSet))
	assert.True(t, res.Flags.Has(MonthSet|DaySet))
	assert.Equal(t, time.Date(2024, 1, 2, 10, 11, 12, 0, time.UTC), res.Time)
}

func TestParseEpochAndPM(t *testing.T) {
	res, ok := Parse("%s", "1600000000", base)
	require.True(t, ok)
	assert.Equal(t, int64(1600000000), res.Time.Unix())
	assert.True(t, res.Flags.Has(MachineOriented))

	res, ok = Parse("%I:%M %p", "01:30 PM", base)
	require.True(t, ok)
	assert.Equal(t, 13, res.Time.Hour())
}

func TestParseRejects(t *testing.T) {
	_, ok := Parse("%Y-%m-%d", "2020-13-01", base)
	assert.False(t, ok)
	_, ok = Parse("%H:%M:%S", "ab:cd", base)
	assert.False(t, ok)
}

func TestScannerLocksFormat(t *testing.T) {
	s := NewScanner(nil)
	s.Base = base

	res, ok := s.Scan("2020-01-01")
	require.True(t, ok)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), res.Time)
	locked := s.Locked()
	require.GreaterOrEqual(t, locked, 0)
	assert.Equal(t, "%Y-%m-%d", s.Formats()[locked])

	_, ok = s.Scan("10:00:00")
	assert.False(t, ok, "закреплённый формат не подходит")

	s.Unlock()
	res, ok = s.Scan("10:00:00")
	require.True(t, ok)
	assert.Equal(t, 10, res.Time.Hour())
	assert.False(t, res.Flags.Has(DaySet))
}
