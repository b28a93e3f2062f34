package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const moduleDocs = `
inner_log:
  timestamp-field: ts
  level-field: sev
  regex:
    body:
      pattern: '^\[(?<sev>[A-Z]+)\] (?<component>\w+) (?<body>.*)$'
      module-format: true
  value:
    component:
      kind: string
  sample:
    - line: '[ERROR] db connection lost'
outer_log:
  timestamp-field: ts
  level-field: body
  module-field: mod
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) (?<mod>\w+):(?<body>.*)$'
  sample:
    - line: '2020-01-01 10:00:00 kernel: started'
`

func TestModuleLevelOverride(t *testing.T) {
	reg := buildRegistry(t, moduleDocs)
	outer := reg.Lookup("outer_log")
	inner := reg.Lookup("inner_log")
	require.NotNil(t, outer)
	require.NotNil(t, inner)
	assert.Equal(t, ClassContainer, outer.Class())
	assert.Equal(t, uint8(1), inner.ModuleIndex)
	assert.Zero(t, outer.ModuleIndex)

	f := reg.Open("messages", outer)
	_, lines := f.Scan(LineInfo{Data: "2020-01-01 10:00:00 mysqld: [ERROR] db connection lost"})
	require.Len(t, lines, 1)
	assert.Equal(t, LevelError, lines[0].Level)
	assert.Equal(t, uint8(1), lines[0].Module)
}

func TestModuleCacheMemoizesMisses(t *testing.T) {
	reg := buildRegistry(t, moduleDocs)
	cache := reg.modules

	def, idx, ok := cache.Resolve("cron")
	assert.False(t, ok)
	assert.Nil(t, def)
	assert.Equal(t, -1, idx)

	f := reg.Open("messages", reg.Lookup("outer_log"))
	_, lines := f.Scan(LineInfo{Data: "2020-01-01 10:00:00 cron: nothing special"})
	require.Len(t, lines, 1)
	assert.Zero(t, lines[0].Module)

	def, idx, ok = cache.Resolve("cron")
	assert.True(t, ok)
	assert.Nil(t, def)
	assert.Equal(t, -1, idx)

	_, _ = f.Scan(LineInfo{Offset: 42, Data: "2020-01-01 10:00:01 mysqld: [WARNING] slow query"})
	def, idx, ok = cache.Resolve("mysqld")
	require.True(t, ok)
	assert.Equal(t, "inner_log", def.Name)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 2, cache.Len())

	// Повторный разбор берёт формат из кэша даже для тела без совпадения.
	_, lines = f.Scan(LineInfo{Offset: 97, Data: "2020-01-01 10:00:02 mysqld: plain text"})
	require.Len(t, lines, 1)
	assert.Equal(t, uint8(1), lines[0].Module)
	assert.Equal(t, 2, cache.Len())
}

func TestModuleAnnotation(t *testing.T) {
	reg := buildRegistry(t, moduleDocs)
	f := reg.Open("messages", reg.Lookup("outer_log"))

	const line = "2020-01-01 10:00:00 mysqld: [ERROR] db connection lost"
	_, _ = f.Scan(LineInfo{Data: line})
	attrs, values := f.Annotate(0, line)

	mod, ok := attrOf(attrs, AttrModule)
	require.True(t, ok)
	assert.Equal(t, "mysqld", line[mod.Range.Start:mod.Range.End])

	body, ok := attrOf(attrs, AttrBody)
	require.True(t, ok)
	assert.Equal(t, "connection lost", line[body.Range.Start:body.Range.End])

	comp, ok := valueOf(values, "component")
	require.True(t, ok)
	assert.True(t, comp.Meta.FromModule)
	assert.Equal(t, "db", comp.Text)
	assert.Equal(t, "db", line[comp.Origin.Start:comp.Origin.End])

	ts, ok := valueOf(values, "ts")
	require.True(t, ok)
	assert.False(t, ts.Meta.FromModule)
}
