package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twinDocs = `
alpha_log:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) (?<body>.*)$'
  sample:
    - line: '2020-01-01 10:00:00 alpha message'
beta_log:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\s+(?<body>.*)$'
  sample:
    - line: '2020-01-01 10:00:00 beta message'
`

func TestCollisionCycleIsBroken(t *testing.T) {
	reg := buildRegistry(t, twinDocs)

	assert.Equal(t, []string{"alpha_log", "beta_log"}, orderNames(reg))
	assert.Equal(t, map[string][]string{
		"alpha_log": {"beta_log"},
		"beta_log":  {"alpha_log"},
	}, reg.Collisions())
}

func TestCycleBreakingProtectsBuiltins(t *testing.T) {
	builtin, err := LoadBytes([]byte(`
aaa_builtin:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) (?<body>.*)$'
  sample:
    - line: '2020-01-01 10:00:00 builtin message'
`), true)
	require.NoError(t, err)
	custom := loadDefs(t, `
zzz_custom:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) (?<body>.+)$'
  sample:
    - line: '2020-01-01 10:00:00 custom message'
`)

	reg, err := Build(append(builtin, custom...), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"zzz_custom", "aaa_builtin"}, orderNames(reg))
}

func TestCollisionOrderIsDeterministic(t *testing.T) {
	first := orderNames(buildRegistry(t, twinDocs, simpleDoc, lockDoc, xferDoc))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, orderNames(buildRegistry(t, twinDocs, simpleDoc, lockDoc, xferDoc)))
	}
}

func TestNonCollidingFormatsComeFirst(t *testing.T) {
	reg := buildRegistry(t, `
general_log:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) (?<body>.*)$'
  sample:
    - line: '2020-01-01 10:00:00 anything goes'
special_log:
  timestamp-field: ts
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) SPECIAL (?<body>.*)$'
  sample:
    - line: '2020-01-01 10:00:00 SPECIAL only this'
`)
	// general_log распознаёт примеры special_log, поэтому проверяется позже.
	assert.Equal(t, []string{"special_log", "general_log"}, orderNames(reg))
	assert.Equal(t, []string{"special_log"}, reg.Collisions()["general_log"])
}

func TestDetectOwnSamples(t *testing.T) {
	defs, err := Builtins()
	require.NoError(t, err)
	reg, err := Build(defs, Options{BaseTime: testBase})
	require.NoError(t, err)
	require.Empty(t, reg.Collisions())

	for _, d := range reg.Order() {
		for _, s := range d.Samples {
			got := reg.DetectFormat("sample.log", []byte(s.Line+"\n"))
			if assert.NotNil(t, got, s.Line) {
				assert.Equal(t, d.Name, got.Name, s.Line)
			}
		}
	}
}

func TestDetectHonorsFilePattern(t *testing.T) {
	reg := buildRegistry(t, `
only_app_log:
  timestamp-field: ts
  file-pattern: '\.app$'
  regex:
    std:
      pattern: '^(?<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) (?<body>.*)$'
  sample:
    - line: '2020-01-01 10:00:00 hello'
`)
	data := []byte("2020-01-01 10:00:00 hello\n")
	assert.Nil(t, reg.DetectFormat("server.log", data))
	assert.NotNil(t, reg.DetectFormat("server.app", data))
}
