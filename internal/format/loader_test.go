package format

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBytesKeepsDocumentOrder(t *testing.T) {
	defs, err := LoadBytes([]byte("\xef\xbb\xbf"+`
$schema: https://example.com/format.schema.json
zeta_log:
  title: Zeta
  regex:
    std:
      pattern: '^(?<timestamp>\S+) (?<body>.*)$'
  value:
    second:
      kind: integer
    first:
      kind: float
      unit:
        field: unit
        scaling-factor:
          k:
            op: '*'
            value: 1000
  sample:
    - line: '2020-01-01 hello'
alpha_log:
  json: true
  level:
    error: 50
    info: '(?i)info'
`), false)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	zeta, alpha := defs[0], defs[1]
	assert.Equal(t, "zeta_log", zeta.Name)
	assert.Equal(t, "Zeta", zeta.Title)
	assert.Equal(t, TypeText, zeta.Type)
	assert.False(t, zeta.Builtin)

	require.Len(t, zeta.ValueOrder, 2)
	assert.Equal(t, "second", zeta.ValueOrder[0].Name)
	assert.Equal(t, KindInteger, zeta.ValueOrder[0].Kind)
	assert.Equal(t, "first", zeta.ValueOrder[1].Name)
	assert.Equal(t, Scaling{Op: ScaleMultiply, Value: 1000}, zeta.ValueOrder[1].UnitScaling["k"])

	assert.Equal(t, "alpha_log", alpha.Name)
	assert.Equal(t, TypeJSON, alpha.Type)
	assert.Equal(t, []NumericLevel{{Value: 50, Level: LevelError}}, alpha.NumericLevels)
}

func TestLoadBytesErrors(t *testing.T) {
	cases := map[string]string{
		"file type": `
x_log:
  file-type: parquet
`,
		"value kind": `
x_log:
  value:
    v:
      kind: blob
`,
		"scaling op": `
x_log:
  value:
    v:
      kind: float
      unit:
        field: u
        scaling-factor:
          k:
            op: modulo
`,
		"line format": `
x_log:
  line-format:
    - field: a
      overflow: wrap
`,
		"sample level": `
x_log:
  sample:
    - line: 'x'
      level: loud
`,
		"not a mapping": `- just a list`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadBytes([]byte(doc), false)
			assert.Error(t, err)
		})
	}
}

func TestLineFormatElements(t *testing.T) {
	defs := loadDefs(t, `
lf_json:
  file-type: json
  line-format:
    - '>> '
    - field: __timestamp__
      timestamp-format: '%H:%M'
    - field: name
      min-width: 8
      align: right
      text-transform: lowercase
`)
	require.Len(t, defs, 1)
	lf := defs[0].LineFormat
	require.Len(t, lf, 3)
	assert.True(t, lf[0].Constant)
	assert.Equal(t, ">> ", lf[0].Text)
	assert.Equal(t, "%H:%M", lf[1].TimestampFormat)
	assert.Equal(t, "name", lf[2].Field)
	assert.Equal(t, 8, lf[2].MinWidth)
	assert.Equal(t, AlignRight, lf[2].Align)
	assert.Equal(t, TransformLower, lf[2].Transform)
}

func TestLoadDirAndPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(simpleDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"json_log": {"file-type": "json"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a format"), 0o644))

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "json_log", defs[0].Name)
	assert.Equal(t, "simple_log", defs[1].Name)

	defs, err = LoadPaths([]string{filepath.Join(dir, "b.yaml"), dir})
	require.NoError(t, err)
	assert.Len(t, defs, 3)

	_, err = LoadPaths([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestBuiltinsAreFresh(t *testing.T) {
	first, err := Builtins()
	require.NoError(t, err)
	second, err := Builtins()
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))
	require.NotEmpty(t, first)
	for i := range first {
		assert.True(t, first[i].Builtin)
		assert.NotSame(t, first[i], second[i])
	}
}
