package format

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

type docPattern struct {
	Pattern      string `yaml:"pattern"`
	ModuleFormat bool   `yaml:"module-format"`
}

type docScaling struct {
	Op    string  `yaml:"op"`
	Value float64 `yaml:"value"`
}

type docUnit struct {
	Field         string                `yaml:"field"`
	ScalingFactor map[string]docScaling `yaml:"scaling-factor"`
}

type docValue struct {
	Kind        string   `yaml:"kind"`
	Collate     string   `yaml:"collate"`
	Unit        docUnit  `yaml:"unit"`
	Identifier  bool     `yaml:"identifier"`
	ForeignKey  bool     `yaml:"foreign-key"`
	Hidden      bool     `yaml:"hidden"`
	Rewriter    string   `yaml:"rewriter"`
	Description string   `yaml:"description"`
	ActionList  []string `yaml:"action-list"`
}

type docAction struct {
	Label         string   `yaml:"label"`
	CaptureOutput bool     `yaml:"capture-output"`
	Cmd           []string `yaml:"cmd"`
}

type docSample struct {
	Line  string `yaml:"line"`
	Level string `yaml:"level"`
}

type docLineFormat struct {
	Field           string `yaml:"field"`
	DefaultValue    string `yaml:"default-value"`
	TimestampFormat string `yaml:"timestamp-format"`
	MinWidth        int    `yaml:"min-width"`
	MaxWidth        int    `yaml:"max-width"`
	Align           string `yaml:"align"`
	Overflow        string `yaml:"overflow"`
	TextTransform   string `yaml:"text-transform"`
}

type docFormat struct {
	Title            string                `yaml:"title"`
	Description      string                `yaml:"description"`
	URL              string                `yaml:"url"`
	FileType         string                `yaml:"file-type"`
	JSON             bool                  `yaml:"json"`
	Delimiter        string                `yaml:"delimiter"`
	Regex            map[string]docPattern `yaml:"regex"`
	TimestampField   string                `yaml:"timestamp-field"`
	TimestampFormat  []string              `yaml:"timestamp-format"`
	TimestampDivisor float64               `yaml:"timestamp-divisor"`
	LevelField       string                `yaml:"level-field"`
	LevelPointer     string                `yaml:"level-pointer"`
	BodyField        *string               `yaml:"body-field"`
	ModuleField      string                `yaml:"module-field"`
	OpidField        string                `yaml:"opid-field"`
	Multiline        *bool                 `yaml:"multiline"`
	OrderedByTime    bool                  `yaml:"ordered-by-time"`
	HideExtra        bool                  `yaml:"hide-extra"`
	FilePattern      string                `yaml:"file-pattern"`
	Level            map[string]yaml.Node  `yaml:"level"`
	Value            yaml.Node             `yaml:"value"`
	Action           map[string]docAction  `yaml:"action"`
	Sample           []docSample           `yaml:"sample"`
	LineFormat       []yaml.Node           `yaml:"line-format"`
}

// LoadBytes разбирает документ с описаниями форматов. Ключи, начинающиеся
// с "$", пропускаются.
func LoadBytes(data []byte, builtin bool) ([]*Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), &root); err != nil {
		return nil, fmt.Errorf("parse format document: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, errors.New("format document must be a mapping of format names")
	}

	var defs []*Definition
	for i := 0; i+1 < len(top.Content); i += 2 {
		name := top.Content[i].Value
		if strings.HasPrefix(name, "$") {
			continue
		}
		var doc docFormat
		if err := top.Content[i+1].Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode format %s: %w", name, err)
		}
		d, err := doc.definition(name)
		if err != nil {
			return nil, err
		}
		d.Builtin = builtin
		defs = append(defs, d)
	}
	return defs, nil
}

// LoadFile читает описания форматов из файла YAML или JSON.
func LoadFile(path string) ([]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read format file %s: %w", path, err)
	}
	defs, err := LoadBytes(data, false)
	if err != nil {
		return nil, fmt.Errorf("load format file %s: %w", path, err)
	}
	return defs, nil
}

func isFormatFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadDir читает все файлы описаний каталога в лексическом порядке.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read format dir %s: %w", dir, err)
	}
	var defs []*Definition
	for _, e := range entries {
		if e.IsDir() || !isFormatFile(e.Name()) {
			continue
		}
		ds, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, ds...)
	}
	return defs, nil
}

// LoadPaths загружает форматы из списка файлов и каталогов.
func LoadPaths(paths []string) ([]*Definition, error) {
	var defs []*Definition
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat format path %s: %w", p, err)
		}
		var ds []*Definition
		if st.IsDir() {
			ds, err = LoadDir(p)
		} else {
			ds, err = LoadFile(p)
		}
		if err != nil {
			return nil, err
		}
		defs = append(defs, ds...)
	}
	return defs, nil
}

// Builtins возвращает встроенные форматы. Каждый вызов создаёт новые описания.
func Builtins() ([]*Definition, error) {
	names, err := fs.Glob(builtinFS, "builtin/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list builtin formats: %w", err)
	}
	sort.Strings(names)
	var defs []*Definition
	for _, n := range names {
		data, err := builtinFS.ReadFile(n)
		if err != nil {
			return nil, fmt.Errorf("read builtin format %s: %w", n, err)
		}
		ds, err := LoadBytes(data, true)
		if err != nil {
			return nil, fmt.Errorf("load builtin format %s: %w", n, err)
		}
		defs = append(defs, ds...)
	}
	return defs, nil
}

func (doc *docFormat) definition(name string) (*Definition, error) {
	d := NewDefinition(name)
	d.Title = doc.Title
	d.Description = doc.Description
	d.URL = doc.URL

	switch {
	case doc.FileType == "json" || (doc.FileType == "" && doc.JSON):
		d.Type = TypeJSON
	case doc.FileType == "csv":
		d.Type = TypeCSV
	case doc.FileType == "" || doc.FileType == "text":
	default:
		return nil, defErr(name, "file-type", "unknown file type -- %s", doc.FileType)
	}
	if doc.Delimiter != "" {
		d.Delimiter = []rune(doc.Delimiter)[0]
	}

	for pname, p := range doc.Regex {
		d.AddPattern(pname, p.Pattern, p.ModuleFormat)
	}
	if doc.TimestampField != "" {
		d.TimestampField = doc.TimestampField
	}
	d.TimestampFormats = doc.TimestampFormat
	if doc.TimestampDivisor != 0 {
		d.TimestampDivisor = doc.TimestampDivisor
	}
	d.LevelField = doc.LevelField
	d.LevelPointerSource = doc.LevelPointer
	if doc.BodyField != nil {
		d.BodyField = *doc.BodyField
	}
	d.ModuleField = doc.ModuleField
	d.OpidField = doc.OpidField
	if doc.Multiline != nil {
		d.Multiline = *doc.Multiline
	}
	d.OrderedByTime = doc.OrderedByTime
	d.HideExtra = doc.HideExtra
	d.FilePatternSource = doc.FilePattern

	if err := doc.levels(d); err != nil {
		return nil, err
	}
	if err := doc.values(d); err != nil {
		return nil, err
	}

	for aname, a := range doc.Action {
		d.Actions[aname] = Action{Label: a.Label, CaptureOutput: a.CaptureOutput, Cmd: a.Cmd}
	}
	for _, s := range doc.Sample {
		smp := Sample{Line: s.Line}
		if s.Level != "" {
			lvl, ok := LevelFromName(s.Level)
			if !ok {
				return nil, defErr(name, "sample", "unknown level name -- %s", s.Level)
			}
			smp.Level = lvl
		}
		d.Samples = append(d.Samples, smp)
	}

	for i := range doc.LineFormat {
		el, err := lineFormatElement(&doc.LineFormat[i])
		if err != nil {
			return nil, defErr(name, fmt.Sprintf("line-format[%d]", i), "%v", err)
		}
		d.LineFormat = append(d.LineFormat, el)
	}
	return d, nil
}

func (doc *docFormat) levels(d *Definition) error {
	names := make([]string, 0, len(doc.Level))
	for n := range doc.Level {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		node := doc.Level[n]
		if node.ShortTag() == "!!int" {
			var v int64
			if err := node.Decode(&v); err != nil {
				return defErr(d.Name, "level", "%v", err)
			}
			lvl, ok := LevelFromName(n)
			if !ok {
				return defErr(d.Name, "level", "unknown level name -- %s", n)
			}
			d.AddNumericLevel(lvl, v)
			continue
		}
		d.AddLevel(n, node.Value)
	}
	return nil
}

// values регистрирует поля в порядке их следования в документе.
func (doc *docFormat) values(d *Definition) error {
	node := &doc.Value
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return defErr(d.Name, "value", "expecting a mapping of value definitions")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		vname := node.Content[i].Value
		var dv docValue
		if err := node.Content[i+1].Decode(&dv); err != nil {
			return defErr(d.Name, "value", "%s: %v", vname, err)
		}
		kind := KindUnknown
		if dv.Kind != "" {
			if kind = ParseKind(dv.Kind); kind == KindUnknown {
				return defErr(d.Name, vname, "unknown value kind -- %s", dv.Kind)
			}
		}
		vd := &ValueDef{
			Name:        vname,
			Kind:        kind,
			Collate:     dv.Collate,
			UnitField:   dv.Unit.Field,
			Identifier:  dv.Identifier,
			ForeignKey:  dv.ForeignKey,
			Hidden:      dv.Hidden,
			Rewriter:    dv.Rewriter,
			Description: dv.Description,
			ActionList:  dv.ActionList,
		}
		if len(dv.Unit.ScalingFactor) > 0 {
			vd.UnitScaling = make(map[string]Scaling, len(dv.Unit.ScalingFactor))
			for unit, sf := range dv.Unit.ScalingFactor {
				op, err := scaleOp(sf.Op)
				if err != nil {
					return defErr(d.Name, vname, "%v", err)
				}
				vd.UnitScaling[unit] = Scaling{Op: op, Value: sf.Value}
			}
		}
		d.AddValue(vd)
	}
	return nil
}

func scaleOp(s string) (ScaleOp, error) {
	switch s {
	case "", "identity":
		return ScaleIdentity, nil
	case "multiply", "*":
		return ScaleMultiply, nil
	case "divide", "/":
		return ScaleDivide, nil
	}
	return ScaleIdentity, fmt.Errorf("unknown scaling op -- %s", s)
}

func lineFormatElement(node *yaml.Node) (LineFormatElement, error) {
	if node.Kind == yaml.ScalarNode {
		return LineFormatElement{Constant: true, Text: node.Value}, nil
	}
	var lf docLineFormat
	if err := node.Decode(&lf); err != nil {
		return LineFormatElement{}, err
	}
	el := LineFormatElement{
		Field:           lf.Field,
		Text:            lf.DefaultValue,
		TimestampFormat: lf.TimestampFormat,
		MinWidth:        lf.MinWidth,
		MaxWidth:        lf.MaxWidth,
	}
	switch lf.Align {
	case "", "left":
	case "right":
		el.Align = AlignRight
	default:
		return el, fmt.Errorf("unknown align -- %s", lf.Align)
	}
	switch lf.Overflow {
	case "", "abbrev":
	case "truncate":
		el.Overflow = OverflowTruncate
	case "dot-dot":
		el.Overflow = OverflowDotDot
	default:
		return el, fmt.Errorf("unknown overflow -- %s", lf.Overflow)
	}
	switch lf.TextTransform {
	case "", "none":
	case "uppercase":
		el.Transform = TransformUpper
	case "lowercase":
		el.Transform = TransformLower
	case "capitalize":
		el.Transform = TransformCapitalize
	default:
		return el, fmt.Errorf("unknown text-transform -- %s", lf.TextTransform)
	}
	if el.Field == "" && el.TimestampFormat == "" {
		return el, errors.New("line-format element needs a field")
	}
	return el, nil
}
