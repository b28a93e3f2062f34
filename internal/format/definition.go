package format

import (
	"sort"

	"github.com/lestrrat-go/strftime"

	"LogFormatPump/internal/pattern"
)

// Kind: тип значения поля.
type Kind int

const (
	KindUnknown Kind = iota
	KindNull
	KindText
	KindInteger
	KindFloat
	KindBoolean
	KindJSON
	KindXML
	KindStruct
	KindQuoted
	KindW3CQuoted
	KindTimestamp
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindNull:      "null",
	KindText:      "string",
	KindInteger:   "integer",
	KindFloat:     "float",
	KindBoolean:   "boolean",
	KindJSON:      "json",
	KindXML:       "xml",
	KindStruct:    "struct",
	KindQuoted:    "quoted",
	KindW3CQuoted: "w3c_quoted",
	KindTimestamp: "timestamp",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// ParseKind разбирает имя типа из описания формата.
func ParseKind(s string) Kind {
	switch s {
	case "string", "text":
		return KindText
	case "integer", "int":
		return KindInteger
	case "float", "real":
		return KindFloat
	case "boolean", "bool":
		return KindBoolean
	case "json":
		return KindJSON
	case "xml":
		return KindXML
	case "struct":
		return KindStruct
	case "quoted":
		return KindQuoted
	case "w3c_quoted", "w3c-quoted":
		return KindW3CQuoted
	case "timestamp":
		return KindTimestamp
	}
	return KindUnknown
}

// FileType: вид входных данных формата.
type FileType int

const (
	TypeText FileType = iota
	TypeJSON
	TypeCSV
)

func (t FileType) String() string {
	switch t {
	case TypeJSON:
		return "json"
	case TypeCSV:
		return "csv"
	}
	return "text"
}

// Class: вариант формата, по которому выбирается путь сканирования.
type Class int

const (
	ClassPlainText Class = iota
	ClassStructured
	ClassContainer
)

// ScaleOp: операция масштабирования по единице измерения.
type ScaleOp int

const (
	ScaleIdentity ScaleOp = iota
	ScaleMultiply
	ScaleDivide
)

// Scaling: множитель для одной единицы измерения.
type Scaling struct {
	Op    ScaleOp
	Value float64
}

// Apply масштабирует значение.
func (s Scaling) Apply(v float64) float64 {
	switch s.Op {
	case ScaleMultiply:
		return v * s.Value
	case ScaleDivide:
		if s.Value != 0 {
			return v / s.Value
		}
	}
	return v
}

// ValueDef описывает пользовательское поле.
type ValueDef struct {
	Name        string
	Kind        Kind
	Collate     string
	Column      int
	UnitField   string
	UnitScaling map[string]Scaling
	Identifier  bool
	ForeignKey  bool
	Hidden      bool
	Rewriter    string
	Description string
	ActionList  []string

	internal   bool
	order      int
	statsIndex int
}

// StatsEligible: числовые поля, не являющиеся идентификаторами и внешними ключами.
func (v *ValueDef) StatsEligible() bool {
	if v.Identifier || v.ForeignKey {
		return false
	}
	return v.Kind == KindInteger || v.Kind == KindFloat
}

func (v *ValueDef) meta() ValueMeta {
	return ValueMeta{
		Name:       v.Name,
		Kind:       v.Kind,
		Column:     v.Column,
		Hidden:     v.Hidden,
		Identifier: v.Identifier,
		ForeignKey: v.ForeignKey,
	}
}

type indexedValue struct {
	capture     int
	unitCapture int
	def         *ValueDef
}

// Pattern: скомпилированный шаблон строки.
type Pattern struct {
	Name   string
	Source string
	Regex  *pattern.Regex
	// ModuleFormat отмечает шаблоны, применяемые только к телу контейнера.
	ModuleFormat bool

	TimestampIdx int
	LevelIdx     int
	ModuleIdx    int
	OpidIdx      int
	BodyIdx      int

	values  []indexedValue
	numeric []int
}

// Action: внешняя команда, привязанная к полю.
type Action struct {
	Label         string
	CaptureOutput bool
	Cmd           []string
}

// Sample: пример строки формата.
type Sample struct {
	Line  string
	Level Level
}

// Align: выравнивание переменной в line-format.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Overflow: поведение при превышении max-width.
type Overflow int

const (
	OverflowAbbrev Overflow = iota
	OverflowTruncate
	OverflowDotDot
)

// Transform: преобразование регистра.
type Transform int

const (
	TransformNone Transform = iota
	TransformUpper
	TransformLower
	TransformCapitalize
)

const (
	fieldTimestamp = "__timestamp__"
	fieldLevel     = "__level__"
	// bodyAlias: имя, под которым тело JSON-записи доступно в line-format.
	bodyAlias = "body"
)

// LineFormatElement: элемент шаблона отображения JSON-записи.
type LineFormatElement struct {
	Constant        bool
	Text            string // константа или default-value
	Field           string
	TimestampFormat string
	MinWidth        int
	MaxWidth        int // 0: без ограничения
	Align           Align
	Overflow        Overflow
	Transform       Transform

	ts *strftime.Strftime
}

// Definition: неизменяемое после сборки описание формата.
type Definition struct {
	Name        string
	Title       string
	Description string
	URL         string
	Type        FileType
	Builtin     bool
	// Delimiter: разделитель полей для csv-форматов.
	Delimiter rune

	Patterns       []*Pattern
	Values         map[string]*ValueDef
	ValueOrder     []*ValueDef
	TimestampField string
	LevelField     string
	BodyField      string
	ModuleField    string
	OpidField      string

	LevelPointerSource string
	LevelPointer       *pattern.Regex

	TimestampFormats []string
	TimestampDivisor float64

	LevelPatterns []LevelPattern
	NumericLevels []NumericLevel

	Samples    []Sample
	Actions    map[string]Action
	LineFormat []LineFormatElement

	Multiline     bool
	OrderedByTime bool
	HideExtra     bool

	FilePatternSource string
	FilePattern       *pattern.Regex

	// ModuleIndex ненулевой у форматов с шаблонами для тела контейнера.
	ModuleIndex uint8

	rawPatterns   map[string]rawPattern
	rawLevels     map[string]string
	numericDefs   []*ValueDef
	declared      []*ValueDef
	columnCount   int
	lineInitCount int
	hasModulePats bool
}

type rawPattern struct {
	source       string
	moduleFormat bool
}

// NewDefinition создаёт пустое описание с настройками по умолчанию.
func NewDefinition(name string) *Definition {
	return &Definition{
		Name:             name,
		Values:           make(map[string]*ValueDef),
		Actions:          make(map[string]Action),
		TimestampField:   "timestamp",
		BodyField:        bodyAlias,
		TimestampDivisor: 1,
		Delimiter:        ',',
		Multiline:        true,
		rawPatterns:      make(map[string]rawPattern),
		rawLevels:        make(map[string]string),
	}
}

// AddPattern регистрирует исходный текст шаблона.
func (d *Definition) AddPattern(name, source string, moduleFormat bool) {
	d.rawPatterns[name] = rawPattern{source: source, moduleFormat: moduleFormat}
}

// AddLevel регистрирует шаблон уровня.
func (d *Definition) AddLevel(level, source string) {
	d.rawLevels[level] = source
}

// AddNumericLevel сопоставляет числовое значение поля уровня с уровнем.
func (d *Definition) AddNumericLevel(level Level, value int64) {
	d.NumericLevels = append(d.NumericLevels, NumericLevel{Value: value, Level: level})
}

// AddValue регистрирует поле; порядок вызовов задаёт порядок полей.
func (d *Definition) AddValue(v *ValueDef) {
	if existing, ok := d.Values[v.Name]; ok {
		v.order = existing.order
		for i, o := range d.ValueOrder {
			if o == existing {
				d.ValueOrder[i] = v
			}
		}
	} else {
		v.order = len(d.ValueOrder)
		d.ValueOrder = append(d.ValueOrder, v)
	}
	v.Column = -1
	d.Values[v.Name] = v
}

// Class возвращает вариант формата.
func (d *Definition) Class() Class {
	if d.Type != TypeText {
		return ClassStructured
	}
	if d.ModuleField != "" {
		for _, p := range d.Patterns {
			if !p.ModuleFormat && p.ModuleIdx >= 0 {
				return ClassContainer
			}
		}
	}
	return ClassPlainText
}

// HasValue сообщает, объявлено ли поле.
func (d *Definition) HasValue(name string) bool {
	_, ok := d.Values[name]
	return ok
}

func (d *Definition) valueMeta(name string, kind Kind) ValueMeta {
	if vd, ok := d.Values[name]; ok {
		return vd.meta()
	}
	return ValueMeta{Name: name, Kind: kind, Column: -1, Hidden: d.HideExtra}
}

// Column: описание колонки для табличного представления.
type Column struct {
	Name        string
	Kind        Kind
	Collate     string
	ForeignKey  bool
	Hidden      bool
	Description string
}

// Columns перечисляет колонки полей в порядке номеров колонок.
func (d *Definition) Columns() []Column {
	var defs []*ValueDef
	for _, vd := range d.ValueOrder {
		if vd.Column >= 0 {
			defs = append(defs, vd)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Column < defs[j].Column })
	cols := make([]Column, len(defs))
	for i, vd := range defs {
		cols[i] = Column{
			Name:        vd.Name,
			Kind:        vd.Kind,
			Collate:     vd.Collate,
			ForeignKey:  vd.ForeignKey,
			Hidden:      vd.Hidden,
			Description: vd.Description,
		}
	}
	return cols
}
