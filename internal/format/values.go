package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LineRange: диапазон байтов [Start, End). End == -1 означает «до конца строки».
type LineRange struct {
	Start, End int
}

// Valid сообщает, задан ли диапазон.
func (r LineRange) Valid() bool { return r.Start >= 0 }

// Len: длина диапазона; для открытого диапазона 0.
func (r LineRange) Len() int {
	if r.End < 0 {
		return 0
	}
	return r.End - r.Start
}

// Shift учитывает вставку amount байт в позиции pos.
// Диапазоны, начинающиеся в pos, остаются на месте.
func (r *LineRange) Shift(pos, amount int) {
	if !r.Valid() {
		return
	}
	if r.Start > pos {
		r.Start = max(r.Start+amount, pos)
	}
	if r.End != -1 && r.End > pos {
		r.End = max(r.End+amount, r.Start)
	}
}

// Offset сдвигает диапазон целиком.
func (r *LineRange) Offset(amount int) {
	if !r.Valid() {
		return
	}
	r.Start += amount
	if r.End != -1 {
		r.End += amount
	}
}

// AttrType: назначение диапазона в строке.
type AttrType int

const (
	AttrTimestamp AttrType = iota
	AttrModule
	AttrOpid
	AttrBody
	AttrInvalid
)

func (t AttrType) String() string {
	switch t {
	case AttrTimestamp:
		return "timestamp"
	case AttrModule:
		return "module"
	case AttrOpid:
		return "opid"
	case AttrBody:
		return "body"
	}
	return "invalid"
}

// Attr: размеченный диапазон строки.
type Attr struct {
	Range   LineRange
	Type    AttrType
	Message string
}

// ShiftAttrs сдвигает все атрибуты.
func ShiftAttrs(attrs []Attr, pos, amount int) {
	for i := range attrs {
		attrs[i].Range.Shift(pos, amount)
	}
}

// ValueMeta: сведения о поле, общие для всех его значений.
type ValueMeta struct {
	Name       string
	Kind       Kind
	Column     int
	Hidden     bool
	Identifier bool
	ForeignKey bool
	FromModule bool
}

// LogicalValue: извлечённое значение поля.
type LogicalValue struct {
	Meta      ValueMeta
	Kind      Kind // фактический тип содержимого
	Origin    LineRange
	SubOffset int

	Text  string
	Int   int64
	Float float64
	Bool  bool
}

// Null сообщает, что значение отсутствует.
func (v LogicalValue) Null() bool { return v.Kind == KindNull }

func (v LogicalValue) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	}
	return v.Text
}

// OriginInFullMessage пересчитывает Origin относительно начала
// многострочного сообщения с учётом SubOffset.
func (v LogicalValue) OriginInFullMessage(msg string) LineRange {
	if v.SubOffset == 0 {
		return v.Origin
	}
	pos := 0
	for i := 0; i < v.SubOffset; i++ {
		nl := strings.IndexByte(msg[pos:], '\n')
		if nl < 0 {
			panic(fmt.Sprintf("value %q: sub-line %d is out of range", v.Meta.Name, v.SubOffset))
		}
		pos += nl + 1
	}
	r := v.Origin
	r.Offset(pos)
	return r
}

func nullValue(meta ValueMeta) LogicalValue {
	return LogicalValue{Meta: meta, Kind: KindNull, Origin: LineRange{-1, -1}}
}

// newLogicalValue декодирует захват по типу поля.
func newLogicalValue(meta ValueMeta, line string, r LineRange) LogicalValue {
	raw := line[r.Start:r.End]
	v := LogicalValue{Meta: meta, Kind: meta.Kind, Origin: r}
	switch meta.Kind {
	case KindText, KindJSON, KindXML, KindStruct, KindTimestamp:
		v.Text = raw
	case KindQuoted:
		v.Kind = KindText
		v.Text = unquote(raw)
	case KindW3CQuoted:
		v.Kind = KindText
		v.Text = unquoteW3C(raw)
	case KindInteger:
		v.Int = parseLeadingInt(raw)
	case KindFloat:
		v.Float = parseLeadingFloat(raw)
	case KindBoolean:
		v.Bool = raw == "true" || raw == "yes"
	case KindNull:
	default:
		panic(fmt.Sprintf("value %q has unknown kind %d", meta.Name, meta.Kind))
	}
	return v
}

func (v *LogicalValue) applyScaling(s *Scaling) {
	if s == nil {
		return
	}
	switch v.Kind {
	case KindInteger:
		v.Int = int64(s.Apply(float64(v.Int)))
	case KindFloat:
		v.Float = s.Apply(v.Float)
	}
}

func unquote(s string) string {
	if s == "" || (s[0] != '"' && s[0] != '\'') {
		return s
	}
	q := s[0]
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			sb.WriteByte(s[i])
		case c == q:
			return sb.String()
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func unquoteW3C(s string) string {
	if s == "" || (s[0] != '"' && s[0] != '\'') {
		return s
	}
	q := s[0]
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == q {
			if i+1 < len(s) && s[i+1] == q {
				sb.WriteByte(q)
				i++
				continue
			}
			return sb.String()
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func parseLeadingInt(s string) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, _ := strconv.ParseInt(s[:end], 10, 64)
	return v
}

func parseLeadingFloat(s string) float64 {
	if v, ok := parseFullFloat(s); ok {
		return v
	}
	for end := len(s) - 1; end > 0; end-- {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return v
		}
	}
	return 0
}

// parseFullFloat требует, чтобы число занимало весь текст.
func parseFullFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ValueStats: накопленная статистика числового поля.
type ValueStats struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
}

// Add учитывает значение.
func (s *ValueStats) Add(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Sum += v
}
