package format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"LogFormatPump/internal/jsonstream"
)

// lineFormatLines: сколько переводов строк добавит поле, выведенное через
// line-format; ok=false, если шаблон поле не выводит.
func (d *Definition) lineFormatLines(name, text string) (lines int, ok bool) {
	for i := range d.LineFormat {
		el := &d.LineFormat[i]
		switch {
		case el.Constant:
		case el.Field == name:
			ok = true
			lines += strings.Count(el.fit(text), "\n")
		case el.Field == fieldTimestamp && name == d.TimestampField:
			ok = true
		}
	}
	return lines, ok
}

// valueLineCount: сколько подстрок займёт поле при отображении записи.
// Подсчёт повторяет раскладку layoutJSON.
func (d *Definition) valueLineCount(name string, topLevel bool, text string, isString bool) int {
	if !isString || name == d.TimestampField {
		// поле времени выводится отформатированным, без переводов строк
		text = ""
		topLevel = topLevel || name == d.TimestampField
	}
	if n, ok := d.lineFormatLines(name, text); ok {
		return n
	}
	if d.skipExtra(name) {
		return 0
	}
	if vd, ok := d.Values[name]; ok {
		if vd.Hidden {
			return 0
		}
	} else if d.HideExtra || !topLevel {
		return 0
	}
	return 1 + strings.Count(text, "\n")
}

// skipExtra: поле тела не выводится отдельной строкой "  name: value".
func (d *Definition) skipExtra(name string) bool {
	if name == bodyAlias {
		return true
	}
	if name != d.BodyField {
		return false
	}
	_, shown := d.lineFormatLines(bodyAlias, "")
	return shown
}

func unixFromNumber(v, divisor float64) time.Time {
	if divisor == 0 {
		divisor = 1
	}
	secs := v / divisor
	whole := math.Floor(secs)
	usec := math.Round((secs - whole) * 1e6)
	return time.Unix(int64(whole), int64(usec)*int64(time.Microsecond)).UTC()
}

type jsonScanHandler struct {
	f        *File
	ll       LogLine
	hasTime  bool
	subLines int
}

func (h *jsonScanHandler) count(ctx *jsonstream.Context, text string, isString bool) {
	d := h.f.def
	path := ctx.Path()
	if isString && path == d.BodyField && path != bodyAlias {
		h.subLines += d.valueLineCount(bodyAlias, true, text, true)
	}
	h.subLines += d.valueLineCount(path, ctx.Depth == 1, text, isString)
}

func (h *jsonScanHandler) setTime(t time.Time) {
	h.ll.Time = t
	h.hasTime = true
}

func (h *jsonScanHandler) Null(ctx *jsonstream.Context)         { h.count(ctx, "", false) }
func (h *jsonScanHandler) Bool(ctx *jsonstream.Context, _ bool) { h.count(ctx, "", false) }

func (h *jsonScanHandler) Int(ctx *jsonstream.Context, v int64) {
	d := h.f.def
	path := ctx.Path()
	switch {
	case path == d.TimestampField:
		h.setTime(unixFromNumber(float64(v), d.TimestampDivisor))
	case d.LevelField != "" && path == d.LevelField:
		if len(d.NumericLevels) == 0 {
			h.ll.Level = d.ConvertLevel(strconv.FormatInt(v, 10), true)
		} else if lvl, ok := d.numericLevel(v); ok {
			h.ll.Level = lvl
		}
	}
	h.count(ctx, "", false)
}

func (h *jsonScanHandler) Double(ctx *jsonstream.Context, v float64) {
	if ctx.Path() == h.f.def.TimestampField {
		h.setTime(unixFromNumber(v, h.f.def.TimestampDivisor))
	}
	h.count(ctx, "", false)
}

func (h *jsonScanHandler) String(ctx *jsonstream.Context, v string) {
	d := h.f.def
	path := ctx.Path()
	switch {
	case path == d.TimestampField:
		tm, ok := h.f.dates.Scan(v)
		if !ok {
			h.f.dates.Unlock()
			tm, ok = h.f.dates.Scan(v)
		}
		if ok {
			h.setTime(tm.Time)
		}
	case d.LevelPointer != nil:
		if d.LevelPointer.Matches(path) {
			h.ll.Level = d.ConvertLevel(v, true)
		}
	case d.LevelField != "" && path == d.LevelField:
		h.ll.Level = d.ConvertLevel(v, true)
	}
	if d.OpidField != "" && path == d.OpidField {
		h.ll.Opid = hashOpid(v)
	}
	h.count(ctx, v, true)
}

func (h *jsonScanHandler) StartMap(ctx *jsonstream.Context)   { h.startContainer(ctx) }
func (h *jsonScanHandler) StartArray(ctx *jsonstream.Context) { h.startContainer(ctx) }
func (h *jsonScanHandler) EndMap(*jsonstream.Context)         {}
func (h *jsonScanHandler) EndArray(*jsonstream.Context)       {}

func (h *jsonScanHandler) startContainer(ctx *jsonstream.Context) {
	if ctx.Depth == 1 {
		h.subLines += h.f.def.valueLineCount(ctx.Key(), true, "", false)
	}
}

func verboseParseError(err error, input string) string {
	var pe *jsonstream.ParseError
	if errors.As(err, &pe) {
		return pe.Verbose(input)
	}
	return err.Error() + "\n"
}

func (f *File) scanJSON(li LineInfo) ScanResult {
	d := f.def
	if !f.confirmed && len(f.lines) >= 3 {
		return ScanNoMatch
	}

	if li.Partial {
		f.logger.Debug("Пропуск незавершённой строки", zap.Int64("offset", li.Offset))
		if f.confirmed {
			last, _ := f.lastLine()
			f.emit(LogLine{Offset: li.Offset, Time: last.Time, Level: LevelInvalid})
		}
		return ScanIncomplete
	}

	h := &jsonScanHandler{f: f, ll: LogLine{Offset: li.Offset, Level: LevelInfo}, subLines: 1}
	if err := jsonstream.Parse(li.Data, h); err != nil {
		f.logger.Debug("Не удалось разобрать JSON-строку", zap.Int64("offset", li.Offset), zap.Error(err))
		if !f.confirmed {
			return ScanNoMatch
		}
		last, _ := f.lastLine()
		n := strings.Count(verboseParseError(err, li.Data), "\n") + 1
		for i := 0; i < n; i++ {
			lvl := LevelInvalid
			if i > 0 {
				lvl |= LevelContinued
			}
			f.emit(LogLine{Offset: li.Offset, Time: last.Time, Level: lvl, SubOffset: i})
		}
		return ScanMatch
	}

	if !h.hasTime {
		if !f.confirmed {
			return ScanNoMatch
		}
		h.ll.Level |= LevelIgnore
		f.emit(h.ll)
		return ScanMatch
	}

	total := h.subLines + d.lineInitCount
	ll := h.ll
	for i := 0; i < total; i++ {
		ll.SubOffset = i
		if i > 0 {
			ll.Level |= LevelContinued
		}
		f.emit(ll)
	}
	return ScanMatch
}

// renderCache хранит последнюю отрисованную запись.
type renderCache struct {
	valid   bool
	offset  int64
	full    bool
	text    string
	offsets []int
	values  []LogicalValue
	attrs   []Attr
	parses  int
}

type jsonRenderHandler struct {
	d        *Definition
	input    string
	line     LogLine
	values   []LogicalValue
	alias    []bool
	subStart int
}

func (h *jsonRenderHandler) add(meta ValueMeta, v LogicalValue, alias bool) {
	v.Meta = meta
	v.Origin = LineRange{-1, -1}
	h.values = append(h.values, v)
	h.alias = append(h.alias, alias)
}

func (h *jsonRenderHandler) wanted(ctx *jsonstream.Context, path string) bool {
	return ctx.Depth == 1 || h.d.HasValue(path)
}

func (h *jsonRenderHandler) Null(ctx *jsonstream.Context) {
	if path := ctx.Path(); h.wanted(ctx, path) {
		h.add(h.d.valueMeta(path, KindNull), LogicalValue{Kind: KindNull}, false)
	}
}

func (h *jsonRenderHandler) Bool(ctx *jsonstream.Context, v bool) {
	if path := ctx.Path(); h.wanted(ctx, path) {
		h.add(h.d.valueMeta(path, KindBoolean), LogicalValue{Kind: KindBoolean, Bool: v}, false)
	}
}

func (h *jsonRenderHandler) Int(ctx *jsonstream.Context, v int64) {
	if path := ctx.Path(); h.wanted(ctx, path) {
		h.add(h.d.valueMeta(path, KindInteger), LogicalValue{Kind: KindInteger, Int: v}, false)
	}
}

func (h *jsonRenderHandler) Double(ctx *jsonstream.Context, v float64) {
	if path := ctx.Path(); h.wanted(ctx, path) {
		h.add(h.d.valueMeta(path, KindFloat), LogicalValue{Kind: KindFloat, Float: v}, false)
	}
}

func (h *jsonRenderHandler) String(ctx *jsonstream.Context, v string) {
	d := h.d
	path := ctx.Path()
	if path == d.TimestampField {
		ts := defaultTimestampFormat.FormatString(h.line.Time)
		h.add(d.valueMeta(path, KindText), LogicalValue{Kind: KindText, Text: ts}, false)
		return
	}
	if path == d.BodyField && path != bodyAlias {
		h.add(d.valueMeta(bodyAlias, KindText), LogicalValue{Kind: KindText, Text: v}, true)
	}
	if h.wanted(ctx, path) {
		h.add(d.valueMeta(path, KindText), LogicalValue{Kind: KindText, Text: v}, false)
	}
}

func (h *jsonRenderHandler) StartMap(ctx *jsonstream.Context)   { h.startContainer(ctx) }
func (h *jsonRenderHandler) StartArray(ctx *jsonstream.Context) { h.startContainer(ctx) }
func (h *jsonRenderHandler) EndMap(ctx *jsonstream.Context)     { h.endContainer(ctx) }
func (h *jsonRenderHandler) EndArray(ctx *jsonstream.Context)   { h.endContainer(ctx) }

func (h *jsonRenderHandler) startContainer(ctx *jsonstream.Context) {
	if ctx.Depth == 1 {
		h.subStart = ctx.Start
	}
}

func (h *jsonRenderHandler) endContainer(ctx *jsonstream.Context) {
	if ctx.Depth != 1 {
		return
	}
	key := ctx.Key()
	raw := h.input[h.subStart:ctx.End]
	h.add(h.d.valueMeta(key, KindJSON), LogicalValue{Kind: KindJSON, Text: raw}, false)
}

func findValue(values []LogicalValue, name string) int {
	for i := range values {
		if values[i].Meta.Name == name {
			return i
		}
	}
	return -1
}

func appendAligned(buf []byte, el *LineFormatElement, s string) []byte {
	pad := el.MinWidth - utf8.RuneCountInString(s)
	if pad <= 0 {
		return append(buf, s...)
	}
	if el.Align == AlignRight {
		buf = append(buf, strings.Repeat(" ", pad)...)
		return append(buf, s...)
	}
	buf = append(buf, s...)
	return append(buf, strings.Repeat(" ", pad)...)
}

// applyTransform меняет регистр побайтно, только для ASCII.
func applyTransform(b []byte, t Transform) {
	upper := func(c byte) byte {
		if c >= 'a' && c <= 'z' {
			return c - 'a' + 'A'
		}
		return c
	}
	lower := func(c byte) byte {
		if c >= 'A' && c <= 'Z' {
			return c - 'A' + 'a'
		}
		return c
	}
	for i := range b {
		switch {
		case t == TransformUpper, t == TransformCapitalize && i == 0:
			b[i] = upper(b[i])
		case t == TransformLower, t == TransformCapitalize:
			b[i] = lower(b[i])
		}
	}
}

// abbreviate сокращает сегменты строки между разделителями до первого
// символа, начиная слева, пока строка не уложится в max байт.
func abbreviate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	b := []byte(s)
	lastStart := 1
	for i := 0; i < len(b) && len(b) > max; i++ {
		switch b[i] {
		case '.', '-', '/', ':':
			if i > lastStart && lastStart < len(b) {
				b = append(b[:lastStart], b[i:]...)
				i = lastStart
			}
			lastStart = i + 2
		}
	}
	if len(b) <= max {
		return string(b)
	}
	const ellipsis = "…"
	if max <= len(ellipsis) {
		return truncate(string(b), max)
	}
	keep := max - len(ellipsis)
	tail := keep / 2
	return string(b[:keep-tail]) + ellipsis + string(b[len(b)-tail:])
}

// dotdot оставляет начало и конец строки, заменяя середину на "..".
func dotdot(s string, max int) string {
	if max < 2 {
		return truncate(s, max)
	}
	middle := max/2 - 1
	rest := max - middle - 2
	head := truncate(s, middle)
	tail := s[len(s)-rest:]
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	return head + ".." + tail
}

// truncate обрезает строку до max байт по границе символа.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max < 0 {
		max = 0
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// fit укладывает значение в max-width элемента согласно overflow.
func (el *LineFormatElement) fit(s string) string {
	if el.MaxWidth <= 0 || len(s) <= el.MaxWidth {
		return s
	}
	switch el.Overflow {
	case OverflowTruncate:
		return truncate(s, el.MaxWidth)
	case OverflowDotDot:
		return dotdot(s, el.MaxWidth)
	}
	return abbreviate(s, el.MaxWidth)
}

func (f *File) renderJSON(line LogLine, raw string, full bool) *renderCache {
	c := &f.render
	if c.valid && c.offset == line.Offset && c.full == full {
		return c
	}
	d := f.def
	*c = renderCache{valid: true, offset: line.Offset, full: full, parses: c.parses + 1}

	h := &jsonRenderHandler{d: d, input: raw, line: line}
	if err := jsonstream.Parse(raw, h); err != nil {
		c.text = fmt.Sprintf("[offset: %d] %s\n%s", line.Offset, raw, verboseParseError(err, raw))
		c.attrs = []Attr{{Range: LineRange{0, -1}, Type: AttrInvalid, Message: "JSON line failed to parse"}}
	} else {
		c.text, c.attrs = f.layoutJSON(h, line, full)
		c.values = h.values
	}

	c.offsets = append(c.offsets, 0)
	for i := 0; i < len(c.text); i++ {
		if c.text[i] == '\n' && i+1 < len(c.text) {
			c.offsets = append(c.offsets, i+1)
		}
	}
	c.offsets = append(c.offsets, len(c.text))
	return c
}

func (f *File) layoutJSON(h *jsonRenderHandler, line LogLine, full bool) (string, []Attr) {
	d := f.def
	values := h.values
	used := make([]bool, len(values))
	var attrs []Attr
	var buf []byte

	subOffset := 1 + d.lineInitCount
	for i := range d.LineFormat {
		el := &d.LineFormat[i]
		begin := len(buf)
		if el.Constant {
			buf = append(buf, el.Text...)
			continue
		}

		switch idx := findValue(values, el.Field); {
		case idx >= 0:
			lv := &values[idx]
			str := lv.String()
			start := len(buf)
			fitted := el.fit(str)
			subOffset += strings.Count(fitted, "\n")
			if len(fitted) < len(str) {
				buf = append(buf, fitted...)
			} else {
				buf = appendAligned(buf, el, str)
			}

			r := LineRange{start, len(buf)}
			if nl := strings.IndexByte(string(buf[start:]), '\n'); nl >= 0 && !full {
				r.End = start + nl
			}
			switch lv.Meta.Name {
			case d.TimestampField:
				attrs = append(attrs, Attr{Range: r, Type: AttrTimestamp})
			case d.BodyField, bodyAlias:
				attrs = append(attrs, Attr{Range: r, Type: AttrBody})
			case d.OpidField:
				attrs = append(attrs, Attr{Range: r, Type: AttrOpid})
			}
			lv.Origin = r
			used[idx] = true
		case el.Field == fieldTimestamp:
			ts := el.ts
			if ts == nil {
				ts = defaultTimestampFormat
			}
			start := len(buf)
			buf = append(buf, ts.FormatString(line.Time)...)
			attrs = append(attrs, Attr{Range: LineRange{start, len(buf)}, Type: AttrTimestamp})
			if ti := findValue(values, d.TimestampField); ti >= 0 {
				used[ti] = true
			}
		case el.Field == fieldLevel:
			buf = appendAligned(buf, el, line.Level.String())
		default:
			buf = appendAligned(buf, el, el.Text)
		}
		applyTransform(buf[begin:], el.Transform)
	}
	buf = append(buf, '\n')

	for i := range values {
		lv := &values[i]
		if lv.Meta.Hidden || used[i] || h.alias[i] || d.skipExtra(lv.Meta.Name) {
			continue
		}
		name := lv.Meta.Name
		parts := strings.Split(lv.String(), "\n")
		start := 2 + len(name) + 2
		lv.SubOffset = subOffset
		lv.Origin = LineRange{start, start + len(parts[0])}
		for _, part := range parts {
			buf = append(buf, "  "...)
			buf = append(buf, name...)
			buf = append(buf, ": "...)
			buf = append(buf, part...)
			buf = append(buf, '\n')
			subOffset++
		}
	}
	return string(buf), attrs
}

// Render возвращает текст строки журнала для отображения. Для JSON-форматов
// запись раскладывается по line-format; full возвращает запись целиком.
func (f *File) Render(line LogLine, raw string, full bool) string {
	if f.def.Type != TypeJSON {
		return raw
	}
	c := f.renderJSON(line, raw, full)
	if full {
		return c.text
	}
	sub := line.SubOffset
	if sub < 0 || sub+1 >= len(c.offsets) {
		return ""
	}
	this, next := c.offsets[sub], c.offsets[sub+1]
	if next > 0 && c.text[next-1] == '\n' && this != next {
		next--
	}
	return c.text[this:next]
}

// RenderParses: сколько раз запись разбиралась для отображения.
func (f *File) RenderParses() int { return f.render.parses }
