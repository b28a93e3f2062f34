package format

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lestrrat-go/strftime"
	"go.uber.org/zap"

	"LogFormatPump/internal/jsonstream"
	"LogFormatPump/internal/pattern"
	"LogFormatPump/internal/ptime"
)

var defaultTimestampFormat = mustStrftime("%Y-%m-%dT%H:%M:%S.%L")

func mustStrftime(p string) *strftime.Strftime {
	f, err := newStrftime(p)
	if err != nil {
		panic(err)
	}
	return f
}

func newStrftime(p string) (*strftime.Strftime, error) {
	return strftime.New(p, strftime.WithMilliseconds('L'))
}

// build компилирует шаблоны, назначает колонки и проверяет примеры.
// Все найденные ошибки возвращаются списком.
func (d *Definition) build(logger *zap.Logger) []error {
	var errs []error
	add := func(ctx, msg string, args ...any) {
		errs = append(errs, defErr(d.Name, ctx, msg, args...))
	}

	d.declared = append([]*ValueDef(nil), d.ValueOrder...)
	if d.Type == TypeCSV && !d.HasValue(d.TimestampField) {
		add("", "delimited formats must declare the timestamp field '%s' as a value", d.TimestampField)
	}
	d.addRoleValue(d.TimestampField, true)
	if !d.HasValue(d.LevelField) {
		d.addRoleValue(d.LevelField, false)
	}
	d.addRoleValue(d.BodyField, true)

	if d.FilePatternSource != "" {
		re, err := pattern.Compile(d.FilePatternSource)
		if err != nil {
			add("file-pattern", "%v", err)
		}
		d.FilePattern = re
	}
	if d.LevelPointerSource != "" {
		re, err := pattern.Compile(d.LevelPointerSource)
		if err != nil {
			add("level-pointer", "%v", err)
		}
		d.LevelPointer = re
	}

	d.compilePatterns(logger, add)

	if d.Type != TypeText {
		if len(d.rawPatterns) > 0 {
			add("", " structured logs cannot have regexes")
		}
	} else if len(d.rawPatterns) == 0 {
		add("", " no regexes specified for format")
	}

	levelNames := make([]string, 0, len(d.rawLevels))
	for name := range d.rawLevels {
		levelNames = append(levelNames, name)
	}
	sort.Strings(levelNames)
	for _, name := range levelNames {
		lvl, ok := LevelFromName(name)
		if !ok {
			add("level", "unknown level name -- %s", name)
			continue
		}
		src := d.rawLevels[name]
		re, err := pattern.Compile(src)
		if err != nil {
			add("level", "%v", err)
			continue
		}
		d.LevelPatterns = append(d.LevelPatterns, LevelPattern{Level: lvl, Source: src, Regex: re})
	}
	sortLevels(d)

	for _, vd := range d.ValueOrder {
		if !vd.internal && vd.Column == -1 {
			vd.Column = d.columnCount
			d.columnCount++
		}
		if vd.Kind == KindUnknown {
			vd.Kind = KindText
		}
		for _, act := range vd.ActionList {
			if _, ok := d.Actions[act]; !ok {
				add(vd.Name, " cannot find action -- %s", act)
			}
		}
	}

	if d.Type == TypeText && len(d.Samples) == 0 {
		add("", "no sample logs provided, all formats must have samples")
	}
	for _, s := range d.Samples {
		if d.Type == TypeJSON {
			if err := jsonstream.Parse(s.Line, nopHandler{}); err != nil {
				add("", "invalid sample -- %s", s.Line)
				add("", "%v", err)
			}
			continue
		}
		if d.Type == TypeText {
			d.checkSample(s, add)
		}
	}

	for _, vd := range d.ValueOrder {
		if vd.StatsEligible() {
			vd.statsIndex = len(d.numericDefs)
			d.numericDefs = append(d.numericDefs, vd)
		} else {
			vd.statsIndex = -1
		}
	}

	d.buildLineFormat(logger, add)
	return errs
}

func (d *Definition) addRoleValue(name string, force bool) {
	if name == "" {
		return
	}
	vd, ok := d.Values[name]
	if !ok {
		vd = &ValueDef{Name: name}
		d.AddValue(vd)
	} else if !force {
		return
	}
	vd.Kind = KindText
	vd.internal = true
}

func (d *Definition) compilePatterns(logger *zap.Logger, add func(string, string, ...any)) {
	names := make([]string, 0, len(d.rawPatterns))
	for name := range d.rawPatterns {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rp := d.rawPatterns[name]
		ctx := fmt.Sprintf("regex[%s]", name)
		if rp.moduleFormat {
			d.hasModulePats = true
		}

		re, err := pattern.Compile(rp.source)
		if err != nil {
			offset := len(rp.source)
			var ce *pattern.CompileError
			if errors.As(err, &ce) {
				offset = ce.Offset
			}
			add(ctx, "%v", err)
			add(ctx, "%s", rp.source)
			add(ctx, "%s^", strings.Repeat(" ", offset))
			continue
		}

		p := &Pattern{
			Name:         name,
			Source:       rp.source,
			Regex:        re,
			ModuleFormat: rp.moduleFormat,
			TimestampIdx: -1,
			LevelIdx:     -1,
			ModuleIdx:    -1,
			OpidIdx:      -1,
			BodyIdx:      -1,
		}
		for _, n := range re.Names() {
			if n.Name == d.TimestampField {
				p.TimestampIdx = n.Index
			}
			if n.Name == d.LevelField {
				p.LevelIdx = n.Index
			}
			if n.Name == d.ModuleField {
				p.ModuleIdx = n.Index
			}
			if n.Name == d.OpidField {
				p.OpidIdx = n.Index
			}
			if n.Name == d.BodyField {
				p.BodyIdx = n.Index
			}

			vd, ok := d.Values[n.Name]
			if !ok {
				continue
			}
			iv := indexedValue{capture: n.Index, unitCapture: -1, def: vd}
			if vd.UnitField != "" {
				iv.unitCapture = re.NameIndex(vd.UnitField)
			}
			if !vd.internal && vd.Column == -1 {
				vd.Column = d.columnCount
				d.columnCount++
			}
			p.values = append(p.values, iv)
		}

		sort.SliceStable(p.values, func(i, j int) bool {
			return p.values[i].def.order < p.values[j].def.order
		})
		for i, iv := range p.values {
			if iv.def.StatsEligible() {
				p.numeric = append(p.numeric, i)
			}
		}

		if d.LevelField != "" && p.LevelIdx == -1 {
			logger.Warn("Поле уровня не найдено в шаблоне",
				zap.String("format", d.Name), zap.String("pattern", name), zap.String("field", d.LevelField))
		}
		if d.ModuleField != "" && p.ModuleIdx == -1 {
			logger.Warn("Поле модуля не найдено в шаблоне",
				zap.String("format", d.Name), zap.String("pattern", name), zap.String("field", d.ModuleField))
		}
		if d.BodyField != "" && p.BodyIdx == -1 {
			logger.Warn("Поле тела не найдено в шаблоне",
				zap.String("format", d.Name), zap.String("pattern", name), zap.String("field", d.BodyField))
		}

		d.Patterns = append(d.Patterns, p)
	}
}

func (d *Definition) checkSample(s Sample, add func(string, string, ...any)) {
	found := false
	for _, p := range d.Patterns {
		if found {
			break
		}
		if !p.ModuleFormat && p.TimestampIdx < 0 {
			add("", "timestamp field '%s' not found in pattern -- %s", d.TimestampField, p.Source)
			continue
		}
		caps := p.Regex.Match(s.Line)
		if caps == nil {
			continue
		}
		found = true
		if p.ModuleFormat {
			continue
		}

		ts := caps.Text(s.Line, p.TimestampIdx)
		scanner := ptime.NewScanner(d.TimestampFormats)
		if !caps.Valid(p.TimestampIdx) {
			add("", "invalid sample -- %s", s.Line)
			add("", "timestamp field '%s' did not capture anything", d.TimestampField)
		} else if _, ok := scanner.Scan(ts); !ok {
			add("", "invalid sample -- %s", s.Line)
			add("", "unrecognized timestamp format -- %s", ts)
			for _, f := range scanner.Formats() {
				add("", "  format: %s; matched: %s", f, ts[:ptime.Consumed(f, ts)])
			}
		}

		level := d.ConvertLevel(caps.Text(s.Line, p.LevelIdx), caps.Valid(p.LevelIdx))
		if s.Level != LevelUnknown && s.Level != level {
			add("", "invalid sample -- %s", s.Line)
			add("", "parsed level '%s' does not match expected level of '%s'", level, s.Level)
		}
	}

	if found {
		return
	}
	add("", "invalid sample         -- %s", s.Line)
	for _, p := range d.Patterns {
		if n := p.Regex.MatchPartial(s.Line); n > 0 {
			add("", "partial sample matched -- %s", s.Line[:n])
			add("", "  against pattern regex[%s] -- %s", p.Name, p.Source)
		} else {
			add("", "no partial match found")
		}
	}
}

func (d *Definition) buildLineFormat(logger *zap.Logger, add func(string, string, ...any)) {
	for i := range d.LineFormat {
		el := &d.LineFormat[i]
		ctx := fmt.Sprintf("line-format[%d]", i)
		if el.Constant {
			d.lineInitCount += strings.Count(el.Text, "\n")
			continue
		}

		el.Field = strings.TrimPrefix(el.Field, "/")
		if el.TimestampFormat != "" {
			if el.Field != "" && el.Field != fieldTimestamp {
				logger.Warn("Поле игнорируется, так как задан timestamp-format",
					zap.String("format", d.Name), zap.Int("index", i), zap.String("field", el.Field))
			}
			el.Field = fieldTimestamp
			f, err := newStrftime(el.TimestampFormat)
			if err != nil {
				add(ctx, "invalid timestamp-format -- %v", err)
			}
			el.ts = f
		}

		switch {
		case el.Field == fieldTimestamp:
			if el.ts == nil {
				el.ts = defaultTimestampFormat
			}
			if vd, ok := d.Values[d.TimestampField]; ok {
				vd.Hidden = true
			}
		case el.Field == fieldLevel:
			if vd, ok := d.Values[d.LevelField]; ok {
				vd.Hidden = true
			}
		case !d.HasValue(el.Field):
			add(ctx, "line format variable is not defined -- %s", el.Field)
		}
	}
}

type nopHandler struct{}

func (nopHandler) Null(*jsonstream.Context)            {}
func (nopHandler) Bool(*jsonstream.Context, bool)      {}
func (nopHandler) Int(*jsonstream.Context, int64)      {}
func (nopHandler) Double(*jsonstream.Context, float64) {}
func (nopHandler) String(*jsonstream.Context, string)  {}
func (nopHandler) StartMap(*jsonstream.Context)        {}
func (nopHandler) EndMap(*jsonstream.Context)          {}
func (nopHandler) StartArray(*jsonstream.Context)      {}
func (nopHandler) EndArray(*jsonstream.Context)        {}
