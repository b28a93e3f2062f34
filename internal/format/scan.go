package format

import (
	"hash/fnv"
	"sort"
	"time"

	"go.uber.org/zap"

	"LogFormatPump/internal/ptime"
)

// ScanResult: итог сканирования строки.
type ScanResult int

const (
	ScanMatch ScanResult = iota
	ScanNoMatch
	ScanIncomplete
)

func (r ScanResult) String() string {
	switch r {
	case ScanMatch:
		return "match"
	case ScanIncomplete:
		return "incomplete"
	}
	return "no_match"
}

// LineInfo: физическая строка файла.
type LineInfo struct {
	Offset int64
	// Partial: строка ещё не завершена переводом строки.
	Partial bool
	Data    string
}

// LogLine: распознанная строка журнала.
type LogLine struct {
	Offset    int64
	Time      time.Time
	Level     Level
	Module    uint8
	Opid      uint8
	SubOffset int
}

// Continued сообщает, что строка продолжает предыдущую запись.
func (l LogLine) Continued() bool { return l.Level&LevelContinued != 0 }

// PatternLock: начиная со строки Line, основным считается шаблон Index.
type PatternLock struct {
	Line  int
	Index int
}

// File: состояние сканирования одного файла. Не безопасен для
// одновременного использования из нескольких горутин.
type File struct {
	Name string

	def       *Definition
	reg       *Registry
	logger    *zap.Logger
	confirmed bool

	lines  []LogLine
	locks  []PatternLock
	stats  []ValueStats
	class  Class
	dates  *ptime.Scanner
	render renderCache
}

func (r *Registry) newFile(name string, def *Definition, confirmed bool) *File {
	dates := ptime.NewScanner(def.TimestampFormats)
	if !r.opts.BaseTime.IsZero() {
		dates.Base = r.opts.BaseTime
	}
	return &File{
		Name:      name,
		def:       def,
		reg:       r,
		logger:    r.logger.With(zap.String("file", name), zap.String("format", def.Name)),
		confirmed: confirmed,
		class:     def.Class(),
		stats:     make([]ValueStats, len(def.numericDefs)),
		dates:     dates,
	}
}

// Definition возвращает формат файла.
func (f *File) Definition() *Definition { return f.def }

// Lines возвращает все распознанные строки.
func (f *File) Lines() []LogLine { return f.lines }

// Locks возвращает историю закреплений шаблонов.
func (f *File) Locks() []PatternLock { return f.locks }

// Stats возвращает статистику числового поля.
func (f *File) Stats(name string) (ValueStats, bool) {
	vd, ok := f.def.Values[name]
	if !ok || vd.statsIndex < 0 || vd.statsIndex >= len(f.stats) {
		return ValueStats{}, false
	}
	return f.stats[vd.statsIndex], true
}

// PatternIndexForLine возвращает шаблон, действующий для строки n, или -1.
func (f *File) PatternIndexForLine(n int) int {
	i := sort.Search(len(f.locks), func(i int) bool { return f.locks[i].Line > n })
	if i == 0 {
		return -1
	}
	return f.locks[i-1].Index
}

func (f *File) lastPatternIndex() int {
	if len(f.locks) == 0 {
		return -1
	}
	return f.locks[len(f.locks)-1].Index
}

func (f *File) lastLine() (LogLine, bool) {
	if len(f.lines) == 0 {
		return LogLine{}, false
	}
	return f.lines[len(f.lines)-1], true
}

func (f *File) emit(ll LogLine) {
	f.lines = append(f.lines, ll)
}

// Scan распознаёт строку и возвращает добавленные строки журнала.
func (f *File) Scan(li LineInfo) (ScanResult, []LogLine) {
	before := len(f.lines)
	var res ScanResult
	switch {
	case f.class != ClassStructured:
		res = f.scanText(li)
	case f.def.Type == TypeJSON:
		res = f.scanJSON(li)
	default:
		res = f.scanCSV(li)
	}
	if len(f.lines) == before {
		return res, nil
	}
	return res, f.lines[before:]
}

// Continue добавляет строку-продолжение многострочной записи.
func (f *File) Continue(li LineInfo) (LogLine, bool) {
	last, ok := f.lastLine()
	if !ok {
		return LogLine{}, false
	}
	ll := last
	ll.Offset = li.Offset
	ll.Level |= LevelContinued
	ll.SubOffset = last.SubOffset + 1
	f.emit(ll)
	return ll, true
}

// nextFormat перечисляет кандидатов: в незакреплённом режиме все шаблоны
// по порядку, в закреплённом только закреплённый.
func nextFormat(count int, index, locked *int) bool {
	if *locked == -1 {
		*index++
		return *index < count
	}
	if *index == *locked {
		return false
	}
	*index = *locked
	return true
}

func (f *File) scanText(li LineInfo) ScanResult {
	d := f.def
	line := li.Data
	origLock := f.lastPatternIndex()
	cur, patIndex := -1, origLock

	for nextFormat(len(d.Patterns), &cur, &patIndex) {
		p := d.Patterns[cur]
		if p.ModuleFormat {
			continue
		}

		caps := p.Regex.Match(line)
		if caps == nil {
			if len(f.locks) > 0 && patIndex != -1 {
				cur, patIndex = -1, -1
			}
			continue
		}

		tsText := caps.Text(line, p.TimestampIdx)
		tm, ok := f.dates.Scan(tsText)
		if !ok {
			f.dates.Unlock()
			if tm, ok = f.dates.Scan(tsText); !ok {
				continue
			}
		}

		level := d.ConvertLevel(caps.Text(line, p.LevelIdx), caps.Valid(p.LevelIdx))
		if !tm.Flags.Has(ptime.YearSet|ptime.MonthSet|ptime.DaySet) && !f.reg.opts.DisableRollover {
			f.checkForNewYear(tm)
		}

		var opid, modIndex uint8
		if caps.Valid(p.OpidIdx) {
			opid = hashOpid(caps.Text(line, p.OpidIdx))
		}
		if f.class == ClassContainer && caps.Valid(p.ModuleIdx) {
			entry := f.reg.resolveModule(caps.Text(line, p.ModuleIdx), caps.Text(line, p.BodyIdx))
			if entry.def != nil {
				modIndex = entry.def.ModuleIndex
			}
			if modIndex != 0 && p.LevelIdx >= 0 && caps.Valid(p.BodyIdx) {
				body := trimLeftSpace(caps.Text(line, p.BodyIdx))
				inner := entry.def.Patterns[entry.pattern]
				if mc := inner.Regex.Match(body); mc != nil {
					level = entry.def.ConvertLevel(mc.Text(body, inner.LevelIdx), mc.Valid(inner.LevelIdx))
				}
			}
		}

		for _, vi := range p.numeric {
			iv := p.values[vi]
			if !caps.Valid(iv.capture) {
				continue
			}
			var scaling *Scaling
			if caps.Valid(iv.unitCapture) {
				if s, ok := iv.def.UnitScaling[caps.Text(line, iv.unitCapture)]; ok {
					scaling = &s
				}
			}
			v, ok := parseFullFloat(caps.Text(line, iv.capture))
			if !ok {
				continue
			}
			if scaling != nil {
				v = scaling.Apply(v)
			}
			f.stats[iv.def.statsIndex].Add(v)
		}

		f.emit(LogLine{Offset: li.Offset, Time: tm.Time, Level: level, Module: modIndex, Opid: opid})

		if origLock != cur {
			lockLine := 0
			if len(f.locks) > 0 {
				lockLine = len(f.lines) - 1
			}
			f.logger.Debug("Смена закрепления шаблона",
				zap.Int("line", len(f.lines)-1), zap.Int("from", origLock), zap.Int("to", cur))
			f.locks = append(f.locks, PatternLock{Line: lockLine, Index: cur})
		}
		return ScanMatch
	}

	if f.confirmed && !d.Multiline {
		last, _ := f.lastLine()
		f.emit(LogLine{Offset: li.Offset, Time: last.Time, Level: LevelInvalid})
		return ScanMatch
	}
	return ScanNoMatch
}

// checkForNewYear сдвигает назад уже принятые строки, если новая метка
// времени без полной даты оказалась раньше предыдущей.
func (f *File) checkForNewYear(tm ptime.Result) {
	last, ok := f.lastLine()
	if !ok {
		return
	}
	diff := last.Time.Unix() - tm.Time.Unix()
	if diff <= 0 {
		return
	}

	const day, hour = 24 * 60 * 60, 60 * 60
	var years, months, days, hours int
	switch {
	case tm.Flags.Has(ptime.MonthSet) && diff >= day:
		years = 1
	case diff >= day:
		months = 1
	case !tm.Flags.Has(ptime.DaySet) && diff >= hour:
		days = 1
	case !tm.Flags.Has(ptime.DaySet):
		hours = 1
	default:
		return
	}

	f.logger.Debug("Обнаружен переход даты",
		zap.Int("line", len(f.lines)), zap.Int("years", years), zap.Int("months", months),
		zap.Int("days", days), zap.Int("hours", hours))
	for i := range f.lines {
		t := f.lines[i].Time.AddDate(-years, -months, -days)
		f.lines[i].Time = t.Add(-time.Duration(hours) * time.Hour)
	}
}

func hashOpid(s string) uint8 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return uint8(h.Sum32())
}
