package format

import (
	"sort"
	"strings"

	"LogFormatPump/internal/pattern"
)

// Level: уровень важности строки. Старшие биты хранят флаги.
type Level uint8

const (
	LevelUnknown Level = iota
	LevelTrace
	LevelDebug5
	LevelDebug4
	LevelDebug3
	LevelDebug2
	LevelDebug
	LevelInfo
	LevelStats
	LevelNotice
	LevelWarning
	LevelError
	LevelCritical
	LevelFatal
	LevelInvalid
)

const (
	LevelMask      Level = 0x0F
	LevelIgnore    Level = 0x10
	LevelContinued Level = 0x80
)

var levelNames = [...]string{
	"unknown", "trace", "debug5", "debug4", "debug3", "debug2", "debug",
	"info", "stats", "notice", "warning", "error", "critical", "fatal", "invalid",
}

// Base отбрасывает флаги.
func (l Level) Base() Level { return l & LevelMask }

func (l Level) String() string {
	b := l.Base()
	if int(b) < len(levelNames) {
		return levelNames[b]
	}
	return "unknown"
}

// LevelFromName ищет уровень по точному имени.
func LevelFromName(name string) (Level, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range levelNames {
		if n == name {
			return Level(i), true
		}
	}
	if name == "warn" {
		return LevelWarning, true
	}
	return LevelUnknown, false
}

var levelPrefixes = []struct {
	prefix string
	level  Level
}{
	{"trace", LevelTrace},
	{"debug5", LevelDebug5},
	{"debug4", LevelDebug4},
	{"debug3", LevelDebug3},
	{"debug2", LevelDebug2},
	{"debug", LevelDebug},
	{"dbg", LevelDebug},
	{"info", LevelInfo},
	{"stats", LevelStats},
	{"notice", LevelNotice},
	{"warn", LevelWarning},
	{"err", LevelError},
	{"crit", LevelCritical},
	{"fatal", LevelFatal},
	{"panic", LevelFatal},
	{"invalid", LevelInvalid},
}

var levelAbbrevs = map[byte]Level{
	'T': LevelTrace,
	'D': LevelDebug,
	'I': LevelInfo,
	'N': LevelNotice,
	'W': LevelWarning,
	'E': LevelError,
	'C': LevelCritical,
	'F': LevelFatal,
}

// ParseLevel: разбор уровня по умолчанию, когда формат не задал своих шаблонов.
func ParseLevel(s string) Level {
	if len(s) == 1 || (len(s) > 1 && s[1] == ' ') {
		if l, ok := levelAbbrevs[s[0]&^0x20]; ok {
			return l
		}
	}
	lower := strings.ToLower(s)
	for _, p := range levelPrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.level
		}
	}
	return LevelUnknown
}

// LevelPattern сопоставляет текст уровня с уровнем.
type LevelPattern struct {
	Level  Level
	Source string
	Regex  *pattern.Regex
}

// NumericLevel сопоставляет числовое значение с уровнем.
type NumericLevel struct {
	Value int64
	Level Level
}

func sortLevels(d *Definition) {
	sort.SliceStable(d.LevelPatterns, func(i, j int) bool {
		return d.LevelPatterns[i].Level < d.LevelPatterns[j].Level
	})
	sort.SliceStable(d.NumericLevels, func(i, j int) bool {
		return d.NumericLevels[i].Value < d.NumericLevels[j].Value
	})
}

// ConvertLevel определяет уровень по захваченному тексту.
// Точное совпадение с шаблоном важнее совпадения по регулярному выражению.
func (d *Definition) ConvertLevel(text string, present bool) Level {
	if !present {
		return LevelInfo
	}
	if len(d.LevelPatterns) == 0 {
		return ParseLevel(text)
	}
	for _, lp := range d.LevelPatterns {
		if strings.EqualFold(lp.Source, text) {
			return lp.Level
		}
	}
	for _, lp := range d.LevelPatterns {
		if lp.Regex != nil && lp.Regex.Matches(text) {
			return lp.Level
		}
	}
	return LevelInfo
}

func (d *Definition) numericLevel(v int64) (Level, bool) {
	i := sort.Search(len(d.NumericLevels), func(i int) bool { return d.NumericLevels[i].Value >= v })
	if i < len(d.NumericLevels) && d.NumericLevels[i].Value == v {
		return d.NumericLevels[i].Level, true
	}
	return LevelUnknown, false
}
