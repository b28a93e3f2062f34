package ptime

import (
	"strings"
	"time"
)

// Flags отмечает, какие компоненты даты присутствовали в тексте.
type Flags uint8

const (
	YearSet Flags = 1 << iota
	MonthSet
	DaySet
	ZoneSet
	MachineOriented
)

// Has проверяет наличие всех указанных флагов.
func (f Flags) Has(o Flags) bool { return f&o == o }

// Result: разобранная метка времени.
type Result struct {
	Time    time.Time
	Flags   Flags
	Matched int // сколько байт текста поглотил формат
}

// DefaultFormats используются, когда формат не задал своих.
var DefaultFormats = []string{
	"%Y-%m-%dT%H:%M:%S.%f%z",
	"%Y-%m-%dT%H:%M:%S%z",
	"%Y-%m-%dT%H:%M:%S.%f",
	"%Y-%m-%dT%H:%M:%S",
	"%Y-%m-%d %H:%M:%S.%f%z",
	"%Y-%m-%d %H:%M:%S%z",
	"%Y-%m-%d %H:%M:%S,%L",
	"%Y-%m-%d %H:%M:%S.%f",
	"%Y-%m-%d %H:%M:%S",
	"%Y-%m-%d %H:%M",
	"%Y/%m/%d %H:%M:%S.%f",
	"%Y/%m/%d %H:%M:%S",
	"%d/%b/%Y:%H:%M:%S %z",
	"%d/%b/%Y:%H:%M:%S",
	"%a %b %d %H:%M:%S %Y",
	"%a %b %d %H:%M:%S.%f %Y",
	"%b %d %H:%M:%S.%f",
	"%b %d %H:%M:%S",
	"%Y-%m-%d",
	"%H:%M:%S.%f",
	"%H:%M:%S",
	"%s.%f",
	"%s",
}

// Scanner перебирает форматы и запоминает последний удачный.
type Scanner struct {
	formats []string
	locked  int

	// Base поставляет год, месяц и день, отсутствующие в тексте.
	Base time.Time
}

// NewScanner создаёт сканер; пустой список означает DefaultFormats.
func NewScanner(formats []string) *Scanner {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	return &Scanner{formats: formats, locked: -1, Base: time.Now().UTC()}
}

// Formats возвращает действующий список форматов.
func (s *Scanner) Formats() []string { return s.formats }

// Locked возвращает индекс закреплённого формата или -1.
func (s *Scanner) Locked() int { return s.locked }

// Unlock сбрасывает закрепление формата.
func (s *Scanner) Unlock() { s.locked = -1 }

// Scan разбирает text. Если формат закреплён, пробуется только он.
func (s *Scanner) Scan(text string) (Result, bool) {
	if s.locked >= 0 {
		return Parse(s.formats[s.locked], text, s.Base)
	}
	for i, f := range s.formats {
		if res, ok := Parse(f, text, s.Base); ok {
			s.locked = i
			return res, true
		}
	}
	return Result{}, false
}

var (
	monthNames = []string{"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december"}
	dayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
)

type parts struct {
	year, month, day   int
	hour, min, sec     int
	nsec               int
	yday               int
	pm, hasPM          bool
	zoneOff            int
	epoch              int64
	epochSet, millisEp bool
	flags              Flags
}

// Parse разбирает text по формату в стиле strptime. Текст не обязан
// заканчиваться вместе с форматом.
func Parse(format, text string, base time.Time) (Result, bool) {
	var p parts
	n, ok := p.parse(format, text)
	if !ok {
		return Result{}, false
	}
	return Result{Time: p.build(base), Flags: p.flags, Matched: n}, true
}

func (p *parts) parse(format, text string) (int, bool) {
	pos := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == ' ' || c == '\t' {
			for pos < len(text) && (text[pos] == ' ' || text[pos] == '\t') {
				pos++
			}
			continue
		}
		if c != '%' || i+1 >= len(format) {
			if pos >= len(text) || text[pos] != c {
				return pos, false
			}
			pos++
			continue
		}
		i++
		var ok bool
		pos, ok = p.directive(format[i], text, pos)
		if !ok {
			return pos, false
		}
	}
	return pos, true
}

func (p *parts) directive(d byte, text string, pos int) (int, bool) {
	var v int
	var ok bool
	switch d {
	case '%':
		if pos < len(text) && text[pos] == '%' {
			return pos + 1, true
		}
		return pos, false
	case 'Y':
		if v, pos, ok = digits(text, pos, 4, 4); ok {
			p.year = v
			p.flags |= YearSet
		}
	case 'y':
		if v, pos, ok = digits(text, pos, 2, 2); ok {
			if v < 69 {
				v += 2000
			} else {
				v += 1900
			}
			p.year = v
			p.flags |= YearSet
		}
	case 'm':
		if v, pos, ok = digits(text, pos, 1, 2); ok && v >= 1 && v <= 12 {
			p.month = v
			p.flags |= MonthSet
		} else {
			ok = false
		}
	case 'd', 'e':
		if pos < len(text) && text[pos] == ' ' {
			pos++
		}
		if v, pos, ok = digits(text, pos, 1, 2); ok && v >= 1 && v <= 31 {
			p.day = v
			p.flags |= DaySet
		} else {
			ok = false
		}
	case 'j':
		if v, pos, ok = digits(text, pos, 3, 3); ok && v >= 1 && v <= 366 {
			p.yday = v
			p.flags |= MonthSet | DaySet
		} else {
			ok = false
		}
	case 'H':
		if v, pos, ok = digits(text, pos, 1, 2); ok && v <= 23 {
			p.hour = v
		} else {
			ok = false
		}
	case 'I':
		if v, pos, ok = digits(text, pos, 1, 2); ok && v >= 1 && v <= 12 {
			p.hour = v
		} else {
			ok = false
		}
	case 'M':
		if v, pos, ok = digits(text, pos, 2, 2); ok && v <= 59 {
			p.min = v
		} else {
			ok = false
		}
	case 'S':
		if v, pos, ok = digits(text, pos, 2, 2); ok && v <= 60 {
			p.sec = v
		} else {
			ok = false
		}
	case 'L':
		if v, pos, ok = digits(text, pos, 3, 3); ok {
			p.nsec = v * int(time.Millisecond)
		}
	case 'f':
		start := pos
		if v, pos, ok = digits(text, pos, 1, 9); ok {
			for w := pos - start; w < 9; w++ {
				v *= 10
			}
			p.nsec = v
		}
	case 'z':
		pos, ok = p.zone(text, pos)
	case 'b', 'B', 'h':
		if v, pos, ok = name(text, pos, monthNames); ok {
			p.month = v + 1
			p.flags |= MonthSet
		}
	case 'a', 'A':
		_, pos, ok = name(text, pos, dayNames)
	case 'p':
		if pos+2 <= len(text) {
			switch strings.ToUpper(text[pos : pos+2]) {
			case "AM":
				p.hasPM, p.pm, ok = true, false, true
			case "PM":
				p.hasPM, p.pm, ok = true, true, true
			}
			if ok {
				pos += 2
			}
		}
	case 's', 'i':
		var ep int64
		start := pos
		for pos < len(text) && text[pos] >= '0' && text[pos] <= '9' && pos-start < 16 {
			ep = ep*10 + int64(text[pos]-'0')
			pos++
		}
		ok = pos > start
		if ok {
			p.epoch, p.epochSet, p.millisEp = ep, true, d == 'i'
			p.flags |= YearSet | MonthSet | DaySet | ZoneSet | MachineOriented
		}
	case 'T':
		return p.sub("%H:%M:%S", text, pos)
	case 'F':
		return p.sub("%Y-%m-%d", text, pos)
	case 'D':
		return p.sub("%m/%d/%y", text, pos)
	default:
		return pos, false
	}
	return pos, ok
}

func (p *parts) sub(format, text string, pos int) (int, bool) {
	n, ok := p.parse(format, text[pos:])
	return pos + n, ok
}

func (p *parts) zone(text string, pos int) (int, bool) {
	if pos >= len(text) {
		return pos, false
	}
	if text[pos] == 'Z' {
		p.flags |= ZoneSet
		return pos + 1, true
	}
	sign := 1
	switch text[pos] {
	case '+':
	case '-':
		sign = -1
	default:
		return pos, false
	}
	hh, next, ok := digits(text, pos+1, 2, 2)
	if !ok {
		return pos, false
	}
	if next < len(text) && text[next] == ':' {
		next++
	}
	mm, end, ok := digits(text, next, 2, 2)
	if !ok {
		mm, end = 0, next
	}
	p.zoneOff = sign * (hh*3600 + mm*60)
	p.flags |= ZoneSet
	return end, true
}

func (p *parts) build(base time.Time) time.Time {
	if p.epochSet {
		if p.millisEp {
			return time.UnixMilli(p.epoch).UTC()
		}
		return time.Unix(p.epoch, int64(p.nsec)).UTC()
	}
	year, month, day := base.Date()
	if p.flags&YearSet != 0 {
		year = p.year
	}
	if p.flags&MonthSet != 0 && p.yday == 0 {
		month = time.Month(p.month)
	}
	if p.flags&DaySet != 0 && p.yday == 0 {
		day = p.day
	}
	if p.yday > 0 {
		month, day = time.January, p.yday
	}
	hour := p.hour
	if p.hasPM {
		hour %= 12
		if p.pm {
			hour += 12
		}
	}
	loc := time.UTC
	if p.flags&ZoneSet != 0 && p.zoneOff != 0 {
		loc = time.FixedZone("", p.zoneOff)
	}
	return time.Date(year, month, day, hour, p.min, p.sec, p.nsec, loc).UTC()
}

func digits(text string, pos, minN, maxN int) (int, int, bool) {
	v, start := 0, pos
	for pos < len(text) && pos-start < maxN && text[pos] >= '0' && text[pos] <= '9' {
		v = v*10 + int(text[pos]-'0')
		pos++
	}
	if pos-start < minN {
		return 0, start, false
	}
	return v, pos, true
}

func name(text string, pos int, names []string) (int, int, bool) {
	rest := text[pos:]
	if len(rest) > 9 {
		rest = rest[:9]
	}
	rest = strings.ToLower(rest)
	for i, n := range names {
		if strings.HasPrefix(rest, n) {
			return i, pos + len(n), true
		}
	}
	for i, n := range names {
		if strings.HasPrefix(rest, n[:3]) {
			return i, pos + 3, true
		}
	}
	return 0, pos, false
}

// Consumed возвращает, сколько байт text удалось разобрать по формату
// до первой ошибки. Используется для диагностики примеров.
func Consumed(format, text string) int {
	var p parts
	n, _ := p.parse(format, text)
	return n
}
