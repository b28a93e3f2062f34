package format

import (
	"encoding/csv"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type csvRecord struct {
	fields []string
	ranges []LineRange
}

// readCSVRecord разбирает одну запись и восстанавливает исходные
// диапазоны полей вместе с кавычками.
func (d *Definition) readCSVRecord(line string) (csvRecord, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = d.Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	fields, err := r.Read()
	if err != nil {
		return csvRecord{}, err
	}
	rec := csvRecord{fields: fields, ranges: make([]LineRange, len(fields))}
	for i := range fields {
		_, col := r.FieldPos(i)
		rec.ranges[i].Start = col - 1
	}
	for i := range fields {
		end := len(line)
		if i+1 < len(fields) {
			end = rec.ranges[i+1].Start - len(string(d.Delimiter))
		}
		rec.ranges[i].End = max(end, rec.ranges[i].Start)
	}
	return rec, nil
}

func (d *Definition) csvColumn(name string) int {
	for i, vd := range d.declared {
		if vd.Name == name {
			return i
		}
	}
	return -1
}

func (rec csvRecord) field(i int) (string, bool) {
	if i < 0 || i >= len(rec.fields) {
		return "", false
	}
	return rec.fields[i], true
}

func (rec csvRecord) isHeader(d *Definition) bool {
	if len(d.declared) == 0 || len(rec.fields) == 0 {
		return false
	}
	return strings.TrimSpace(rec.fields[0]) == d.declared[0].Name
}

func (f *File) scanCSV(li LineInfo) ScanResult {
	d := f.def
	if li.Partial {
		return ScanIncomplete
	}

	ignore := func() ScanResult {
		if !f.confirmed {
			return ScanNoMatch
		}
		last, _ := f.lastLine()
		f.emit(LogLine{Offset: li.Offset, Time: last.Time, Level: LevelInfo | LevelIgnore})
		return ScanMatch
	}

	rec, err := d.readCSVRecord(li.Data)
	if err != nil {
		f.logger.Debug("Не удалось разобрать запись", zap.Int64("offset", li.Offset), zap.Error(err))
		if !f.confirmed {
			return ScanNoMatch
		}
		last, _ := f.lastLine()
		f.emit(LogLine{Offset: li.Offset, Time: last.Time, Level: LevelInvalid})
		return ScanMatch
	}
	if !f.confirmed && len(rec.fields) != len(d.declared) {
		return ScanNoMatch
	}
	if rec.isHeader(d) {
		return ignore()
	}

	ts, ok := rec.field(d.csvColumn(d.TimestampField))
	if !ok {
		return ignore()
	}
	tm, ok := f.dates.Scan(ts)
	if !ok {
		f.dates.Unlock()
		if tm, ok = f.dates.Scan(ts); !ok {
			return ignore()
		}
	}

	ll := LogLine{Offset: li.Offset, Time: tm.Time, Level: LevelInfo}
	if lv, ok := rec.field(d.csvColumn(d.LevelField)); ok && d.LevelField != "" {
		ll.Level = d.ConvertLevel(lv, true)
		if n, err := strconv.ParseInt(lv, 10, 64); err == nil && len(d.NumericLevels) > 0 {
			if nl, found := d.numericLevel(n); found {
				ll.Level = nl
			}
		}
	}
	if op, ok := rec.field(d.csvColumn(d.OpidField)); ok && d.OpidField != "" {
		ll.Opid = hashOpid(op)
	}

	for i, vd := range d.declared {
		if !vd.StatsEligible() {
			continue
		}
		text, ok := rec.field(i)
		if !ok {
			continue
		}
		v, ok := parseFullFloat(strings.TrimSpace(text))
		if !ok {
			continue
		}
		if vd.UnitField != "" {
			if unit, ok := rec.field(d.csvColumn(vd.UnitField)); ok {
				if s, ok := vd.UnitScaling[unit]; ok {
					v = s.Apply(v)
				}
			}
		}
		f.stats[vd.statsIndex].Add(v)
	}

	f.emit(ll)
	if len(f.locks) == 0 {
		f.locks = append(f.locks, PatternLock{Line: 0, Index: 0})
	}
	return ScanMatch
}

func (f *File) annotateCSV(line string) ([]Attr, []LogicalValue) {
	d := f.def
	rec, err := d.readCSVRecord(line)
	if err != nil {
		return []Attr{
			{Range: LineRange{0, len(line)}, Type: AttrBody},
			{Range: LineRange{0, -1}, Type: AttrInvalid, Message: err.Error()},
		}, nil
	}

	var attrs []Attr
	values := make([]LogicalValue, 0, len(d.declared))
	bodyFound := false
	for i, vd := range d.declared {
		meta := vd.meta()
		text, ok := rec.field(i)
		if !ok {
			values = append(values, nullValue(meta))
			continue
		}
		v := newLogicalValue(meta, text, LineRange{0, len(text)})
		if vd.UnitField != "" {
			if unit, ok := rec.field(d.csvColumn(vd.UnitField)); ok {
				if s, ok := vd.UnitScaling[unit]; ok {
					v.applyScaling(&s)
				}
			}
		}
		v.Origin = rec.ranges[i]
		values = append(values, v)

		switch vd.Name {
		case d.TimestampField:
			attrs = append(attrs, Attr{Range: rec.ranges[i], Type: AttrTimestamp})
		case d.BodyField:
			bodyFound = true
			attrs = append(attrs, Attr{Range: rec.ranges[i], Type: AttrBody})
		case d.OpidField:
			attrs = append(attrs, Attr{Range: rec.ranges[i], Type: AttrOpid})
		}
	}
	if !bodyFound {
		attrs = append(attrs, Attr{Range: LineRange{len(line), len(line)}, Type: AttrBody})
	}
	return attrs, values
}
