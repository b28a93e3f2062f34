package format

// Annotate размечает строку lineNumber и извлекает значения полей.
// Для JSON-форматов используется результат последней отрисовки этой записи:
// после Render(..., true) диапазоны относятся к полному тексту записи.
func (f *File) Annotate(lineNumber int, raw string) ([]Attr, []LogicalValue) {
	switch f.def.Type {
	case TypeJSON:
		return f.annotateJSON(lineNumber, raw)
	case TypeCSV:
		return f.annotateCSV(raw)
	}
	return f.def.annotateText(f.reg, f.PatternIndexForLine(lineNumber), raw, true)
}

func (f *File) annotateJSON(lineNumber int, raw string) ([]Attr, []LogicalValue) {
	if lineNumber < 0 || lineNumber >= len(f.lines) {
		return nil, nil
	}
	line := f.lines[lineNumber]
	full := f.render.valid && f.render.offset == line.Offset && f.render.full
	c := f.renderJSON(line, raw, full)
	attrs := append([]Attr(nil), c.attrs...)
	values := append([]LogicalValue(nil), c.values...)
	return attrs, values
}

// firstMatching выбирает шаблон, когда для строки нет закрепления.
func (d *Definition) firstMatching(line string) int {
	for i, p := range d.Patterns {
		if !p.ModuleFormat && p.Regex.Matches(line) {
			return i
		}
	}
	return 0
}

func (d *Definition) annotateText(reg *Registry, patIdx int, line string, annotateModule bool) ([]Attr, []LogicalValue) {
	if line == "" || len(d.Patterns) == 0 {
		return nil, nil
	}
	if patIdx < 0 || patIdx >= len(d.Patterns) {
		patIdx = d.firstMatching(line)
	}
	p := d.Patterns[patIdx]

	var attrs []Attr
	caps := p.Regex.Match(line)
	if caps == nil {
		attrs = append(attrs, Attr{Range: LineRange{0, len(line)}, Type: AttrBody})
		if !d.Multiline {
			attrs = append(attrs, Attr{
				Range:   LineRange{p.Regex.MatchPartial(line), -1},
				Type:    AttrInvalid,
				Message: "Log line does not match any pattern",
			})
		}
		return attrs, nil
	}

	capRange := func(i int) LineRange {
		s, e := caps.Range(i)
		return LineRange{s, e}
	}

	moduleValid := false
	if !p.ModuleFormat {
		if caps.Valid(p.TimestampIdx) {
			attrs = append(attrs, Attr{Range: capRange(p.TimestampIdx), Type: AttrTimestamp})
		}
		if caps.Valid(p.ModuleIdx) {
			moduleValid = true
			attrs = append(attrs, Attr{Range: capRange(p.ModuleIdx), Type: AttrModule})
		}
		if caps.Valid(p.OpidIdx) {
			attrs = append(attrs, Attr{Range: capRange(p.OpidIdx), Type: AttrOpid})
		}
	}

	values := make([]LogicalValue, 0, len(p.values))
	for _, iv := range p.values {
		meta := iv.def.meta()
		meta.FromModule = p.ModuleFormat

		var scaling *Scaling
		if caps.Valid(iv.unitCapture) {
			if s, ok := iv.def.UnitScaling[caps.Text(line, iv.unitCapture)]; ok {
				scaling = &s
			}
		}
		if !caps.Valid(iv.capture) {
			values = append(values, nullValue(meta))
			continue
		}
		v := newLogicalValue(meta, line, capRange(iv.capture))
		v.applyScaling(scaling)
		values = append(values, v)
	}

	if annotateModule && moduleValid && caps.Valid(p.BodyIdx) && reg != nil {
		if mod, modPat, ok := reg.modules.Resolve(caps.Text(line, p.ModuleIdx)); ok && mod != nil {
			bs, be := caps.Range(p.BodyIdx)
			full := line[bs:be]
			body := trimLeftSpace(full)
			bs += len(full) - len(body)

			modAttrs, modValues := mod.annotateText(reg, modPat, body, false)
			for i := range modAttrs {
				modAttrs[i].Range.Offset(bs)
			}
			for i := range modValues {
				modValues[i].Origin.Offset(bs)
			}
			return append(attrs, modAttrs...), append(values, modValues...)
		}
	}

	if caps.Valid(p.BodyIdx) {
		attrs = append(attrs, Attr{Range: capRange(p.BodyIdx), Type: AttrBody})
	} else {
		attrs = append(attrs, Attr{Range: LineRange{len(line), len(line)}, Type: AttrBody})
	}
	return attrs, values
}
