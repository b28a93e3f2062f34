package format

import (
	"context"
	"strings"
)

// ExecRequest: запрос на вычисление нового значения поля.
type ExecRequest struct {
	// Source: "формат:поле", для сообщений об ошибках.
	Source string
	Expr   string
	Values []LogicalValue
}

// Executor вычисляет выражения rewriter.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (string, error)
}

func subLineStart(msg string, sub int) (int, bool) {
	pos := 0
	for i := 0; i < sub; i++ {
		nl := strings.IndexByte(msg[pos:], '\n')
		if nl < 0 {
			return 0, false
		}
		pos += nl + 1
	}
	return pos, true
}

// Rewrite заменяет в сообщении значения полей, у которых задан rewriter,
// и сдвигает диапазоны остальных значений и атрибутов. Ошибка вычисления
// подставляется вместо значения. values и attrs изменяются на месте.
func (d *Definition) Rewrite(ctx context.Context, exec Executor, line string, values []LogicalValue, attrs []Attr) (string, []Attr) {
	out := line
	for i := range values {
		v := &values[i]
		if !v.Origin.Valid() {
			continue
		}
		vd, ok := d.Values[v.Meta.Name]
		if !ok || vd.Rewriter == "" {
			continue
		}

		res, err := exec.Execute(ctx, ExecRequest{
			Source: d.Name + ":" + vd.Name,
			Expr:   vd.Rewriter,
			Values: values,
		})
		if err != nil {
			res = err.Error()
		}

		adj := v.OriginInFullMessage(out)
		end := adj.End
		if end < 0 {
			end = len(out)
			if nl := strings.IndexByte(out[adj.Start:], '\n'); nl >= 0 {
				end = adj.Start + nl
			}
		}

		bases := make([]int, len(values))
		for j := range values {
			bases[j], _ = subLineStart(out, values[j].SubOffset)
		}

		delta := len(res) - (end - adj.Start)
		out = out[:adj.Start] + res + out[end:]

		for j := range values {
			if rel := adj.Start - bases[j]; rel >= 0 {
				values[j].Origin.Shift(rel, delta)
			}
		}
		ShiftAttrs(attrs, adj.Start, delta)
	}
	return out, attrs
}
