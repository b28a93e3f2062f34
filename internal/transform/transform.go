package transform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"LogFormatPump/internal/format"
	"LogFormatPump/internal/models"
)

var (
	ErrNoFormat = errors.New("record has no format")
	ErrNoTime   = errors.New("record has no event time")
)

// ToRow превращает запись в строку ClickHouse. Значения полей приводятся
// к типу колонки; отсутствующие и неприводимые дают NULL.
func ToRow(batchID uuid.UUID, rec models.Record) (models.Row, error) {
	if rec.Def == nil {
		return models.Row{}, ErrNoFormat
	}
	if rec.Time.IsZero() {
		return models.Row{}, fmt.Errorf("%s:%d: %w", rec.File, rec.LineNumber, ErrNoTime)
	}

	t := rec.Time.UTC()
	row := models.Row{
		BatchID:    batchID,
		EventTime:  t,
		EventDate:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		Level:      rec.Level.Base().String(),
		Format:     rec.Def.Name,
		File:       rec.File,
		LineNumber: uint64(rec.LineNumber),
		Module:     rec.Module,
		Opid:       rec.Opid,
		Body:       rec.Body,
		Message:    strings.TrimRight(rec.Message, "\n"),
	}

	cols := rec.Def.Columns()
	row.Values = make([]any, len(cols))
	for i, col := range cols {
		row.Values[i] = columnValue(col.Kind, findValue(rec.Values, col.Name))
	}
	return row, nil
}

func findValue(values []format.LogicalValue, name string) *format.LogicalValue {
	for i := range values {
		if values[i].Meta.Name == name && !values[i].Meta.FromModule {
			return &values[i]
		}
	}
	return nil
}

// columnValue возвращает типизированный указатель: *int64, *float64, *bool или *string.
func columnValue(kind format.Kind, v *format.LogicalValue) any {
	switch kind {
	case format.KindInteger:
		var out *int64
		if v == nil || v.Null() {
			return out
		}
		switch v.Kind {
		case format.KindInteger:
			n := v.Int
			out = &n
		case format.KindFloat:
			n := int64(v.Float)
			out = &n
		default:
			if n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64); err == nil {
				out = &n
			}
		}
		return out
	case format.KindFloat:
		var out *float64
		if v == nil || v.Null() {
			return out
		}
		switch v.Kind {
		case format.KindFloat:
			f := v.Float
			out = &f
		case format.KindInteger:
			f := float64(v.Int)
			out = &f
		default:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
				out = &f
			}
		}
		return out
	case format.KindBoolean:
		var out *bool
		if v == nil || v.Null() {
			return out
		}
		if v.Kind == format.KindBoolean {
			b := v.Bool
			out = &b
		} else if b, err := strconv.ParseBool(strings.TrimSpace(v.String())); err == nil {
			out = &b
		}
		return out
	}
	var out *string
	if v == nil || v.Null() {
		return out
	}
	s := v.String()
	return &s
}
