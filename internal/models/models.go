package models

import (
	"time"

	"github.com/google/uuid"

	"LogFormatPump/internal/format"
)

// Record описывает логическую запись журнала: первая строка вместе с продолжениями
// (или одна JSON-строка) и извлечённые из неё значения.
type Record struct {
	File       string
	Def        *format.Definition
	LineNumber int   // номер первой строки записи в файле
	Offset     int64 // смещение первой строки в байтах
	Time       time.Time
	Level      format.Level
	Module     string
	Opid       string
	Body       string
	Raw        string // исходный текст записи
	Message    string // отображаемый текст: разложенный JSON, после rewriter
	Values     []format.LogicalValue
	InsertedAt time.Time
}

// FormatName возвращает имя формата записи.
func (r *Record) FormatName() string {
	if r.Def == nil {
		return ""
	}
	return r.Def.Name
}

// Row: строка для вставки в ClickHouse.
// Values выровнены по Columns описания формата.
type Row struct {
	BatchID    uuid.UUID
	EventTime  time.Time
	EventDate  time.Time
	Level      string
	Format     string
	File       string
	LineNumber uint64
	Module     string
	Opid       string
	Body       string
	Message    string
	Values     []any
}
