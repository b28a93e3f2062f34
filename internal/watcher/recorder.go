package watcher

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"LogFormatPump/internal/format"
	"LogFormatPump/internal/models"
)

// Recorder собирает логические записи из строк одного файла.
// Формат определяется по первым строкам, после чего строки сканируются
// закреплённым за файлом format.File. Запись отдаётся, когда начинается
// следующая или при вызове Flush.
type Recorder struct {
	ctx    context.Context
	path   string
	reg    *format.Registry
	logger *zap.Logger
	emit   func(models.Record)

	// Exec: исполнитель rewriter; nil отключает перезапись значений.
	Exec format.Executor
	// DetectLines: сколько строк набрать до определения формата.
	DetectLines int

	file   *format.File
	sample []format.LineInfo
	skip   bool

	physical int
	cur      []string
	curLine  int
	curPhys  int
	curOff   int64
	hasCur   bool
}

func NewRecorder(ctx context.Context, path string, reg *format.Registry, logger *zap.Logger, emit func(models.Record)) *Recorder {
	return &Recorder{
		ctx:         ctx,
		path:        path,
		reg:         reg,
		logger:      logger.With(zap.String("file", path)),
		emit:        emit,
		DetectLines: 15,
	}
}

// Format возвращает определённый формат файла или nil.
func (r *Recorder) Format() *format.Definition {
	if r.file == nil {
		return nil
	}
	return r.file.Definition()
}

// Skipped сообщает, что формат файла определить не удалось.
func (r *Recorder) Skipped() bool { return r.skip }

// Push принимает очередную строку файла.
func (r *Recorder) Push(li format.LineInfo) {
	r.physical++
	if r.skip {
		return
	}
	if r.file == nil {
		r.sample = append(r.sample, li)
		if len(r.sample) >= r.DetectLines {
			r.detect()
		}
		return
	}
	r.feed(li, r.physical)
}

// Flush отдаёт незавершённую запись. Если формат ещё не определён,
// определение выполняется по уже полученным строкам.
func (r *Recorder) Flush() {
	if r.file == nil && !r.skip {
		r.detect()
	}
	r.emitCurrent()
}

func (r *Recorder) detect() {
	if len(r.sample) == 0 {
		return
	}
	var sb strings.Builder
	for _, li := range r.sample {
		sb.WriteString(li.Data)
		sb.WriteByte('\n')
	}
	sample := r.sample
	r.sample = nil

	def := r.reg.DetectFormat(r.path, []byte(sb.String()))
	if def == nil {
		r.logger.Warn("Формат файла не определён, файл пропускается", zap.Int("lines", len(sample)))
		r.skip = true
		return
	}
	r.logger.Info("Формат файла определён", zap.String("format", def.Name))
	r.file = r.reg.Open(r.path, def)

	first := r.physical - len(sample) + 1
	for i, li := range sample {
		r.feed(li, first+i)
	}
}

func (r *Recorder) feed(li format.LineInfo, phys int) {
	before := len(r.file.Lines())
	res, added := r.file.Scan(li)
	switch res {
	case format.ScanMatch:
		if len(added) == 0 {
			return
		}
		r.emitCurrent()
		r.cur = append(r.cur[:0], li.Data)
		r.curLine = before
		r.curPhys = phys
		r.curOff = li.Offset
		r.hasCur = true
	case format.ScanNoMatch:
		if _, ok := r.file.Continue(li); ok && r.hasCur {
			r.cur = append(r.cur, li.Data)
			return
		}
		r.logger.Debug("Строка продолжения без записи отброшена", zap.Int64("offset", li.Offset))
	case format.ScanIncomplete:
		r.logger.Debug("Незавершённая строка пропущена", zap.Int64("offset", li.Offset))
	}
}

func (r *Recorder) emitCurrent() {
	if !r.hasCur {
		return
	}
	r.hasCur = false

	first := r.file.Lines()[r.curLine]
	if first.Level&format.LevelIgnore != 0 {
		return
	}
	def := r.file.Definition()
	raw := strings.Join(r.cur, "\n")

	msg := raw
	if def.Type == format.TypeJSON {
		msg = r.file.Render(first, raw, true)
	}
	// разметка берётся из полной отрисовки выше
	attrs, values := r.file.Annotate(r.curLine, raw)
	if r.Exec != nil {
		msg, attrs = def.Rewrite(r.ctx, r.Exec, msg, values, attrs)
	}

	r.emit(models.Record{
		File:       r.path,
		Def:        def,
		LineNumber: r.curPhys,
		Offset:     r.curOff,
		Time:       first.Time,
		Level:      first.Level,
		Module:     attrText(msg, attrs, format.AttrModule),
		Opid:       attrText(msg, attrs, format.AttrOpid),
		Body:       attrText(msg, attrs, format.AttrBody),
		Raw:        raw,
		Message:    msg,
		Values:     values,
		InsertedAt: time.Now(),
	})
}

// attrText возвращает текст первого атрибута типа typ; открытый диапазон
// тянется до конца строки.
func attrText(msg string, attrs []format.Attr, typ format.AttrType) string {
	for _, a := range attrs {
		if a.Type != typ || !a.Range.Valid() {
			continue
		}
		start, end := a.Range.Start, a.Range.End
		if start > len(msg) {
			return ""
		}
		if end < 0 {
			end = len(msg)
			if nl := strings.IndexByte(msg[start:], '\n'); nl >= 0 {
				end = start + nl
			}
		}
		return msg[start:min(end, len(msg))]
	}
	return ""
}
