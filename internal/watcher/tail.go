package watcher

import (
	"io"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"LogFormatPump/internal/format"
	"LogFormatPump/internal/models"
)

// idleFlush: через сколько после последней строки незавершённая запись
// считается законченной.
const idleFlush = 2 * time.Second

// startTail запускает tail для файла, начиная с сохранённого смещения
func (w *Watcher) startTail(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.files[path]; exists {
		return
	}
	if _, skip := w.skipped[path]; skip {
		return
	}
	offset := w.processed[path]
	loc := tail.SeekInfo{Offset: offset, Whence: io.SeekStart}
	t, err := tail.TailFile(path, tail.Config{Follow: true, ReOpen: true, MustExist: false, Location: &loc, Logger: tail.DiscardingLogger})
	if err != nil {
		w.cfg.Logger.Error("Ошибка открытия tail", zap.String("file", path), zap.Error(err))
		return
	}
	w.files[path] = t
	w.cfg.Logger.Info("Запущен tail для файла", zap.String("file", path), zap.Int64("offset", offset))
	go w.readTail(path, t, offset)
}

// stopTail останавливает tail и сохраняет processed
func (w *Watcher) stopTail(path string) {
	w.mu.Lock()
	t, ok := w.files[path]
	if ok {
		delete(w.files, path)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	halt(t)
	w.saveProcessed()
}

// halt останавливает tail, вычитывая строки, которые он успел отправить.
func halt(t *tail.Tail) {
	go func() {
		for range t.Lines {
		}
	}()
	t.Stop()
}

func (w *Watcher) stopAll() {
	w.mu.Lock()
	files := w.files
	w.files = make(map[string]*tail.Tail)
	w.mu.Unlock()
	for _, t := range files {
		halt(t)
	}
}

// readTail читает строки, собирает записи через Recorder и обновляет offset.
// Сохраняемое смещение указывает на начало ещё не отданной записи.
func (w *Watcher) readTail(path string, t *tail.Tail, offset int64) {
	defer func() {
		if r := recover(); r != nil {
			w.cfg.Logger.Error("Паника в readTail восстановлена", zap.String("file", path), zap.Any("error", r))
		}
	}()

	var resume int64
	rec := NewRecorder(w.ctx, path, w.cfg.Registry, w.cfg.Logger, func(r models.Record) {
		select {
		case w.out <- r:
		case <-w.ctx.Done():
			return
		}
		w.mu.Lock()
		w.processed[path] = resume
		w.mu.Unlock()
	})
	rec.Exec = w.cfg.Exec
	if n := w.settings().Formats.DetectLines; n > 0 {
		rec.DetectLines = n
	}

	timer := time.NewTimer(idleFlush)
	timer.Stop()
	defer timer.Stop()

	// settle запоминает определённый формат; false, если файл не распознан
	// и чтение нужно прекратить.
	known := false
	settle := func() bool {
		if rec.Skipped() {
			w.cfg.Logger.Warn("Файл не распознан, tail остановлен", zap.String("file", path))
			w.mu.Lock()
			w.skipped[path] = struct{}{}
			w.mu.Unlock()
			w.stopTail(path)
			return false
		}
		if d := rec.Format(); d != nil && !known {
			known = true
			w.mu.Lock()
			w.formats[path] = d.Name
			w.mu.Unlock()
		}
		return true
	}
	flush := func() bool {
		resume = offset
		rec.Flush()
		return settle()
	}

	for {
		select {
		case <-w.ctx.Done():
			flush()
			return
		case line, ok := <-t.Lines:
			if !ok {
				flush()
				return
			}
			if line.Err != nil {
				w.cfg.Logger.Warn("Ошибка чтения строки", zap.String("file", path), zap.Error(line.Err))
				continue
			}
			size := int64(len(line.Text)) + 1
			clean := strings.TrimSuffix(line.Text, "\r")
			if strings.Contains(clean, "\x00") {
				w.cfg.Logger.Warn("Обнаружены нулевые байты в строке", zap.String("file", path))
				clean = strings.ReplaceAll(clean, "\x00", "")
			}
			resume = offset
			rec.Push(format.LineInfo{Offset: offset, Data: clean})
			offset += size
			if !settle() {
				return
			}
			timer.Reset(idleFlush)
		case <-timer.C:
			if !flush() {
				return
			}
		}
	}
}
