package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"LogFormatPump/internal/config"
)

// watchConfig следит за изменениями config.yaml
func (w *Watcher) watchConfig() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.cfg.Logger.Error("Не удалось создать watcher для конфига", zap.Error(err))
		return
	}
	defer watcher.Close()
	if err := watcher.Add(w.cfg.ConfigPath); err != nil {
		w.cfg.Logger.Error("Не удалось подписаться на конфиг", zap.String("path", w.cfg.ConfigPath), zap.Error(err))
		return
	}
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-watcher.Events:
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.cfg.Logger.Info("Конфиг изменился, перечитываем", zap.String("path", w.cfg.ConfigPath))
				w.reloadConfig()
			}
		case err := <-watcher.Errors:
			w.cfg.Logger.Error("Ошибка watcher-а конфига", zap.Error(err))
		}
	}
}

// reloadConfig применяет новый конфиг. Форматы не перечитываются:
// для этого нужен перезапуск.
func (w *Watcher) reloadConfig() {
	newCfg, err := config.LoadConfig(w.cfg.ConfigPath)
	if err != nil {
		w.cfg.Logger.Error("Ошибка загрузки config.yaml", zap.Error(err))
		return
	}
	filter, err := newFileFilter(newCfg.FilePattern, newCfg.ExcludePatterns)
	if err != nil {
		w.cfg.Logger.Error("Неверный FilePattern в конфиге", zap.String("pattern", newCfg.FilePattern), zap.Error(err))
		return
	}
	w.mu.Lock()
	w.cfg.Config = newCfg
	w.filter = filter
	w.mu.Unlock()
}

// rootOf возвращает корневой каталог из LogDirectoryMap, содержащий path.
func (w *Watcher) rootOf(path string) string {
	for _, dir := range w.settings().LogDirectoryMap {
		rel, err := filepath.Rel(dir, path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return dir
		}
	}
	return filepath.Dir(path)
}

func (w *Watcher) matches(path string) bool {
	return w.currentFilter().Match(w.rootOf(path), path)
}

// handleDirEvents обрабатывает fsnotify события в папках
func (w *Watcher) handleDirEvents(dw *fsnotify.Watcher) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-dw.Events:
			if ev.Op&fsnotify.Create != 0 {
				info, err := os.Stat(ev.Name)
				if err == nil && info.IsDir() {
					filepath.Walk(ev.Name, func(p string, i os.FileInfo, e error) error {
						if e != nil {
							return nil
						}
						if i.IsDir() {
							if err := w.addWatchers(p, dw); err != nil {
								w.cfg.Logger.Debug("Ошибка при добавлении наблюдателей", zap.String("dir", p), zap.Error(err))
							}
						} else if w.matches(p) {
							w.cfg.Logger.Info("Найден файл в новой папке, запускаем tail", zap.String("file", p))
							w.startTail(p)
						}
						return nil
					})
					continue
				}
			}
			if !w.matches(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				w.startTail(ev.Name)
			}
			if ev.Op&fsnotify.Write != 0 {
				// проверяем, добавились ли новые данные
				info, err := os.Stat(ev.Name)
				if err == nil {
					w.mu.RLock()
					offset, ok := w.processed[ev.Name]
					w.mu.RUnlock()
					if !ok || info.Size() > offset {
						w.startTail(ev.Name)
					}
				}
			}
			if ev.Op&fsnotify.Remove != 0 {
				w.stopTail(ev.Name)
			}
		case err := <-dw.Errors:
			w.cfg.Logger.Error("Ошибка watcher для каталогов", zap.Error(err))
		}
	}
}

// ScanInitialFiles запускает tail для подходящих файлов в порядке времени
// изменения. При первом запуске берутся все файлы, иначе новые и дописанные.
func (w *Watcher) ScanInitialFiles() {
	w.mu.RLock()
	firstRun := len(w.processed) == 0
	w.mu.RUnlock()

	filter := w.currentFilter()
	for _, dir := range w.settings().LogDirectoryMap {
		type fileWithTime struct {
			Path string
			Mod  time.Time
			Size int64
		}
		var sorted []fileWithTime
		filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			if filter.Match(dir, path) {
				sorted = append(sorted, fileWithTime{Path: path, Mod: info.ModTime(), Size: info.Size()})
			}
			return nil
		})
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Mod.Before(sorted[j].Mod)
		})
		for _, f := range sorted {
			w.mu.RLock()
			offset, already := w.processed[f.Path]
			w.mu.RUnlock()
			if !already || firstRun || f.Size > offset {
				w.cfg.Logger.Info("Запускаем tail для", zap.String("file", f.Path))
				w.startTail(f.Path)
			} else {
				w.cfg.Logger.Debug("Пропускаем ранее обработанный файл", zap.String("file", f.Path))
			}
		}
	}
}
