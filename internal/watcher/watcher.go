package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"LogFormatPump/internal/config"
	"LogFormatPump/internal/format"
	"LogFormatPump/internal/models"
	"LogFormatPump/internal/storage"
)

type Config struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	Store      storage.ProcessedStore
	Registry   *format.Registry
	// Exec: исполнитель rewriter; nil отключает перезапись значений.
	Exec format.Executor
}

type Watcher struct {
	cfg         Config
	store       storage.ProcessedStore
	out         chan<- models.Record
	files       map[string]*tail.Tail
	processed   map[string]int64
	skipped     map[string]struct{}
	formats     map[string]string
	filter      *fileFilter
	mu          sync.RWMutex
	ctx         context.Context
	dirWatcher  *fsnotify.Watcher
	watchedDirs map[string]struct{}
}

func New(cfg Config, out chan<- models.Record) (*Watcher, error) {
	filter, err := newFileFilter(cfg.Config.FilePattern, cfg.Config.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	processed, err := cfg.Store.Load()
	if err != nil {
		cfg.Logger.Error("Не удалось загрузить processed_files", zap.Error(err))
	}
	if processed == nil {
		processed = make(map[string]int64)
	}

	return &Watcher{
		cfg:         cfg,
		store:       cfg.Store,
		out:         out,
		files:       make(map[string]*tail.Tail),
		processed:   processed,
		skipped:     make(map[string]struct{}),
		formats:     make(map[string]string),
		filter:      filter,
		watchedDirs: make(map[string]struct{}),
	}, nil
}

// addWatchers рекурсивно добавляет наблюдателей для директорий
func (w *Watcher) addWatchers(dir string, dw *fsnotify.Watcher) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.cfg.Logger.Debug("Ошибка при обходе директории", zap.String("path", path), zap.Error(err))
			return nil
		}
		if info.IsDir() {
			w.mu.Lock()
			if _, exists := w.watchedDirs[path]; !exists {
				if err := dw.Add(path); err != nil {
					w.cfg.Logger.Error("Ошибка добавления наблюдателя", zap.String("dir", path), zap.Error(err))
				} else {
					w.watchedDirs[path] = struct{}{}
					w.cfg.Logger.Debug("Добавлен наблюдатель для директории", zap.String("dir", path))
				}
			}
			w.mu.Unlock()
		}
		return nil
	})
}

func (w *Watcher) settings() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg.Config
}

func (w *Watcher) currentFilter() *fileFilter {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.filter
}

// snapshot копирует смещения для сохранения без удержания блокировки.
func (w *Watcher) snapshot() map[string]int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]int64, len(w.processed))
	for k, v := range w.processed {
		out[k] = v
	}
	return out
}

// FileState: состояние файла для API статуса.
type FileState struct {
	Path    string `json:"path"`
	Format  string `json:"format,omitempty"`
	Offset  int64  `json:"offset"`
	Tailed  bool   `json:"tailed"`
	Skipped bool   `json:"skipped"`
}

// Files возвращает состояние всех известных файлов, упорядоченное по пути.
func (w *Watcher) Files() []FileState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	seen := make(map[string]struct{}, len(w.processed)+len(w.files))
	var out []FileState
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		_, tailed := w.files[path]
		_, skipped := w.skipped[path]
		out = append(out, FileState{
			Path:    path,
			Format:  w.formats[path],
			Offset:  w.processed[path],
			Tailed:  tailed,
			Skipped: skipped,
		})
	}
	for path := range w.processed {
		add(path)
	}
	for path := range w.files {
		add(path)
	}
	for path := range w.skipped {
		add(path)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (w *Watcher) saveProcessed() {
	if err := w.store.Save(w.snapshot()); err != nil {
		w.cfg.Logger.Error("Не удалось сохранить processed_files", zap.Error(err))
	}
}

// runPeriodicScan периодически сканирует директории
func (w *Watcher) runPeriodicScan() {
	ticker := time.NewTicker(time.Duration(w.settings().RescanInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			w.cfg.Logger.Info("Периодическое сканирование завершено")
			return
		case <-ticker.C:
			w.cfg.Logger.Debug("Запуск периодического сканирования директорий")
			w.ScanInitialFiles()
		}
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx

	dw, err := fsnotify.NewWatcher()
	if err != nil {
		w.cfg.Logger.Error("Ошибка создания watcher для каталогов", zap.Error(err))
		return err
	}
	w.dirWatcher = dw
	defer dw.Close()

	for _, dir := range w.settings().LogDirectoryMap {
		if err := w.addWatchers(dir, dw); err != nil {
			w.cfg.Logger.Debug("Ошибка при добавлении наблюдателей", zap.String("dir", dir), zap.Error(err))
		}
	}

	w.ScanInitialFiles()

	go w.handleDirEvents(dw)
	if w.cfg.ConfigPath != "" {
		go w.watchConfig()
	}
	go w.runPeriodicScan()

	// Периодическое сохранение processed
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.saveProcessed()
			}
		}
	}()

	<-ctx.Done()
	w.cfg.Logger.Info("Watcher остановлен по сигналу shutdown")
	w.stopAll()
	w.saveProcessed()
	return nil
}
