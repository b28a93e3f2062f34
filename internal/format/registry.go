package format

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options: настройки реестра форматов.
type Options struct {
	Logger *zap.Logger
	// DisableRollover отключает перенос дат назад для форматов без года, месяца или дня.
	DisableRollover bool
	// DetectLines: сколько первых строк файла проверяется при определении формата.
	DetectLines int
	// BaseTime поставляет недостающие компоненты даты; по умолчанию текущее время.
	BaseTime time.Time
}

// Registry: собранный набор форматов. После Build доступен только на чтение,
// кроме кэша модулей, который защищён собственной блокировкой.
type Registry struct {
	opts       Options
	logger     *zap.Logger
	formats    map[string]*Definition
	order      []*Definition
	collisions map[string][]string
	modules    *ModuleCache
}

// Build собирает все форматы. При любой ошибке в описаниях не активируется ни один формат;
// отдельные ошибки доступны через multierr.Errors.
func Build(defs []*Definition, opts Options) (*Registry, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DetectLines <= 0 {
		opts.DetectLines = 15
	}
	if len(defs) == 0 {
		return nil, ErrNoFormats
	}
	logger := opts.Logger.Named("registry")

	var errs error
	for _, d := range defs {
		for _, e := range d.build(logger) {
			errs = multierr.Append(errs, e)
		}
	}
	if errs != nil {
		return nil, errs
	}

	order, collisions := resolveOrder(defs, logger)

	var modIndex uint8
	formats := make(map[string]*Definition, len(defs))
	for _, d := range order {
		formats[d.Name] = d
		if d.hasModulePats {
			modIndex++
			d.ModuleIndex = modIndex
		}
	}

	return &Registry{
		opts:       opts,
		logger:     logger,
		formats:    formats,
		order:      order,
		collisions: collisions,
		modules:    newModuleCache(),
	}, nil
}

// Order возвращает форматы в порядке проверки.
func (r *Registry) Order() []*Definition { return r.order }

// Lookup ищет формат по имени.
func (r *Registry) Lookup(name string) *Definition { return r.formats[name] }

// Collisions возвращает для каждого формата имена форматов, чьи примеры он распознаёт.
func (r *Registry) Collisions() map[string][]string { return r.collisions }

// Open создаёт состояние сканирования файла, закреплённого за форматом.
func (r *Registry) Open(name string, def *Definition) *File {
	return r.newFile(name, def, true)
}

// DetectFormat пробует форматы в порядке проверки на первых строках данных
// и возвращает первый подошедший или nil.
func (r *Registry) DetectFormat(filename string, data []byte) *Definition {
	lines := splitLines(string(data), r.opts.DetectLines)

	candidates := make([]*File, 0, len(r.order))
	for _, d := range r.order {
		if d.FilePattern != nil && !d.FilePattern.Matches(filename) {
			continue
		}
		candidates = append(candidates, r.newFile(filename, d, false))
	}

	for _, li := range lines {
		for _, p := range candidates {
			if res, _ := p.Scan(li); res == ScanMatch {
				r.logger.Debug("Формат определён",
					zap.String("file", filename), zap.String("format", p.def.Name))
				return p.def
			}
		}
	}
	return nil
}

func splitLines(data string, limit int) []LineInfo {
	var out []LineInfo
	var off int64
	for len(data) > 0 && len(out) < limit {
		nl := strings.IndexByte(data, '\n')
		if nl < 0 {
			out = append(out, LineInfo{Offset: off, Partial: true, Data: data})
			break
		}
		out = append(out, LineInfo{Offset: off, Data: strings.TrimSuffix(data[:nl], "\r")})
		off += int64(nl + 1)
		data = data[nl+1:]
	}
	return out
}

type moduleEntry struct {
	def     *Definition
	pattern int
}

// ModuleCache запоминает, какой формат распознаёт тело для имени модуля.
// Отрицательный результат тоже запоминается.
type ModuleCache struct {
	mu      sync.RWMutex
	entries map[string]moduleEntry
}

func newModuleCache() *ModuleCache {
	return &ModuleCache{entries: make(map[string]moduleEntry)}
}

func (c *ModuleCache) lookup(name string) (moduleEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e, ok
}

func (c *ModuleCache) store(name string, e moduleEntry) moduleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[name]; ok {
		return prev
	}
	c.entries[name] = e
	return e
}

// Resolve возвращает формат, распознанный для модуля, и номер его шаблона.
func (c *ModuleCache) Resolve(name string) (*Definition, int, bool) {
	e, ok := c.lookup(name)
	if !ok || e.def == nil {
		return nil, -1, ok
	}
	return e.def, e.pattern, true
}

// Len: число запомненных модулей.
func (c *ModuleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// resolveModule возвращает запись кэша для модуля, при необходимости
// перебирая шаблоны тела контейнера всех форматов.
func (r *Registry) resolveModule(name, body string) moduleEntry {
	if e, ok := r.modules.lookup(name); ok {
		return e
	}
	body = trimLeftSpace(body)
	for _, d := range r.order {
		for i, p := range d.Patterns {
			if !p.ModuleFormat || !p.Regex.Matches(body) {
				continue
			}
			r.logger.Debug("Найден формат модуля",
				zap.String("module", name), zap.String("format", d.Name), zap.Int("index", int(d.ModuleIndex)))
			return r.modules.store(name, moduleEntry{def: d, pattern: i})
		}
	}
	return r.modules.store(name, moduleEntry{pattern: -1})
}

func trimLeftSpace(s string) string {
	return strings.TrimLeft(s, " \t\r\n\v\f")
}
