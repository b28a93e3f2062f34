package watcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// fileFilter отбирает файлы по маске FilePattern и исключениям в синтаксисе .gitignore.
// Маска без "/" сравнивается с именем файла, иначе с путём от корня каталога.
type fileFilter struct {
	pattern string
	byPath  bool
	exclude *ignore.GitIgnore
}

func newFileFilter(pattern string, excludes []string) (*fileFilter, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid FilePattern %q", pattern)
	}
	f := &fileFilter{pattern: pattern, byPath: strings.Contains(pattern, "/")}
	if len(excludes) > 0 {
		f.exclude = ignore.CompileIgnoreLines(excludes...)
	}
	return f, nil
}

// Match проверяет файл path из каталога root.
func (f *fileFilter) Match(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)

	name := filepath.Base(path)
	if f.byPath {
		name = rel
	}
	if ok, _ := doublestar.Match(f.pattern, name); !ok {
		return false
	}
	return f.exclude == nil || !f.exclude.MatchesPath(rel)
}
