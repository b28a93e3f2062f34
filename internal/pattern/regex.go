package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
)

// CompileError описывает шаблон, который не удалось скомпилировать.
// Offset указывает на позицию в исходном тексте шаблона.
type CompileError struct {
	Pattern string
	Offset  int
	Msg     string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Offset)
}

// Regex: скомпилированный шаблон с поддержкой частичного совпадения.
type Regex struct {
	src     string
	re      *regexp.Regexp
	partial *regexp.Regexp
	names   []string
}

// Compile компилирует шаблон. Точка совпадает с переводом строки.
func Compile(src string) (*Regex, error) {
	tree, err := syntax.Parse("(?s)"+src, syntax.Perl)
	if err != nil {
		return nil, newCompileError(src, err)
	}
	re, err := regexp.Compile("(?s)" + src)
	if err != nil {
		return nil, newCompileError(src, err)
	}

	r := &Regex{src: src, re: re, names: re.SubexpNames()}
	if p, perr := regexp.Compile(`^(?:` + prefixOf(tree).String() + `)`); perr == nil {
		p.Longest()
		r.partial = p
	}
	return r, nil
}

// MustCompile паникует, если шаблон не компилируется.
func MustCompile(src string) *Regex {
	r, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return r
}

func newCompileError(src string, err error) *CompileError {
	ce := &CompileError{Pattern: src, Offset: len(src), Msg: err.Error()}
	var se *syntax.Error
	if errors.As(err, &se) {
		ce.Msg = se.Code.String()
		if se.Expr != "" {
			if idx := strings.Index(src, se.Expr); idx >= 0 {
				ce.Offset = idx
			}
		}
	}
	return ce
}

// String возвращает исходный текст шаблона.
func (r *Regex) String() string { return r.src }

// NameIndex возвращает номер именованной группы или -1.
func (r *Regex) NameIndex(name string) int {
	for i, n := range r.names {
		if i > 0 && n == name {
			return i
		}
	}
	return -1
}

// Named: именованная группа и её номер.
type Named struct {
	Name  string
	Index int
}

// Names перечисляет именованные группы в порядке появления в шаблоне.
func (r *Regex) Names() []Named {
	var out []Named
	for i, n := range r.names {
		if i > 0 && n != "" {
			out = append(out, Named{Name: n, Index: i})
		}
	}
	return out
}

// Match возвращает диапазоны групп или nil.
func (r *Regex) Match(input string) Captures {
	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return nil
	}
	return Captures(loc)
}

// Matches сообщает, есть ли совпадение.
func (r *Regex) Matches(input string) bool {
	return r.re.MatchString(input)
}

// MatchPartial возвращает длину самого длинного префикса input,
// который ещё может быть продолжен до полного совпадения.
func (r *Regex) MatchPartial(input string) int {
	if r.partial == nil {
		return 0
	}
	loc := r.partial.FindStringIndex(input)
	if loc == nil || loc[0] != 0 {
		return 0
	}
	return loc[1]
}

// Captures хранит пары [start,end) для каждой группы; -1 для отсутствующих.
type Captures []int

// Len: число групп вместе с нулевой.
func (c Captures) Len() int { return len(c) / 2 }

// Valid сообщает, участвовала ли группа в совпадении.
func (c Captures) Valid(i int) bool {
	return i >= 0 && 2*i+1 < len(c) && c[2*i] >= 0
}

// Range возвращает диапазон группы или (-1, -1).
func (c Captures) Range(i int) (int, int) {
	if !c.Valid(i) {
		return -1, -1
	}
	return c[2*i], c[2*i+1]
}

// Text вырезает группу из входной строки.
func (c Captures) Text(input string, i int) string {
	if !c.Valid(i) {
		return ""
	}
	return input[c[2*i]:c[2*i+1]]
}
