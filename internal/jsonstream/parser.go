package jsonstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Context описывает положение текущего токена.
type Context struct {
	// Depth: глубина вложенности; поля верхнего объекта имеют глубину 1.
	Depth int
	// Start и End: байтовые границы токена во входных данных.
	// Для строк кавычки не входят в диапазон.
	Start, End int

	frames []frame
}

type frame struct {
	isMap     bool
	expectKey bool
	key       string
	index     int
}

// Path возвращает путь поля, например "a/b/0".
func (c *Context) Path() string {
	var sb strings.Builder
	for i, f := range c.frames {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(f.elem())
	}
	return sb.String()
}

// Key возвращает последний элемент пути.
func (c *Context) Key() string {
	if len(c.frames) == 0 {
		return ""
	}
	return c.frames[len(c.frames)-1].elem()
}

func (f frame) elem() string {
	if f.isMap {
		return f.key
	}
	return strconv.Itoa(f.index)
}

// Handler получает события разбора.
type Handler interface {
	Null(ctx *Context)
	Bool(ctx *Context, v bool)
	Int(ctx *Context, v int64)
	Double(ctx *Context, v float64)
	String(ctx *Context, v string)
	StartMap(ctx *Context)
	EndMap(ctx *Context)
	StartArray(ctx *Context)
	EndArray(ctx *Context)
}

// ParseError: ошибка разбора с позицией.
type ParseError struct {
	Offset     int
	Msg        string
	Incomplete bool // входные данные оборвались посреди значения
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Msg)
}

// Verbose возвращает многострочное описание ошибки с фрагментом входа
// и указателем на место ошибки.
func (e *ParseError) Verbose(input string) string {
	const span = 30
	start := max(e.Offset-span, 0)
	end := min(e.Offset+span, len(input))
	snippet := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, input[start:end])

	var sb strings.Builder
	fmt.Fprintf(&sb, "parse error: %s\n", e.Msg)
	fmt.Fprintf(&sb, "  %s\n", snippet)
	fmt.Fprintf(&sb, "  %s^\n", strings.Repeat(" ", e.Offset-start))
	return sb.String()
}

// Parse разбирает один JSON-документ и передаёт события в h.
func Parse(input string, h Handler) error {
	dec := json.NewDecoder(strings.NewReader(input))
	dec.UseNumber()

	ctx := &Context{}
	done := false
	for {
		prev := int(dec.InputOffset())
		tok, err := dec.Token()
		if err != nil {
			return convertError(input, err, len(ctx.frames) > 0 || !done)
		}
		if done {
			return &ParseError{Offset: tokenStart(input, prev), Msg: "trailing garbage"}
		}
		ctx.Start = tokenStart(input, prev)
		ctx.End = int(dec.InputOffset())

		if n := len(ctx.frames); n > 0 {
			top := &ctx.frames[n-1]
			if top.isMap && top.expectKey {
				if key, ok := tok.(string); ok {
					top.key = key
					top.expectKey = false
					continue
				}
			}
		}

		ctx.Depth = len(ctx.frames)
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{':
				h.StartMap(ctx)
				ctx.frames = append(ctx.frames, frame{isMap: true, expectKey: true})
				continue
			case '[':
				h.StartArray(ctx)
				ctx.frames = append(ctx.frames, frame{})
				continue
			case '}', ']':
				ctx.frames = ctx.frames[:len(ctx.frames)-1]
				ctx.Depth = len(ctx.frames)
				if v == '}' {
					h.EndMap(ctx)
				} else {
					h.EndArray(ctx)
				}
			}
		case nil:
			h.Null(ctx)
		case bool:
			h.Bool(ctx, v)
		case json.Number:
			if i, err := v.Int64(); err == nil {
				h.Int(ctx, i)
			} else if f, err := v.Float64(); err == nil {
				h.Double(ctx, f)
			} else {
				return &ParseError{Offset: ctx.Start, Msg: err.Error()}
			}
		case string:
			ctx.Start++
			ctx.End--
			h.String(ctx, v)
		}

		if n := len(ctx.frames); n > 0 {
			top := &ctx.frames[n-1]
			if top.isMap {
				top.expectKey = true
			} else {
				top.index++
			}
		} else {
			done = true
		}
	}
}

func tokenStart(input string, pos int) int {
	for pos < len(input) {
		switch input[pos] {
		case ' ', '\t', '\r', '\n', ':', ',':
			pos++
		default:
			return pos
		}
	}
	return pos
}

func convertError(input string, err error, inValue bool) error {
	if errors.Is(err, io.EOF) {
		if !inValue {
			return nil
		}
		return &ParseError{Offset: len(input), Msg: "premature EOF", Incomplete: true}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &ParseError{Offset: len(input), Msg: "premature EOF", Incomplete: true}
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		off := int(se.Offset)
		if off > len(input) {
			off = len(input)
		}
		return &ParseError{Offset: off, Msg: se.Error()}
	}
	return &ParseError{Offset: len(input), Msg: err.Error()}
}
