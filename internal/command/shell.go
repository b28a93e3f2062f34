package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"LogFormatPump/internal/format"
)

// ErrSQLUnsupported: выражения rewriter, начинающиеся с ';', вычисляются
// SQL-движком, которого в сервисе нет.
var ErrSQLUnsupported = errors.New("SQL rewriter expressions are not supported")

// Shell выполняет выражения rewriter через sh -c. Значения строки
// передаются процессу переменными окружения с именами полей.
type Shell struct {
	Path    string
	Timeout time.Duration
	logger  *zap.Logger
}

func NewShell(logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shell{Path: "sh", Timeout: 5 * time.Second, logger: logger.Named("command")}
}

// Execute возвращает стандартный вывод команды без концевых пробелов.
func (s *Shell) Execute(ctx context.Context, req format.ExecRequest) (string, error) {
	expr := strings.TrimSpace(req.Expr)
	if strings.HasPrefix(expr, ";") {
		return "", fmt.Errorf("%s: %w", req.Source, ErrSQLUnsupported)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.Path, "-c", expr)
	cmd.Env = append(os.Environ(), environ(req.Values)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		s.logger.Debug("Ошибка выполнения rewriter",
			zap.String("source", req.Source), zap.String("stderr", stderr.String()), zap.Error(err))
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %s: %w", req.Source, msg, err)
		}
		return "", fmt.Errorf("%s: %w", req.Source, err)
	}
	return strings.TrimRight(stdout.String(), " \t\r\n"), nil
}

func environ(values []format.LogicalValue) []string {
	env := make([]string, 0, len(values))
	for _, v := range values {
		name := envName(v.Meta.Name)
		if name == "" {
			continue
		}
		env = append(env, name+"="+v.String())
	}
	return env
}

// envName заменяет символы, недопустимые в имени переменной, на '_'.
func envName(name string) string {
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
