package format

import (
	"errors"
	"fmt"
)

// ErrNoFormats возвращается, если не загружено ни одного формата.
var ErrNoFormats = errors.New("no log formats defined")

// DefinitionError: ошибка в описании формата, найденная при сборке.
type DefinitionError struct {
	Format  string
	Context string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("error:%s:%s", e.Format, e.Message)
	}
	return fmt.Sprintf("error:%s:%s:%s", e.Format, e.Context, e.Message)
}

func defErr(format, context, msg string, args ...any) error {
	return &DefinitionError{Format: format, Context: context, Message: fmt.Sprintf(msg, args...)}
}
