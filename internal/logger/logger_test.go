package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"LogFormatPump/internal/config"
)

func TestFileCoreTakesErrorsOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pump.log")
	var console bytes.Buffer

	lg, err := build(&config.LoggingConfig{LogFile: path}, zapcore.AddSync(&console), zapcore.InfoLevel)
	require.NoError(t, err)

	lg.Debug("скрытое сообщение")
	lg.Info("обычное сообщение")
	lg.Error("ошибка записи")
	require.NoError(t, lg.Sync())

	assert.NotContains(t, console.String(), "скрытое сообщение")
	assert.Contains(t, console.String(), "обычное сообщение")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ошибка записи")
	assert.NotContains(t, string(data), "обычное сообщение")
}

func TestInitZapRejectsUnknownLevel(t *testing.T) {
	_, err := InitZap(&config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}
