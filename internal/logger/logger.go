package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"LogFormatPump/internal/config"
)

// InitZap инициализирует zap-логгер:
// - в консоль выводятся сообщения от cfg.Level (по умолчанию Debug+);
// - в файл пишутся только ошибки (Error+), с ротацией через lumberjack;
// - при EnableSentry отправляет Error+ в Sentry.
func InitZap(cfg *config.LoggingConfig) (*zap.Logger, error) {
	consoleLevel := zapcore.DebugLevel
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		consoleLevel = lvl
	}
	return build(cfg, zapcore.AddSync(os.Stdout), consoleLevel)
}

func build(cfg *config.LoggingConfig, consoleWS zapcore.WriteSyncer, consoleLevel zapcore.Level) (*zap.Logger, error) {
	if cfg.LogFile != "" {
		dir := filepath.Dir(cfg.LogFile)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
			}
		}
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	fileLevel := zapcore.ErrorLevel
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), consoleWS, consoleLevel),
	}
	if cfg.LogFile != "" {
		fileOutput := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), fileOutput, fileLevel))
	}

	logger := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(fileLevel),
	)

	if cfg.EnableSentry && cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			fmt.Fprintf(os.Stderr, "Sentry init failed: %v\n", err)
		} else {
			logger = logger.WithOptions(zap.Hooks(func(entry zapcore.Entry) error {
				if entry.Level >= zapcore.ErrorLevel {
					sentry.CaptureMessage(fmt.Sprintf("%s:%d: %s", entry.Caller.File, entry.Caller.Line, entry.Message))
					sentry.Flush(2 * time.Second)
				}
				return nil
			}))
		}
	}

	return logger, nil
}
