package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"LogFormatPump/internal/config"
	"LogFormatPump/internal/format"
	"LogFormatPump/internal/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd собирает дерево команд lfpump.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "lfpump",
		Short: "LogFormatPump: распознавание форматов журналов и выгрузка записей в ClickHouse",
		Long: `lfpump определяет формат каждого файла журнала по описаниям форматов,
разбирает записи на значения и отправляет их в ClickHouse.

Описания форматов читаются из встроенного набора и каталогов Formats.Paths.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "путь к config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "уровень журнала для check и scan")

	root.AddCommand(newRunCmd(opts), newCheckCmd(opts), newScanCmd(opts))
	return root
}

// Execute запускает корневую команду.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliLogger: журнал для вспомогательных команд, пишет в консоль.
func (o *rootOptions) cliLogger() (*zap.Logger, error) {
	return logger.InitZap(&config.LoggingConfig{Level: o.logLevel})
}

// loadDefinitions возвращает встроенные форматы и форматы из paths.
// Пользовательские форматы идут после встроенных.
func loadDefinitions(paths []string) ([]*format.Definition, error) {
	defs, err := format.Builtins()
	if err != nil {
		return nil, fmt.Errorf("load builtin formats: %w", err)
	}
	if len(paths) == 0 {
		return defs, nil
	}
	user, err := format.LoadPaths(paths)
	if err != nil {
		return nil, fmt.Errorf("load formats: %w", err)
	}
	return append(defs, user...), nil
}
