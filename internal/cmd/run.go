package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"LogFormatPump/internal/api"
	"LogFormatPump/internal/batch"
	"LogFormatPump/internal/clickhouseclient"
	"LogFormatPump/internal/command"
	"LogFormatPump/internal/config"
	"LogFormatPump/internal/format"
	"LogFormatPump/internal/logger"
	"LogFormatPump/internal/models"
	"LogFormatPump/internal/storage"
	"LogFormatPump/internal/watcher"
)

// processedKey: ключ хэша смещений в Redis.
const processedKey = "lfpump:processed"

func newRunCmd(opts *rootOptions) *cobra.Command {
	var noRewrite bool
	c := &cobra.Command{
		Use:   "run",
		Short: "Следить за каталогами журналов и отправлять записи в ClickHouse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(stop)
			go func() {
				select {
				case <-stop:
					cancel()
				case <-ctx.Done():
				}
			}()

			return runService(ctx, opts.configPath, !noRewrite)
		},
	}
	c.Flags().BoolVar(&noRewrite, "no-rewrite", false, "не вызывать rewriter значений")
	return c
}

func openStore(cfg *config.Config) (storage.ProcessedStore, error) {
	if cfg.ProcessedStorage == "redis" {
		return storage.NewRedisStore(&cfg.Redis, processedKey)
	}
	return storage.NewFileStore(cfg.ProcessedFile), nil
}

// ensureTables создаёт таблицы всех форматов, не более cfg.Workers одновременно.
func ensureTables(ctx context.Context, ch *clickhouseclient.Client, defs []*format.Definition, workers int) error {
	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers)
	for _, d := range defs {
		p.Go(func(ctx context.Context) error {
			return ch.EnsureTable(ctx, d)
		})
	}
	return p.Wait()
}

func runService(ctx context.Context, cfgPath string, rewrite bool) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	rootLogger, err := logger.InitZap(&cfg.Logging)
	if err != nil {
		return err
	}
	lg := rootLogger.Named("main")
	defer lg.Sync()
	lg.Info("Сервис LogFormatPump стартует…", zap.String("config", cfgPath))

	defs, err := loadDefinitions(cfg.Formats.Paths)
	if err != nil {
		lg.Error("Ошибка загрузки форматов", zap.Error(err))
		return err
	}
	reg, err := format.Build(defs, format.Options{
		Logger:          rootLogger.Named("format"),
		DisableRollover: cfg.Formats.DisableRollover,
		DetectLines:     cfg.Formats.DetectLines,
	})
	if err != nil {
		lg.Error("Ошибки в описаниях форматов", zap.Error(err))
		return fmt.Errorf("build formats: %w", err)
	}
	lg.Info("Форматы загружены", zap.Int("count", len(reg.Order())))

	store, err := openStore(cfg)
	if err != nil {
		lg.Error("Ошибка подключения к хранилищу смещений", zap.Error(err))
		return err
	}

	chClient, err := clickhouseclient.New(cfg.ClickHouse, rootLogger.Named("clickhouse"))
	if err != nil {
		lg.Error("Ошибка подключения к ClickHouse", zap.Error(err))
		return err
	}
	defer chClient.Close()

	if cfg.ClickHouse.CreateTables {
		if err := ensureTables(ctx, chClient, reg.Order(), cfg.Workers); err != nil {
			lg.Error("Ошибка создания таблиц", zap.Error(err))
			return err
		}
	}

	var exec format.Executor
	if rewrite {
		exec = command.NewShell(rootLogger.Named("rewriter"))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	batchCh := make(chan models.Record, cfg.BatchSize*2)

	w, err := watcher.New(watcher.Config{
		Config:     cfg,
		ConfigPath: cfgPath,
		Logger:     rootLogger.Named("watcher"),
		Store:      store,
		Registry:   reg,
		Exec:       exec,
	}, batchCh)
	if err != nil {
		lg.Error("Ошибка создания watcher", zap.Error(err))
		return err
	}

	batcher := batch.NewBatcher(cfg.BatchSize, cfg.BatchInterval, rootLogger.Named("batcher"), chClient)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := w.Start(ctx); err != nil {
			lg.Error("Watcher завершился с ошибкой", zap.Error(err))
			cancel()
		}
	}()
	go func() { defer wg.Done(); batcher.Run(ctx, batchCh) }()
	if cfg.API.Listen != "" {
		srv := api.New(reg, w, rootLogger.Named("api"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx, cfg.API.Listen); err != nil {
				lg.Error("API статуса завершился с ошибкой", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	lg.Info("Получен сигнал остановки, начинаем завершение работы")
	wg.Wait()
	lg.Info("Сервис завершил работу")
	return nil
}
