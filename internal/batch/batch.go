package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"LogFormatPump/internal/models"
)

// Inserter отправляет пачку записей в хранилище.
type Inserter interface {
	InsertBatch(ctx context.Context, records []models.Record) error
}

// Batcher накапливает записи и отправляет их пачками
// batchSize: сколько записей отправлять за раз
// batchInterval: максимальный интервал между отправками
type Batcher struct {
	batchSize     int
	batchInterval time.Duration
	logger        *zap.Logger
	sink          Inserter
}

// NewBatcher создает новый batcher; batchInterval задаётся в секундах.
func NewBatcher(batchSize int, batchInterval int, logger *zap.Logger, sink Inserter) *Batcher {
	return &Batcher{
		batchSize:     batchSize,
		batchInterval: time.Duration(batchInterval) * time.Second,
		logger:        logger,
		sink:          sink,
	}
}

// Run собирает записи из in до отмены ctx или закрытия канала.
// Остаток отправляется перед выходом.
func (b *Batcher) Run(ctx context.Context, in <-chan models.Record) {
	batch := make([]models.Record, 0, b.batchSize)
	timer := time.NewTimer(b.batchInterval)
	defer timer.Stop()

	flush := func(sendCtx context.Context, reason string) {
		if len(batch) == 0 {
			return
		}
		b.logger.Info("Отправляем batch", zap.Int("count", len(batch)), zap.String("reason", reason))
		if err := b.sink.InsertBatch(sendCtx, batch); err != nil {
			b.logger.Error("Ошибка при отправке batch", zap.Error(err))
		} else {
			b.logger.Debug("Batch успешно отправлен", zap.Int("count", len(batch)))
		}
		batch = make([]models.Record, 0, b.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			// ctx уже отменён, отправка остатка идёт в собственном контексте
			flush(context.WithoutCancel(ctx), "graceful shutdown")
			return
		case rec, ok := <-in:
			if !ok {
				flush(ctx, "input closed")
				return
			}
			batch = append(batch, rec)
			if len(batch) >= b.batchSize {
				flush(ctx, "batch size reached")
				timer.Reset(b.batchInterval)
			}
		case <-timer.C:
			flush(ctx, "interval")
			timer.Reset(b.batchInterval)
		}
	}
}
