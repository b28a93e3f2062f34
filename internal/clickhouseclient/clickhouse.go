package clickhouseclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"LogFormatPump/internal/config"
	"LogFormatPump/internal/format"
	"LogFormatPump/internal/models"
	"LogFormatPump/internal/transform"
)

// baseColumns: колонки, общие для всех таблиц форматов.
var baseColumns = []struct{ Name, Type string }{
	{"BatchID", "UUID"},
	{"EventTime", "DateTime64(6, 'UTC')"},
	{"EventDate", "Date"},
	{"Level", "LowCardinality(String)"},
	{"Format", "LowCardinality(String)"},
	{"File", "String"},
	{"LineNumber", "UInt64"},
	{"Module", "String"},
	{"Opid", "String"},
	{"Body", "String"},
	{"Message", "String"},
}

type Client struct {
	conn         clickhouse.Conn
	DefaultTable string
	TableMap     map[string]string
	Logger       *zap.Logger
}

// New создает клиента ClickHouse
func New(cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	protocol := clickhouse.Native
	if cfg.Protocol == "http" {
		protocol = clickhouse.HTTP
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Address},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Protocol:    protocol,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	return &Client{
		conn:         conn,
		DefaultTable: cfg.DefaultTable,
		TableMap:     cfg.TableMap,
		Logger:       logger,
	}, nil
}

// TableFor возвращает таблицу для формата: из TableMap, иначе DefaultTable,
// иначе имя формата.
func (c *Client) TableFor(formatName string) string {
	if tbl, ok := c.TableMap[formatName]; ok {
		return tbl
	}
	if c.DefaultTable != "" {
		return c.DefaultTable
	}
	return formatName
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

func columnType(kind format.Kind) string {
	switch kind {
	case format.KindInteger:
		return "Nullable(Int64)"
	case format.KindFloat:
		return "Nullable(Float64)"
	case format.KindBoolean:
		return "Nullable(Bool)"
	}
	return "Nullable(String)"
}

func createTableSQL(table string, cols []format.Column) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(quoteIdent(table))
	sb.WriteString(" (\n")
	for _, c := range baseColumns {
		fmt.Fprintf(&sb, "  %s %s,\n", quoteIdent(c.Name), c.Type)
	}
	for _, c := range cols {
		fmt.Fprintf(&sb, "  %s %s,\n", quoteIdent(c.Name), columnType(c.Kind))
	}
	sb.WriteString("  `InsertedAt` DateTime DEFAULT now()\n")
	sb.WriteString(") ENGINE = MergeTree\nPARTITION BY toYYYYMM(EventDate)\nORDER BY (Format, EventDate, EventTime)")
	return sb.String()
}

func insertSQL(table string, cols []format.Column) string {
	names := make([]string, 0, len(baseColumns)+len(cols))
	for _, c := range baseColumns {
		names = append(names, quoteIdent(c.Name))
	}
	for _, c := range cols {
		names = append(names, quoteIdent(c.Name))
	}
	return "INSERT INTO " + quoteIdent(table) + " (" + strings.Join(names, ", ") + ")"
}

// EnsureTable создаёт таблицу формата, если её ещё нет.
func (c *Client) EnsureTable(ctx context.Context, def *format.Definition) error {
	table := c.TableFor(def.Name)
	if err := c.conn.Exec(ctx, createTableSQL(table, def.Columns())); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	c.Logger.Info("Таблица формата готова", zap.String("format", def.Name), zap.String("table", table))
	return nil
}

type groupKey struct {
	table  string
	format string
}

func (c *Client) group(records []models.Record) (map[groupKey][]models.Record, []groupKey) {
	grouped := make(map[groupKey][]models.Record)
	var keys []groupKey
	for _, rec := range records {
		if rec.Def == nil {
			c.Logger.Warn("Запись без формата пропущена", zap.String("file", rec.File), zap.Int("line", rec.LineNumber))
			continue
		}
		name := rec.FormatName()
		k := groupKey{table: c.TableFor(name), format: name}
		if _, ok := grouped[k]; !ok {
			keys = append(keys, k)
		}
		grouped[k] = append(grouped[k], rec)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].table != keys[j].table {
			return keys[i].table < keys[j].table
		}
		return keys[i].format < keys[j].format
	})
	return grouped, keys
}

// InsertBatch группирует записи по таблице и формату и отправляет отдельный
// batch для каждой группы. Все строки одной отправки помечены общим BatchID.
func (c *Client) InsertBatch(ctx context.Context, records []models.Record) error {
	batchID := uuid.New()
	grouped, keys := c.group(records)

	for _, k := range keys {
		group := grouped[k]
		cols := group[0].Def.Columns()

		// Используем отдельный контекст с таймаутом, чтобы отмена сервиса не прерывала операцию
		dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 60*time.Second)
		batch, err := c.conn.PrepareBatch(dbCtx, insertSQL(k.table, cols))
		if err != nil {
			cancel()
			return fmt.Errorf("prepare batch for %s: %w", k.table, err)
		}

		for _, rec := range group {
			row, err := transform.ToRow(batchID, rec)
			if err != nil {
				c.Logger.Warn("Запись пропущена", zap.Error(err), zap.String("file", rec.File), zap.Int("line", rec.LineNumber))
				continue
			}
			args := []any{
				row.BatchID, row.EventTime, row.EventDate, row.Level, row.Format, row.File,
				row.LineNumber, row.Module, row.Opid, row.Body, row.Message,
			}
			if err := batch.Append(append(args, row.Values...)...); err != nil {
				cancel()
				return fmt.Errorf("append to %s: %w", k.table, err)
			}
		}

		if err := batch.Send(); err != nil {
			cancel()
			return fmt.Errorf("send batch to %s: %w", k.table, err)
		}
		cancel()
		c.Logger.Debug("Batch отправлен", zap.String("table", k.table), zap.String("format", k.format),
			zap.Int("count", len(group)), zap.String("batch", batchID.String()))
	}
	return nil
}

// Close закрывает соединение с ClickHouse
func (c *Client) Close() error {
	return c.conn.Close()
}
