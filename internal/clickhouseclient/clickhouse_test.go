package clickhouseclient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"LogFormatPump/internal/format"
	"LogFormatPump/internal/models"
)

func TestTableFor(t *testing.T) {
	c := &Client{TableMap: map[string]string{"syslog_log": "syslog"}, Logger: zap.NewNop()}
	assert.Equal(t, "syslog", c.TableFor("syslog_log"))
	assert.Equal(t, "bunyan_log", c.TableFor("bunyan_log"))

	c.DefaultTable = "logs"
	assert.Equal(t, "logs", c.TableFor("bunyan_log"))
}

func TestCreateTableSQL(t *testing.T) {
	sql := createTableSQL("app`log", []format.Column{
		{Name: "pid", Kind: format.KindInteger},
		{Name: "ratio", Kind: format.KindFloat},
		{Name: "ok", Kind: format.KindBoolean},
		{Name: "host", Kind: format.KindText},
	})
	assert.True(t, strings.HasPrefix(sql, "CREATE TABLE IF NOT EXISTS `app\\`log` ("), sql)
	assert.Contains(t, sql, "`pid` Nullable(Int64),")
	assert.Contains(t, sql, "`ratio` Nullable(Float64),")
	assert.Contains(t, sql, "`ok` Nullable(Bool),")
	assert.Contains(t, sql, "`host` Nullable(String),")
	assert.Contains(t, sql, "ENGINE = MergeTree")
}

func TestInsertSQL(t *testing.T) {
	sql := insertSQL("logs", []format.Column{{Name: "pid"}})
	assert.Equal(t, "INSERT INTO `logs` (`BatchID`, `EventTime`, `EventDate`, `Level`, `Format`, `File`, "+
		"`LineNumber`, `Module`, `Opid`, `Body`, `Message`, `pid`)", sql)
}

func TestGroupByTableAndFormat(t *testing.T) {
	a, b := format.NewDefinition("a_log"), format.NewDefinition("b_log")
	c := &Client{DefaultTable: "logs", TableMap: map[string]string{"b_log": "b"}, Logger: zap.NewNop()}

	grouped, keys := c.group([]models.Record{
		{Def: b, LineNumber: 1},
		{Def: a, LineNumber: 2},
		{LineNumber: 3},
		{Def: a, LineNumber: 4},
	})
	assert.Equal(t, []groupKey{{table: "b", format: "b_log"}, {table: "logs", format: "a_log"}}, keys)
	assert.Len(t, grouped[groupKey{table: "logs", format: "a_log"}], 2)
}
