package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ClickHouseConfig содержит настройки подключения и маппинг таблиц по форматам.
// TableMap может быть пустым
type ClickHouseConfig struct {
	Address      string            `mapstructure:"Address"`
	Username     string            `mapstructure:"Username"`
	Password     string            `mapstructure:"Password"`
	Database     string            `mapstructure:"Database"`
	DefaultTable string            `mapstructure:"DefaultTable"`
	Protocol     string            `mapstructure:"Protocol"`
	TableMap     map[string]string `mapstructure:"TableMap"`
	CreateTables bool              `mapstructure:"CreateTables"` // создавать таблицы форматов при старте
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Host     string `mapstructure:"Host"`
	Port     int    `mapstructure:"Port"`
	DB       int    `mapstructure:"DB"`
	Password string `mapstructure:"Password"`
}

// LoggingConfig содержит настройки логирования и интеграции с Sentry
type LoggingConfig struct {
	LogFile      string `mapstructure:"LogFile"`      // путь к файлу логов
	SentryDSN    string `mapstructure:"SentryDSN"`    // DSN для Sentry
	EnableSentry bool   `mapstructure:"EnableSentry"` // включить отправку ошибок в Sentry
	Level        string `mapstructure:"Level"`        // минимальный уровень консольного вывода

	// ротация LogFile: MaxSize в МБ, MaxAge в днях
	MaxSize    int  `mapstructure:"MaxSize"`
	MaxBackups int  `mapstructure:"MaxBackups"`
	MaxAge     int  `mapstructure:"MaxAge"`
	Compress   bool `mapstructure:"Compress"`
}

// FormatsConfig: откуда загружать описания форматов.
type FormatsConfig struct {
	Paths           []string `mapstructure:"Paths"`
	DisableRollover bool     `mapstructure:"DisableRollover"`
	DetectLines     int      `mapstructure:"DetectLines"`
}

// APIConfig: HTTP API статуса; пустой Listen отключает его.
type APIConfig struct {
	Listen string `mapstructure:"Listen"`
}

// Config описывает основные настройки сервиса
// LogDirectoryMap и FilePattern обязательны
// BatchSize и BatchInterval должны быть положительными
type Config struct {
	LogDirectoryMap map[string]string `mapstructure:"LogDirectoryMap"`
	FilePattern     string            `mapstructure:"FilePattern"`
	ExcludePatterns []string          `mapstructure:"ExcludePatterns"` // синтаксис .gitignore
	BatchSize       int               `mapstructure:"BatchSize"`
	BatchInterval   int               `mapstructure:"BatchInterval"`  // секунды
	RescanInterval  int               `mapstructure:"RescanInterval"` // секунды
	Workers         int               `mapstructure:"Workers"`

	Formats          FormatsConfig    `mapstructure:"Formats"`
	ClickHouse       ClickHouseConfig `mapstructure:"ClickHouse"`
	ProcessedStorage string           `mapstructure:"ProcessedStorage"` // "file" или "redis"
	ProcessedFile    string           `mapstructure:"ProcessedFile"`
	Redis            RedisConfig      `mapstructure:"Redis"`
	Logging          LoggingConfig    `mapstructure:"Logging"`
	API              APIConfig        `mapstructure:"API"`
}

// EnvPrefix: префикс переменных окружения, переопределяющих ключи конфига.
// LFP_BATCHSIZE, LFP_CLICKHOUSE_ADDRESS и т.д.
const EnvPrefix = "LFP"

func setDefaults(v *viper.Viper) {
	v.SetDefault("BatchSize", 1000)
	v.SetDefault("BatchInterval", 5)
	v.SetDefault("RescanInterval", 60)
	v.SetDefault("Workers", 4)
	v.SetDefault("Formats.DetectLines", 15)
	v.SetDefault("ClickHouse.Protocol", "native")
	v.SetDefault("ProcessedStorage", "file")
	v.SetDefault("ProcessedFile", "processed_files.json")
	v.SetDefault("Redis.Port", 6379)
	v.SetDefault("Logging.Level", "debug")
	v.SetDefault("Logging.MaxSize", 100)
	v.SetDefault("Logging.MaxBackups", 5)
}

// LoadConfig читает и парсит конфиг из YAML-файла по указанному пути.
// Шаги:
// 1. Чтение сырого файла
// 2. Очистка данных: удаление BOM, замена табуляций
// 3. Разбор через viper с учётом переменных окружения
// 4. Валидация обязательных полей
func LoadConfig(path string) (*Config, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := parse(sanitize(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// readFile читает все байты из файла по пути
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// sanitize удаляет BOM и табуляции
func sanitize(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	return bytes.ReplaceAll(data, []byte("\t"), []byte("  "))
}

func parse(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if len(c.LogDirectoryMap) == 0 {
		return errors.New("LogDirectoryMap must not be empty")
	}
	if c.FilePattern == "" {
		return errors.New("FilePattern must not be empty")
	}
	if c.BatchSize <= 0 {
		return errors.New("BatchSize must be positive")
	}
	if c.BatchInterval <= 0 {
		return errors.New("BatchInterval must be positive")
	}
	if c.RescanInterval <= 0 {
		return errors.New("RescanInterval must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("Workers must be positive")
	}
	if c.ClickHouse.Address == "" {
		return errors.New("ClickHouse.Address must not be empty")
	}
	if c.ClickHouse.Database == "" {
		return errors.New("ClickHouse.Database must not be empty")
	}
	switch c.ClickHouse.Protocol {
	case "native", "http":
	default:
		return fmt.Errorf("ClickHouse.Protocol must be native or http, got %q", c.ClickHouse.Protocol)
	}
	switch c.ProcessedStorage {
	case "file":
		if c.ProcessedFile == "" {
			return errors.New("ProcessedFile must not be empty")
		}
	case "redis":
		if c.Redis.Host == "" {
			return errors.New("Redis.Host must not be empty")
		}
	default:
		return fmt.Errorf("ProcessedStorage must be file or redis, got %q", c.ProcessedStorage)
	}
	return nil
}
