package storage

// ProcessedStore загружает и сохраняет смещения обработанных файлов.
type ProcessedStore interface {
	Load() (map[string]int64, error)
	Save(data map[string]int64) error
}
