package repository

import (
	"fmt"

	"MemoFM/config"
)

// NewRepository 按 STORE_DRIVER 选择存储后端
func NewRepository(cfg *config.Config) (RecordingRepository, error) {
	switch cfg.StoreDriver {
	case "badger", "":
		return NewBadgerRepository(cfg.BadgerDir)
	case "redis":
		return NewRedisRepository(cfg)
	case "minio":
		return NewMinioRepository(cfg)
	case "mysql":
		return NewMySQLRepository(cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
