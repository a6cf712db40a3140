package persistence

import (
	"fmt"
	"strings"
)

// Config 存储配置
type Config struct {
	Driver        string // memory | json | badger | sqlite | pebble
	Path          string
	EncryptionKey string // 仅 badger 使用
}

// Open 按驱动打开 Store
func Open(cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "json":
		b, err := NewJSONFileBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewStore(driver, b), nil
	case "badger":
		key, err := ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("badger encryption key: %w", err)
		}
		b, err := OpenBadger(BadgerOptions{Path: cfg.Path, EncryptionKey: key})
		if err != nil {
			return nil, err
		}
		return NewStore(driver, b), nil
	case "sqlite":
		b, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewStore(driver, b), nil
	case "pebble":
		b, err := OpenPebble(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewStore(driver, b), nil
	}
	return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
}
