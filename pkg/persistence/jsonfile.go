package persistence

import (
	"context"
	"os"
	"net/url"
	"path/filepath"
)

// JSONFileBackend 基于 JSON 文件的存储：一个 key 一个文件
type JSONFileBackend struct {
	baseDir string
}

// NewJSONFileBackend 创建 JSON 文件存储
func NewJSONFileBackend(baseDir string) (*JSONFileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &JSONFileBackend{baseDir: baseDir}, nil
}

// filePath key 形如 "account:<id>"，id 是标准 base64（含 + 和 /）。
// QueryEscape 是单射，不同 key 不会落到同一个文件。
func (s *JSONFileBackend) filePath(key string) string {
	return filepath.Join(s.baseDir, url.QueryEscape(key)+".json")
}

func (s *JSONFileBackend) GetBytes(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExists
		}
		return nil, err
	}
	if len(b) == 0 {
		return nil, ErrNotExists
	}
	return b, nil
}

// SetBytes 先写临时文件再 rename，保证单次写入原子
func (s *JSONFileBackend) SetBytes(_ context.Context, key string, val []byte) error {
	path := s.filePath(key)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(val); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *JSONFileBackend) DeleteKey(_ context.Context, key string) error {
	if err := os.Remove(s.filePath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *JSONFileBackend) Close() error { return nil }
