package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/betbot/paperex/pkg/logger"
)

// Store 存储接口：按 key 读写 JSON 可序列化的记录
//
// 每次 Set 都是一次完整的持久化写入（覆盖旧值），同一 key 的并发写入以最后一次为准。
type Store interface {
	// Get 读取 key 并解码到 out，不存在时返回 ErrNotExists
	Get(ctx context.Context, key string, out interface{}) error
	// Set 编码 v 并写入 key
	Set(ctx context.Context, key string, v interface{}) error
	// Delete 删除 key（不存在时也返回 nil）
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend 原始字节 KV，由具体存储引擎实现
type Backend interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, val []byte) error
	DeleteKey(ctx context.Context, key string) error
	Close() error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// NewStore 在 Backend 之上加 JSON 编解码
func NewStore(name string, b Backend) Store {
	return &codecStore{name: name, backend: b}
}

type codecStore struct {
	name    string
	backend Backend
}

func (s *codecStore) Get(ctx context.Context, key string, out interface{}) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}
	logger.Debugf("[persistence:%s] Get: key=%s", s.name, key)
	b, err := s.backend.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *codecStore) Set(ctx context.Context, key string, v interface{}) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}
	logger.Debugf("[persistence:%s] Set: key=%s", s.name, key)
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.backend.SetBytes(ctx, key, b)
}

func (s *codecStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}
	logger.Debugf("[persistence:%s] Delete: key=%s", s.name, key)
	return s.backend.DeleteKey(ctx, key)
}

func (s *codecStore) Close() error {
	return s.backend.Close()
}

func checkKey(ctx context.Context, key string) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("persistence: key is empty")
	}
	return nil
}
