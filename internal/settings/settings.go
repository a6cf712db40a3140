package settings

import (
	"context"
	"errors"
	"strings"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/pkg/persistence"
)

// Service 界面设置读写（单条记录，键 settings）
type Service struct {
	store persistence.Store
}

// New 创建设置服务
func New(store persistence.Store) *Service {
	return &Service{store: store}
}

// Get 读取设置，未保存过时返回默认值
func (s *Service) Get(ctx context.Context) (domain.Settings, error) {
	st := domain.DefaultSettings()
	err := s.store.Get(ctx, domain.KeySettings, &st)
	if errors.Is(err, persistence.ErrNotExists) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, domain.NewStorageError("get", domain.KeySettings, err)
	}
	return st, nil
}

// Put 保存设置；空字段沿用默认值
func (s *Service) Put(ctx context.Context, st domain.Settings) (domain.Settings, error) {
	def := domain.DefaultSettings()
	if strings.TrimSpace(st.Theme) == "" {
		st.Theme = def.Theme
	}
	if strings.TrimSpace(st.Language) == "" {
		st.Language = def.Language
	}
	if strings.TrimSpace(st.DefaultView) == "" {
		st.DefaultView = def.DefaultView
	}
	if strings.TrimSpace(st.Timezone) == "" {
		st.Timezone = def.Timezone
	}
	st.DefaultPair = domain.NormalizePair(st.DefaultPair)
	if st.DefaultPair == "" {
		st.DefaultPair = def.DefaultPair
	}
	if err := s.store.Set(ctx, domain.KeySettings, st); err != nil {
		return domain.Settings{}, domain.NewStorageError("set", domain.KeySettings, err)
	}
	return st, nil
}
