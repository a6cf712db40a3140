package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/pkg/persistence"
)

var log = logrus.WithField("component", "session")

// Credential 登录凭证，密码可为空
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Options 会话配置
type Options struct {
	Timeout          time.Duration
	InitialBalances  map[string]decimal.Decimal
	DefaultWatchlist []string
	Now              func() time.Time
}

// Manager 把登录凭证映射到账户，并维护有时限的当前会话
//
// 过期在每次访问时检查，没有后台清理。
type Manager struct {
	store persistence.Store
	opts  Options
}

// NewManager 创建会话管理器
func NewManager(store persistence.Store, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{store: store, opts: opts}
}

// CreateSession 登录：账户不存在时按初始余额创建，然后标记为当前会话
func (m *Manager) CreateSession(ctx context.Context, cred Credential) (string, error) {
	email := strings.TrimSpace(cred.Email)
	if email == "" {
		return "", domain.ErrInvalidCredential
	}
	now := m.opts.Now()
	id := domain.AccountIDFromEmail(email)

	acc, err := m.loadAccount(ctx, id)
	switch {
	case err == nil:
		if acc.PasswordHash != "" && !VerifyPassword(acc.PasswordHash, cred.Password) {
			log.Warnf("登录失败：密码不匹配 account=%s", id)
			return "", domain.ErrInvalidCredential
		}
		acc.LastLoginAt = now
	case errors.Is(err, domain.ErrNotFound):
		acc = domain.NewAccount(email, m.opts.InitialBalances, m.opts.DefaultWatchlist, now)
		if cred.Password != "" {
			hash, err := HashPassword(cred.Password)
			if err != nil {
				return "", err
			}
			acc.PasswordHash = hash
		}
		log.Infof("创建新账户 account=%s", id)
	default:
		return "", err
	}

	if err := m.store.Set(ctx, domain.AccountKey(id), acc); err != nil {
		return "", domain.NewStorageError("set", domain.AccountKey(id), err)
	}
	sess := domain.Session{AccountID: id, SessionStartTime: now}
	if err := m.store.Set(ctx, domain.KeyCurrentSession, sess); err != nil {
		return "", domain.NewStorageError("set", domain.KeyCurrentSession, err)
	}
	log.Infof("会话开始 account=%s", id)
	return id, nil
}

// ResolveCurrentAccount 返回当前会话绑定的账户；没有会话或已过期时返回 (nil, nil)
func (m *Manager) ResolveCurrentAccount(ctx context.Context) (*domain.Account, error) {
	sess, ok, err := m.currentSession(ctx)
	if err != nil || !ok {
		return nil, err
	}
	acc, err := m.loadAccount(ctx, sess.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warnf("会话绑定的账户不存在，登出 account=%s", sess.AccountID)
		return nil, m.EndSession(ctx)
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// CurrentAccountID 当前会话的账户 ID，无会话时返回 ErrUnauthenticated
func (m *Manager) CurrentAccountID(ctx context.Context) (string, error) {
	sess, ok, err := m.currentSession(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrUnauthenticated
	}
	return sess.AccountID, nil
}

// EndSession 登出（幂等）
func (m *Manager) EndSession(ctx context.Context) error {
	if err := m.store.Delete(ctx, domain.KeyCurrentSession); err != nil {
		return domain.NewStorageError("delete", domain.KeyCurrentSession, err)
	}
	return nil
}

// currentSession 读取并校验会话，过期时顺带清除
func (m *Manager) currentSession(ctx context.Context) (domain.Session, bool, error) {
	var sess domain.Session
	err := m.store.Get(ctx, domain.KeyCurrentSession, &sess)
	if errors.Is(err, persistence.ErrNotExists) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, domain.NewStorageError("get", domain.KeyCurrentSession, err)
	}
	if sess.AccountID == "" {
		return domain.Session{}, false, nil
	}
	if sess.Expired(m.opts.Now(), m.opts.Timeout) {
		log.Infof("会话过期 account=%s started=%s", sess.AccountID, sess.SessionStartTime.Format(time.RFC3339))
		return domain.Session{}, false, m.EndSession(ctx)
	}
	return sess, true, nil
}

func (m *Manager) loadAccount(ctx context.Context, id string) (*domain.Account, error) {
	var acc domain.Account
	err := m.store.Get(ctx, domain.AccountKey(id), &acc)
	if errors.Is(err, persistence.ErrNotExists) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("get", domain.AccountKey(id), err)
	}
	acc.Normalize()
	return &acc, nil
}
