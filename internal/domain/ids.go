package domain

import (
	"strings"

	"github.com/google/uuid"
)

// 存储键
const (
	KeySettings       = "settings"
	KeyCurrentSession = "current_session"
	accountKeyPrefix  = "account:"
)

// AccountKey 账户记录的存储键
func AccountKey(accountID string) string {
	return accountKeyPrefix + accountID
}

// NewOrderID 生成订单 ID（UUIDv7，按时间有序）
func NewOrderID() string { return newID("ORD") }

// NewTradeID 生成成交 ID
func NewTradeID() string { return newID("TRD") }

func newID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}
