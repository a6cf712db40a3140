package domain

import "time"

// Session 当前会话记录：把界面上下文绑定到一个账户，过期时间从登录时刻起算
type Session struct {
	AccountID        string    `json:"accountId"`
	SessionStartTime time.Time `json:"sessionStartTime"`
}

// Expired 会话是否已超过 timeout
func (s Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.SessionStartTime) > timeout
}

// Settings 界面设置（不属于账本核心）
type Settings struct {
	Theme         string `json:"theme"`
	Language      string `json:"language"`
	Sound         bool   `json:"sound"`
	Notifications bool   `json:"notifications"`
	DefaultPair   string `json:"defaultPair"`
	DefaultView   string `json:"defaultView"`
	Timezone      string `json:"timezone"`
}

// DefaultSettings 默认设置
func DefaultSettings() Settings {
	return Settings{
		Theme:         "dark",
		Language:      "en",
		Sound:         true,
		Notifications: true,
		DefaultPair:   "BTCEUR",
		DefaultView:   "chart",
		Timezone:      "UTC",
	}
}
