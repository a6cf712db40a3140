package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/betbot/paperex/internal/ledger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// 本地服务，不校验 Origin
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsEvent struct {
	Event string `json:"event"`
}

// handleWS 推送账户变更信号；多次变更可能合并为一条，客户端收到后重新查询
func (s *Server) handleWS(c *gin.Context) {
	// 先订阅再升级，握手完成后的变更不会漏掉
	sub := s.cfg.Ledger.Subscribe()
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("websocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	// 读循环只用于感知断开与 pong
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	log.Debugf("websocket 已连接: %s", c.Request.RemoteAddr)
	for {
		select {
		case <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(wsEvent{Event: ledger.EventBalanceUpdated}); err != nil {
				log.Debugf("websocket 写入失败: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-done:
			log.Debugf("websocket 已断开: %s", c.Request.RemoteAddr)
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
