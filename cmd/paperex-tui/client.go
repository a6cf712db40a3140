package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paperex/internal/domain"
	"github.com/betbot/paperex/internal/ledger"
)

type apiError struct {
	Error string `json:"error"`
}

// apiClient paperex HTTP API 客户端
type apiClient struct {
	base string
	http *resty.Client
}

func newAPIClient(base string) *apiClient {
	base = strings.TrimSuffix(base, "/")
	return &apiClient{
		base: base,
		http: resty.New().
			SetBaseURL(base).
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var apiErr apiError
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), apiErr.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status())
	}
	return nil
}

func (c *apiClient) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		AccountID string `json:"accountId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/session", map[string]string{"email": email, "password": password}, &out)
	return out.AccountID, err
}

func (c *apiClient) Account(ctx context.Context) (*domain.Account, error) {
	var acc domain.Account
	if err := c.do(ctx, http.MethodGet, "/api/account", nil, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *apiClient) Portfolio(ctx context.Context) (*ledger.Portfolio, error) {
	var p ledger.Portfolio
	if err := c.do(ctx, http.MethodGet, "/api/account/portfolio", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *apiClient) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, "/api/orders/"+orderID, nil, nil)
}

func (c *apiClient) wsURL() string {
	switch {
	case strings.HasPrefix(c.base, "https://"):
		return "wss://" + strings.TrimPrefix(c.base, "https://") + "/ws"
	case strings.HasPrefix(c.base, "http://"):
		return "ws://" + strings.TrimPrefix(c.base, "http://") + "/ws"
	}
	return "ws://" + c.base + "/ws"
}

// watchEvents 订阅 /ws，每条 balanceUpdated 向 out 发一个信号；断线后重连直到 ctx 结束
func (c *apiClient) watchEvents(ctx context.Context, out chan<- struct{}) {
	for ctx.Err() == nil {
		conn, _, err := gorillaWS.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
		if err != nil {
			logrus.Warnf("连接 %s 失败: %v", c.wsURL(), err)
			select {
			case <-time.After(2 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
		for {
			var ev struct {
				Event string `json:"event"`
			}
			if err := conn.ReadJSON(&ev); err != nil {
				logrus.Debugf("ws 读取结束: %v", err)
				break
			}
			if ev.Event != ledger.EventBalanceUpdated {
				continue
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
		_ = conn.Close()
	}
}
