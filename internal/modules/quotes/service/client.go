package service

import (
	"context"
	"net/http"
	"time"

	"risk_engine/internal/models"
	"risk_engine/internal/modules/config"
	healthsvc "risk_engine/internal/modules/health/service"
	"risk_engine/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Client — стример котировок: основной путь websocket, резервный —
// http-поллер на том же канале (см. poller.go).
type Client struct {
	cfg   *config.Config
	state *healthsvc.State

	wsDialer *websocket.Dialer
	http     *http.Client

	watch []string
}

func NewClient(cfg *config.Config, state *healthsvc.State) (*Client, error) {
	watch, err := LoadWatchlist()
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:      cfg,
		state:    state,
		wsDialer: &websocket.Dialer{},
		http:     &http.Client{Timeout: 10 * time.Second},
		watch:    watch,
	}, nil
}

// кадр фида; bid/ask строками — у большинства фидов цены в строках
type tickerFrame struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Bid     string `json:"bid"`
	Ask     string `json:"ask"`
	Ts      int64  `json:"ts"` // ms
}

// Start держит websocket-подключение с переподключением.
// Тики уходят в out; при забитом канале кадр дропается — лучше
// потерять промежуточный тик, чем стопорить read-loop.
func (c *Client) Start(ctx context.Context, out chan<- models.Quote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		logger.Info("quotes ws: connecting %s, %d symbols", c.cfg.Quotes.WSURL, len(c.watch))
		conn, _, err := c.wsDialer.DialContext(ctx, c.cfg.Quotes.WSURL, nil)
		if err != nil {
			logger.Error("quotes ws: dial: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if err := c.subscribe(conn); err != nil {
			logger.Error("quotes ws: subscribe: %v", err)
			_ = conn.Close()
			continue
		}
		c.state.SetWSConnected(true)

		// keepalive, иначе фид рвёт молчащее соединение
		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				case <-t.C:
					_ = conn.WriteJSON(map[string]string{"op": "ping"})
				}
			}
		}()

		c.readLoop(ctx, conn, out)

		close(stopPing)
		c.state.SetWSConnected(false)
		_ = conn.Close()
	}
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	args := make([]map[string]string, 0, len(c.watch))
	for _, s := range c.watch {
		args = append(args, map[string]string{
			"channel": "tickers",
			"symbol":  s,
		})
	}
	return conn.WriteJSON(map[string]any{
		"op":   "subscribe",
		"args": args,
	})
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.Quote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Error("quotes ws: read: %v", err)
			return
		}

		var frame tickerFrame
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Channel != "tickers" || frame.Symbol == "" {
			continue
		}

		q, ok := frameToQuote(frame)
		if !ok {
			continue
		}

		select {
		case out <- q:
		default:
		}
	}
}
