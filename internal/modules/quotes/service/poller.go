package service

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"risk_engine/internal/models"
	"risk_engine/pkg/logger"

	"github.com/bytedance/sonic"
)

// RunPoller — резервный медленный источник: периодический HTTP-опрос
// всех символов watchlist'а. Кормит тот же канал, что и websocket,
// поэтому тиковому пути всё равно, откуда пришла котировка.
func (c *Client) RunPoller(ctx context.Context, out chan<- models.Quote) {
	if c.cfg.Quotes.PollURL == "" {
		return
	}

	ticker := time.NewTicker(c.cfg.Engine.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx, out)
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, out chan<- models.Quote) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Quotes.PollURL, nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("quotes poll: %v", err)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode/100 != 2 {
		logger.Warn("quotes poll: http %d", resp.StatusCode)
		return
	}

	var frames []tickerFrame
	if err := sonic.Unmarshal(data, &frames); err != nil {
		logger.Warn("quotes poll: decode: %v", err)
		return
	}

	wanted := make(map[string]struct{}, len(c.watch))
	for _, s := range c.watch {
		wanted[s] = struct{}{}
	}

	for _, frame := range frames {
		if _, ok := wanted[frame.Symbol]; !ok {
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

func frameToQuote(f tickerFrame) (models.Quote, bool) {
	bid, err1 := strconv.ParseFloat(f.Bid, 64)
	ask, err2 := strconv.ParseFloat(f.Ask, 64)
	if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
		return models.Quote{}, false
	}
	at := time.Now()
	if f.Ts > 0 {
		at = time.UnixMilli(f.Ts)
	}
	return models.Quote{Symbol: f.Symbol, Bid: bid, Ask: ask, At: at}, true
}
