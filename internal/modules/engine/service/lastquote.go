package service

import (
	"sync"

	"risk_engine/internal/models"
)

// LastQuotes — последняя котировка по символу. Нужна маржин-свипу:
// ликвидация закрывает по текущей цене, а не по цене триггера.
type LastQuotes struct {
	mu   sync.RWMutex
	last map[string]models.Quote
}

func NewLastQuotes() *LastQuotes {
	return &LastQuotes{last: make(map[string]models.Quote)}
}

func (l *LastQuotes) Set(q models.Quote) {
	l.mu.Lock()
	l.last[q.Symbol] = q
	l.mu.Unlock()
}

func (l *LastQuotes) Get(symbol string) (models.Quote, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q, ok := l.last[symbol]
	return q, ok
}
