package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"risk_engine/internal/models"
	"risk_engine/internal/positions"
	"risk_engine/pkg/logger"

	"github.com/shopspring/decimal"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

func ptr(v float64) *float64 { return &v }

func longPos(id int64, symbol string, entry float64, tp, sl *float64) models.Position {
	return models.Position{
		ID: id, Symbol: symbol, Side: models.SideLong,
		Qty: 1, EntryPrice: entry, TakeProfit: tp, StopLoss: sl,
		Status: models.StatusOpen, ContestID: 1, OwnerID: 1,
	}
}

func shortPos(id int64, symbol string, entry float64, tp, sl *float64) models.Position {
	p := longPos(id, symbol, entry, tp, sl)
	p.Side = models.SideShort
	return p
}

// fakeStore — in-memory двойник durable-стора: источник кеша,
// идемпотентный closer и вход маржин-свипа в одном лице.
type fakeStore struct {
	mu sync.Mutex

	open      map[int64]models.Position
	closed    map[int64]models.CloseReason
	closeErr  error
	closes    int
	refreshes int

	contests   map[int64]models.Contest
	margins    map[int64]models.MarginSnapshot
	marginErrs map[int64]error
}

func newFakeStore(open ...models.Position) *fakeStore {
	s := &fakeStore{
		open:     make(map[int64]models.Position),
		closed:   make(map[int64]models.CloseReason),
		contests:   make(map[int64]models.Contest),
		margins:    make(map[int64]models.MarginSnapshot),
		marginErrs: make(map[int64]error),
	}
	for _, p := range open {
		s.open[p.ID] = p
	}
	return s
}

func (s *fakeStore) FindOpenWithTpSl(context.Context) ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	var out []models.Position
	for _, p := range s.open {
		if p.HasTriggers() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) Close(_ context.Context, id int64, _ float64, reason models.CloseReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closeErr != nil {
		return s.closeErr
	}
	if _, done := s.closed[id]; done {
		return positions.ErrAlreadyClosed
	}
	if _, ok := s.open[id]; !ok {
		return positions.ErrNotFound
	}
	delete(s.open, id)
	s.closed[id] = reason
	return nil
}

func (s *fakeStore) ActiveContests(context.Context) ([]models.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Contest
	for _, c := range s.contests {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) ContestMarginInputs(_ context.Context, id int64) (models.MarginSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.marginErrs[id]; err != nil {
		return models.MarginSnapshot{}, err
	}
	return s.margins[id], nil
}

func (s *fakeStore) OpenPositionsByContest(_ context.Context, contestID int64) ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Position
	for _, p := range s.open {
		if p.ContestID == contestID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) closeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeStore) closedReason(id int64) (models.CloseReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.closed[id]
	return r, ok
}

// fakeEvents собирает события движка.
type fakeEvents struct {
	mu          sync.Mutex
	closed      []int64
	marginCalls []int64
}

func (e *fakeEvents) PositionClosed(_ context.Context, id int64, _ models.CloseReason, _ float64) {
	e.mu.Lock()
	e.closed = append(e.closed, id)
	e.mu.Unlock()
}

func (e *fakeEvents) MarginCallTriggered(_ context.Context, contestID int64, _ decimal.Decimal) {
	e.mu.Lock()
	e.marginCalls = append(e.marginCalls, contestID)
	e.mu.Unlock()
}

func (e *fakeEvents) closedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.closed)
}

// fakeClock — управляемое время для кулдаунов.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func newTestCoordinator(store *fakeStore, cache *Cache, events Events, clock *fakeClock) *Coordinator {
	c := NewCoordinator(store, cache, events, 16, time.Second, 10*time.Second)
	if clock != nil {
		c.now = clock.Now
	}
	return c
}
