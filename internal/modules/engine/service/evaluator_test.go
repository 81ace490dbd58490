package service

import (
	"testing"
	"time"

	"risk_engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(open ...models.Position) (*Evaluator, *Coordinator, *fakeClock) {
	store := newFakeStore(open...)
	cache := NewCache(store, 30*time.Second)
	for _, p := range open {
		cache.Upsert(p)
	}
	clock := newFakeClock()
	coord := newTestCoordinator(store, cache, &fakeEvents{}, clock)
	return NewEvaluator(cache, coord), coord, clock
}

func quote(symbol string, bid, ask float64) models.Quote {
	return models.Quote{Symbol: symbol, Bid: bid, Ask: ask, At: time.Now()}
}

func TestOnTick_Matching(t *testing.T) {
	tests := []struct {
		name       string
		pos        models.Position
		tick       models.Quote
		wantReason models.CloseReason
		wantPrice  float64
		wantNone   bool
	}{
		{
			name:       "long TP at bid",
			pos:        longPos(1, "EUR/USD", 1.1000, ptr(1.1050), ptr(1.0950)),
			tick:       quote("EUR/USD", 1.1052, 1.1054),
			wantReason: models.ReasonTakeProfit,
			wantPrice:  1.1052,
		},
		{
			name:       "long SL at bid",
			pos:        longPos(2, "EUR/USD", 1.1000, ptr(1.1050), ptr(1.0950)),
			tick:       quote("EUR/USD", 1.0949, 1.0951),
			wantReason: models.ReasonStopLoss,
			wantPrice:  1.0949,
		},
		{
			name:     "long inside the band",
			pos:      longPos(3, "EUR/USD", 1.1000, ptr(1.1050), ptr(1.0950)),
			tick:     quote("EUR/USD", 1.1010, 1.1012),
			wantNone: true,
		},
		{
			name:       "short TP at ask",
			pos:        shortPos(4, "USD/JPY", 150.00, ptr(149.50), ptr(150.50)),
			tick:       quote("USD/JPY", 149.46, 149.48),
			wantReason: models.ReasonTakeProfit,
			wantPrice:  149.48,
		},
		{
			name:       "short SL at ask",
			pos:        shortPos(5, "USD/JPY", 150.00, ptr(149.50), ptr(150.50)),
			tick:       quote("USD/JPY", 150.49, 150.51),
			wantReason: models.ReasonStopLoss,
			wantPrice:  150.51,
		},
		{
			// гэп пробил оба уровня — побеждает SL по порядку проверки
			name:       "short gap beyond both levels closes by SL",
			pos:        shortPos(6, "GBP/USD", 1.2000, ptr(1.1900), ptr(1.2050)),
			tick:       quote("GBP/USD", 1.2098, 1.2100),
			wantReason: models.ReasonStopLoss,
			wantPrice:  1.2100,
		},
		{
			name:     "no levels set",
			pos:      longPos(7, "EUR/USD", 1.1000, nil, nil),
			tick:     quote("EUR/USD", 1.2000, 1.2002),
			wantNone: true,
		},
		{
			name:       "long TP only",
			pos:        longPos(8, "EUR/USD", 1.1000, ptr(1.1050), nil),
			tick:       quote("EUR/USD", 1.1050, 1.1052),
			wantReason: models.ReasonTakeProfit,
			wantPrice:  1.1050,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval, _, _ := newTestEvaluator(tt.pos)
			got := eval.OnTick(tt.tick)
			if tt.wantNone {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.pos.ID, got[0].Position.ID)
			assert.Equal(t, tt.wantReason, got[0].Reason)
			assert.InDelta(t, tt.wantPrice, got[0].ExitPrice, 1e-9)
		})
	}
}

func TestOnTick_SymbolIsolation(t *testing.T) {
	gbp := longPos(1, "GBP/USD", 1.2000, ptr(1.2100), ptr(1.1900))
	eur := longPos(2, "EUR/USD", 1.1000, ptr(1.1050), ptr(1.0950))
	eval, _, _ := newTestEvaluator(gbp, eur)

	// тик по GBP/USD с ценой, которая пробила бы уровни EUR/USD
	got := eval.OnTick(quote("GBP/USD", 1.2150, 1.2152))

	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Position.ID)
}

func TestOnTick_SkipsClaimed(t *testing.T) {
	p := longPos(1, "EUR/USD", 1.1000, ptr(1.1050), nil)
	eval, coord, _ := newTestEvaluator(p)

	require.True(t, coord.TryClaim(p.ID))

	got := eval.OnTick(quote("EUR/USD", 1.1060, 1.1062))
	assert.Empty(t, got)
}

func TestOnTick_CooldownSuppression(t *testing.T) {
	p := longPos(1, "EUR/USD", 1.1000, ptr(1.1050), nil)
	eval, coord, clock := newTestEvaluator(p)

	past := quote("EUR/USD", 1.1060, 1.1062)

	got := eval.OnTick(past)
	require.Len(t, got, 1)
	require.True(t, coord.Dispatch(got[0]))

	// позиция под claim'ом — повторный тик молчит
	assert.Empty(t, eval.OnTick(past))

	// закрытие упало, claim сменился кулдауном
	coord.releaseAfter(p.ID, coord.triggerCooldown)

	clock.Advance(coord.triggerCooldown / 2)
	assert.Empty(t, eval.OnTick(past), "tick at T+cooldown/2 must be suppressed")

	clock.Advance(coord.triggerCooldown + coord.triggerCooldown/2)
	got = eval.OnTick(past)
	assert.Len(t, got, 1, "tick past the cooldown window must trigger again")
}

func TestOnTick_EmptyBucketIsCheap(t *testing.T) {
	eval, _, _ := newTestEvaluator()
	assert.Nil(t, eval.OnTick(quote("EUR/USD", 1.1, 1.1002)))
}
