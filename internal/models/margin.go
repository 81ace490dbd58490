package models

import "github.com/shopspring/decimal"

// MarginSnapshot — агрегат по конкурсу на момент свипа. Не хранится.
type MarginSnapshot struct {
	ContestID  int64
	Equity     decimal.Decimal
	UsedMargin decimal.Decimal
}

// MarginLevelPercent = equity / usedMargin * 100.
// При usedMargin == 0 маржа не используется — возвращаем ноль и
// ликвидация не рассматривается (см. BreachesThreshold).
func (m MarginSnapshot) MarginLevelPercent() decimal.Decimal {
	if m.UsedMargin.IsZero() {
		return decimal.Zero
	}
	return m.Equity.Div(m.UsedMargin).Mul(decimal.NewFromInt(100))
}

// BreachesThreshold — true, если уровень маржи на пороге или ниже.
func (m MarginSnapshot) BreachesThreshold(thresholdPercent decimal.Decimal) bool {
	if m.UsedMargin.IsZero() {
		return false
	}
	return m.MarginLevelPercent().LessThanOrEqual(thresholdPercent)
}

// Contest — активный конкурс/челлендж с его порогом маржин-колла.
type Contest struct {
	ID                     int64
	MarginCallThresholdPct decimal.Decimal
}
