package models

import "time"

// Quote — тик от источника котировок. Не персистится.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	At     time.Time
}

// ExitPrice возвращает цену выхода для стороны позиции:
// закрытие лонга — продажа по bid, закрытие шорта — откуп по ask.
func (q Quote) ExitPrice(side PositionSide) float64 {
	if side == SideShort {
		return q.Ask
	}
	return q.Bid
}
