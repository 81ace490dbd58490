package models

import "time"

type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

type PositionStatus string

// open → closing → closed, без откатов назад
const (
	StatusOpen    PositionStatus = "open"
	StatusClosing PositionStatus = "closing"
	StatusClosed  PositionStatus = "closed"
)

type CloseReason string

const (
	ReasonTakeProfit CloseReason = "take_profit"
	ReasonStopLoss   CloseReason = "stop_loss"
	ReasonMarginCall CloseReason = "margin_call"
)

// Position — проекция позиции из БД для кеша триггеров.
// TakeProfit/StopLoss nil == уровень не выставлен.
type Position struct {
	ID         int64
	Symbol     string
	Side       PositionSide
	Qty        float64
	EntryPrice float64
	TakeProfit *float64
	StopLoss   *float64
	Status     PositionStatus
	ContestID  int64
	OwnerID    int64

	// только в кеше, в БД не пишется
	LastCheckedAt time.Time
}

// HasTriggers — есть ли хотя бы один уровень автозакрытия.
func (p *Position) HasTriggers() bool {
	return p.TakeProfit != nil || p.StopLoss != nil
}
