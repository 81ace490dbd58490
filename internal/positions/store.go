package positions

import (
	"context"
	"time"

	"risk_engine/internal/models"
	"risk_engine/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Store — доступ к положениям в БД. Условное закрытие в Close —
// настоящий межинстансовый барьер от двойного закрытия: in-memory
// claim видит только свой процесс.
type Store struct {
	tm *db.PgTxManager
}

func NewStore(tm *db.PgTxManager) *Store {
	return &Store{tm: tm}
}

// FindOpenWithTpSl — все открытые позиции, у которых выставлен хотя бы
// один из уровней TP/SL. Источник полного ребилда кеша.
func (s *Store) FindOpenWithTpSl(ctx context.Context) ([]models.Position, error) {
	rows, err := s.tm.Conn().Query(ctx, `
		select id, symbol, side, qty, entry_price, take_profit, stop_loss, status, contest_id, owner_id
		from positions
		where status = 'open'
		  and (take_profit is not null or stop_loss is not null)`)
	if err != nil {
		return nil, errors.Wrap(err, "query open positions with tp/sl")
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		var p models.Position
		var side, status string
		if err := rows.Scan(
			&p.ID, &p.Symbol, &side, &p.Qty, &p.EntryPrice,
			&p.TakeProfit, &p.StopLoss, &status, &p.ContestID, &p.OwnerID,
		); err != nil {
			return nil, errors.Wrap(err, "scan position")
		}
		p.Side = models.PositionSide(side)
		p.Status = models.PositionStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate positions")
	}
	return out, nil
}

// Close закрывает позицию по exitPrice с указанной причиной.
// Апдейт условный (status = 'open'), поэтому операция идемпотентна:
// повторный вызов вернёт ErrAlreadyClosed и не продублирует эффекты.
func (s *Store) Close(ctx context.Context, id int64, exitPrice float64, reason models.CloseReason) error {
	err := s.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx, `
			update positions
			set status = 'closed', close_price = $2, close_reason = $3, closed_at = $4
			where id = $1 and status = 'open'`,
			id, exitPrice, string(reason), time.Now().UTC())
		if err != nil {
			return errors.Wrap(err, "close position")
		}

		if tag.RowsAffected() == 0 {
			var status string
			err := tx.QueryRow(ctxTx, `select status from positions where id = $1`, id).Scan(&status)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return errors.Wrap(err, "check position status")
			}
			if models.PositionStatus(status) == models.StatusClosed {
				return ErrAlreadyClosed
			}
			// кто-то держит позицию в closing — апдейт проиграл гонку
			return ErrWriteConflict
		}

		// аудит закрытия; уникальный индекс по position_id страхует
		// от дубля даже при ретрае вне условного апдейта
		_, err = tx.Exec(ctxTx, `
			insert into position_closures (position_id, close_price, reason, created_at)
			values ($1, $2, $3, $4)
			on conflict (position_id) do nothing`,
			id, exitPrice, string(reason), time.Now().UTC())
		if err != nil {
			return errors.Wrap(err, "insert closure audit")
		}
		return nil
	})
	return err
}

// ContestMarginInputs — входные данные для расчёта уровня маржи конкурса.
func (s *Store) ContestMarginInputs(ctx context.Context, contestID int64) (models.MarginSnapshot, error) {
	var equity, usedMargin decimal.Decimal
	err := s.tm.Conn().QueryRow(ctx, `
		select coalesce(sum(equity), 0), coalesce(sum(used_margin), 0)
		from contest_participants
		where contest_id = $1`,
		contestID).Scan(&equity, &usedMargin)
	if err != nil {
		return models.MarginSnapshot{}, errors.Wrap(err, "query contest margin inputs")
	}
	return models.MarginSnapshot{
		ContestID:  contestID,
		Equity:     equity,
		UsedMargin: usedMargin,
	}, nil
}

// ActiveContests — конкурсы, по которым гоняем маржин-свип.
func (s *Store) ActiveContests(ctx context.Context) ([]models.Contest, error) {
	rows, err := s.tm.Conn().Query(ctx, `
		select id, margin_call_threshold_pct
		from contests
		where status = 'active'`)
	if err != nil {
		return nil, errors.Wrap(err, "query active contests")
	}
	defer rows.Close()

	var out []models.Contest
	for rows.Next() {
		var c models.Contest
		if err := rows.Scan(&c.ID, &c.MarginCallThresholdPct); err != nil {
			return nil, errors.Wrap(err, "scan contest")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate contests")
	}
	return out, nil
}

// OpenPositionsByContest — открытые позиции конкурса для ликвидации.
func (s *Store) OpenPositionsByContest(ctx context.Context, contestID int64) ([]models.Position, error) {
	rows, err := s.tm.Conn().Query(ctx, `
		select id, symbol, side, qty, entry_price, take_profit, stop_loss, status, contest_id, owner_id
		from positions
		where contest_id = $1 and status = 'open'`,
		contestID)
	if err != nil {
		return nil, errors.Wrap(err, "query contest positions")
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		var p models.Position
		var side, status string
		if err := rows.Scan(
			&p.ID, &p.Symbol, &side, &p.Qty, &p.EntryPrice,
			&p.TakeProfit, &p.StopLoss, &status, &p.ContestID, &p.OwnerID,
		); err != nil {
			return nil, errors.Wrap(err, "scan position")
		}
		p.Side = models.PositionSide(side)
		p.Status = models.PositionStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate positions")
	}
	return out, nil
}
