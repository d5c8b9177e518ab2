package engine

import (
	"context"
	"database/sql"
	"errors"

	"tableside/internal/domain"
	"tableside/internal/events"
	"tableside/internal/geo"
	"tableside/internal/repo"
)

// openSessionTx returns the table's open session, creating one if none
// exists. The partial unique index on open sessions makes the create race
// safe: the loser's insert fails and it re-reads the winner's row.
func (e Engine) openSessionTx(ctx context.Context, tx *sql.Tx, table int, actorID string) (domain.DineInSession, error) {
	s, err := e.Repo.OpenSessionForTableTx(ctx, tx, table)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.DineInSession{}, err
	}
	s = domain.DineInSession{
		ID:       newID(),
		Table:    table,
		Status:   "OPEN",
		OpenedAt: e.nowISO(),
	}
	if err := e.Repo.InsertSessionTx(ctx, tx, s); err != nil {
		if again, rerr := e.Repo.OpenSessionForTableTx(ctx, tx, table); rerr == nil {
			return again, nil
		}
		return domain.DineInSession{}, err
	}
	if err := e.Events.Append(ctx, tx, events.SessionOpened, "session", s.ID, actorID, events.EventPayload{"table": table}); err != nil {
		return domain.DineInSession{}, err
	}
	return s, nil
}

// OpenSession opens (or returns) the table's session outside an order, for
// hosts seating a party before anything is ordered.
func (e Engine) OpenSession(ctx context.Context, table int, actorID string) (domain.DineInSession, error) {
	if table < 1 || table > e.Config.Store.TableCount {
		return domain.DineInSession{}, ValidationError{Reason: "table is out of range"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DineInSession{}, err
	}
	defer tx.Rollback()
	s, err := e.openSessionTx(ctx, tx, table, actorID)
	if err != nil {
		return domain.DineInSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DineInSession{}, err
	}
	e.Events.Notify()
	return s, nil
}

// BillTotals aggregates the session's unpaid orders into one bill. Cancelled
// orders never bill; per-order totals are summed, not recomputed, so the bill
// always matches the receipts.
func (e Engine) BillTotals(ctx context.Context, sessionID string) (domain.Bill, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Bill{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bill{}, err
	}
	defer tx.Rollback()
	orders, err := e.Repo.OpenOrdersInSessionTx(ctx, tx, sessionID)
	if err != nil {
		return domain.Bill{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bill{}, err
	}
	return buildBill(s, orders, e.Config.Store.TaxRate), nil
}

func buildBill(s domain.DineInSession, orders []domain.Order, taxRate float64) domain.Bill {
	bill := domain.Bill{
		SessionID: s.ID,
		Table:     s.Table,
		Orders:    orders,
		TaxRate:   taxRate,
	}
	for _, o := range orders {
		bill.Subtotal += o.Totals.Subtotal
		bill.Tax += o.Totals.Tax
		bill.Total += o.Totals.Total
	}
	bill.Subtotal = geo.RoundCents(bill.Subtotal)
	bill.Tax = geo.RoundCents(bill.Tax)
	bill.Total = geo.RoundCents(bill.Total)
	return bill
}

// PayAndCloseBill settles every open order in the session and closes it, all
// in one transaction so a concurrent order lands either on this bill or on a
// fresh session, never in limbo.
func (e Engine) PayAndCloseBill(ctx context.Context, sessionID, actorID string) (domain.Bill, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bill{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSessionTx(ctx, tx, sessionID)
	if err != nil {
		return domain.Bill{}, err
	}
	if s.Status != "OPEN" {
		return domain.Bill{}, RuleError{Reason: "bill is already settled"}
	}
	orders, err := e.Repo.OpenOrdersInSessionTx(ctx, tx, sessionID)
	if err != nil {
		return domain.Bill{}, err
	}
	if _, err := e.Repo.MarkSessionOrdersPaidTx(ctx, tx, sessionID); err != nil {
		return domain.Bill{}, err
	}
	now := e.nowISO()
	if err := e.Repo.CloseSessionTx(ctx, tx, sessionID, now); err != nil {
		return domain.Bill{}, err
	}
	bill := buildBill(s, orders, e.Config.Store.TaxRate)
	if err := e.Events.Append(ctx, tx, events.BillPaid, "session", sessionID, actorID, events.EventPayload{
		"table": s.Table,
		"total": bill.Total,
	}); err != nil {
		return domain.Bill{}, err
	}
	if err := e.Events.Append(ctx, tx, events.SessionClosed, "session", sessionID, actorID, nil); err != nil {
		return domain.Bill{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bill{}, err
	}
	e.Events.Notify()
	for i := range bill.Orders {
		bill.Orders[i].BillStatus = domain.BillPaid
	}
	s.Status = "CLOSED"
	s.ClosedAt = &now
	return bill, nil
}
