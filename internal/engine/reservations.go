package engine

import (
	"context"
	"strings"
	"time"

	"tableside/internal/domain"
	"tableside/internal/events"
)

// CreateReservation books a table for a half-open [start, end) window. The
// overlap check runs in the same transaction as the insert so two guests
// cannot both win the same slot.
func (e Engine) CreateReservation(ctx context.Context, table int, start, end, name, phone, actorID string) (domain.Reservation, error) {
	if table < 1 || table > e.Config.Store.TableCount {
		return domain.Reservation{}, ValidationError{Reason: "table is out of range"}
	}
	if strings.TrimSpace(name) == "" {
		return domain.Reservation{}, ValidationError{Reason: "reservation name is required"}
	}
	st, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return domain.Reservation{}, ValidationError{Reason: "start must be an RFC3339 timestamp"}
	}
	en, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return domain.Reservation{}, ValidationError{Reason: "end must be an RFC3339 timestamp"}
	}
	if !en.After(st) {
		return domain.Reservation{}, ValidationError{Reason: "end must be after start"}
	}

	v := domain.Reservation{
		ID:        newID(),
		Table:     table,
		Start:     st.UTC().Format(time.RFC3339),
		End:       en.UTC().Format(time.RFC3339),
		Name:      strings.TrimSpace(name),
		Phone:     strings.TrimSpace(phone),
		CreatedAt: e.nowISO(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	n, err := e.Repo.CountOverlappingTx(ctx, tx, table, v.Start, v.End)
	if err != nil {
		return domain.Reservation{}, err
	}
	if n > 0 {
		return domain.Reservation{}, RuleError{Reason: "table is already reserved for that time"}
	}
	if err := e.Repo.InsertReservationTx(ctx, tx, v); err != nil {
		return domain.Reservation{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ReservationCreated, "reservation", v.ID, actorID, events.EventPayload{
		"table": table,
		"start": v.Start,
	}); err != nil {
		return domain.Reservation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Reservation{}, err
	}
	e.Events.Notify()
	return v, nil
}
