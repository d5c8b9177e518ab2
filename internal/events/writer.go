package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engines.
const (
	OrderPlaced        = "order.placed"
	OrderStatusChanged = "order.status_changed"
	OrderETASet        = "order.eta_set"
	OrderNoteAdded     = "order.note_added"
	OrderDelivered     = "order.delivered"
	DriverAssigned     = "driver.assigned"
	DriverLocation     = "driver.location"
	BillPaid           = "bill.paid"
	SessionOpened      = "session.opened"
	SessionClosed      = "session.closed"
	ReservationCreated = "reservation.created"
	EmployeeRegistered = "employee.registered"
	EmployeeStatusSet  = "employee.status_set"
	TimesheetDecided   = "timesheet.decided"
	LeaveDecided       = "leave.decided"
	AnnouncementPosted = "announcement.posted"
	MessageSent        = "message.sent"
)

type Writer struct {
	DB       *sql.DB
	Now      func() time.Time
	Notifier *Notifier
}

type EventPayload map[string]any

// Append writes one event inside the caller's transaction. Interested
// listeners are woken only after the caller commits, via Notify.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

// Notify wakes subscribers after a commit. Safe with a nil notifier.
func (w Writer) Notify() {
	if w.Notifier != nil {
		w.Notifier.Broadcast()
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
