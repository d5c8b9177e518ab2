package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tableside/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const orderColumns = `id,status,service_type,table_no,dinein_session_id,bill_status,customer_id,customer_name,items_json,totals_json,delivery_json,driver_json,eta_json,notes_json,payment_json,created_at,revision`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var table sql.NullInt64
	var sessionID, billStatus, customerName sql.NullString
	var itemsJSON, totalsJSON, notesJSON, paymentJSON string
	var deliveryJSON, driverJSON, etaJSON sql.NullString
	err := row.Scan(&o.ID, &o.Status, &o.ServiceType, &table, &sessionID, &billStatus,
		&o.CustomerID, &customerName, &itemsJSON, &totalsJSON, &deliveryJSON,
		&driverJSON, &etaJSON, &notesJSON, &paymentJSON, &o.CreatedAt, &o.Revision)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if table.Valid {
		t := int(table.Int64)
		o.Table = &t
	}
	if sessionID.Valid {
		o.DineInSessionID = &sessionID.String
	}
	if billStatus.Valid {
		o.BillStatus = billStatus.String
	}
	if customerName.Valid {
		o.CustomerName = customerName.String
	}
	// Corrupt JSON columns decode to zero values rather than failing the read.
	decodeJSON(itemsJSON, &o.Items)
	decodeJSON(totalsJSON, &o.Totals)
	decodeJSON(notesJSON, &o.LiveNotes)
	decodeJSON(paymentJSON, &o.Payment)
	if deliveryJSON.Valid {
		decodeJSON(deliveryJSON.String, &o.Delivery)
	}
	if driverJSON.Valid {
		decodeJSON(driverJSON.String, &o.Driver)
	}
	if etaJSON.Valid {
		decodeJSON(etaJSON.String, &o.ETA)
	}
	return o, nil
}

func decodeJSON(raw string, out any) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), out)
}

func encodeJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func encodeJSONNullable(v any, present bool) any {
	if !present {
		return nil
	}
	return encodeJSON(v)
}

func (r Repo) InsertOrderTx(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	var table any
	if o.Table != nil {
		table = *o.Table
	}
	var sessionID any
	if o.DineInSessionID != nil {
		sessionID = *o.DineInSessionID
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO orders(`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Status, o.ServiceType, table, sessionID, nullable(o.BillStatus),
		o.CustomerID, nullable(o.CustomerName), encodeJSON(o.Items), encodeJSON(o.Totals),
		encodeJSONNullable(o.Delivery, o.Delivery != nil),
		encodeJSONNullable(o.Driver, o.Driver != nil),
		encodeJSONNullable(o.ETA, o.ETA != nil),
		encodeJSON(o.LiveNotes), encodeJSON(o.Payment), o.CreatedAt, o.Revision)
	return err
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return scanOrder(r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id))
}

func (r Repo) GetOrderTx(ctx context.Context, tx *sql.Tx, id string) (domain.Order, error) {
	return scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id))
}

// OrderFilter narrows ListOrders. Zero values mean "any".
type OrderFilter struct {
	Status      string
	ServiceType string
	CustomerID  string
	SessionID   string
	DriverID    string
	ActiveOnly  bool
}

func (r Repo) ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	if f.ServiceType != "" {
		where = append(where, "service_type=?")
		args = append(args, f.ServiceType)
	}
	if f.CustomerID != "" {
		where = append(where, "customer_id=?")
		args = append(args, f.CustomerID)
	}
	if f.SessionID != "" {
		where = append(where, "dinein_session_id=?")
		args = append(args, f.SessionID)
	}
	if f.ActiveOnly {
		where = append(where, "status NOT IN ('SERVED','DELIVERED','CANCELLED')")
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		if f.DriverID != "" && (o.Driver == nil || o.Driver.ID != f.DriverID) {
			continue
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// UpdateOrderTx persists the mutable parts of an order, guarded by the
// revision the caller read. Zero rows affected means a concurrent writer won.
func (r Repo) UpdateOrderTx(ctx context.Context, tx *sql.Tx, o domain.Order, expectedRevision int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET status=?, bill_status=?, driver_json=?, eta_json=?, notes_json=?, revision=revision+1 WHERE id=? AND revision=?`,
		o.Status, nullable(o.BillStatus),
		encodeJSONNullable(o.Driver, o.Driver != nil),
		encodeJSONNullable(o.ETA, o.ETA != nil),
		encodeJSON(o.LiveNotes), o.ID, expectedRevision)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Dine-in sessions.

func scanSession(row rowScanner) (domain.DineInSession, error) {
	var s domain.DineInSession
	var closedAt sql.NullString
	err := row.Scan(&s.ID, &s.Table, &s.Status, &s.OpenedAt, &closedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if closedAt.Valid {
		s.ClosedAt = &closedAt.String
	}
	return s, err
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.DineInSession, error) {
	return scanSession(r.DB.QueryRowContext(ctx, `SELECT id,table_no,status,opened_at,closed_at FROM dinein_sessions WHERE id=?`, id))
}

func (r Repo) GetSessionTx(ctx context.Context, tx *sql.Tx, id string) (domain.DineInSession, error) {
	return scanSession(tx.QueryRowContext(ctx, `SELECT id,table_no,status,opened_at,closed_at FROM dinein_sessions WHERE id=?`, id))
}

func (r Repo) OpenSessionForTableTx(ctx context.Context, tx *sql.Tx, table int) (domain.DineInSession, error) {
	return scanSession(tx.QueryRowContext(ctx, `SELECT id,table_no,status,opened_at,closed_at FROM dinein_sessions WHERE table_no=? AND status='OPEN'`, table))
}

func (r Repo) InsertSessionTx(ctx context.Context, tx *sql.Tx, s domain.DineInSession) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO dinein_sessions(id,table_no,status,opened_at) VALUES (?,?,?,?)`,
		s.ID, s.Table, s.Status, s.OpenedAt)
	return err
}

func (r Repo) CloseSessionTx(ctx context.Context, tx *sql.Tx, id, closedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE dinein_sessions SET status='CLOSED', closed_at=? WHERE id=? AND status='OPEN'`, closedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// OpenOrdersInSessionTx returns the session's orders still on the bill.
func (r Repo) OpenOrdersInSessionTx(ctx context.Context, tx *sql.Tx, sessionID string) ([]domain.Order, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE dinein_session_id=? AND bill_status='OPEN' ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) MarkSessionOrdersPaidTx(ctx context.Context, tx *sql.Tx, sessionID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET bill_status='PAID', revision=revision+1 WHERE dinein_session_id=? AND bill_status='OPEN'`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Reservations.

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var v domain.Reservation
	var phone sql.NullString
	err := row.Scan(&v.ID, &v.Table, &v.Start, &v.End, &v.Name, &phone, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if phone.Valid {
		v.Phone = phone.String
	}
	return v, err
}

func (r Repo) ListReservations(ctx context.Context, table int) ([]domain.Reservation, error) {
	q := `SELECT id,table_no,start_at,end_at,name,phone,created_at FROM reservations`
	var args []any
	if table > 0 {
		q += ` WHERE table_no=?`
		args = append(args, table)
	}
	q += ` ORDER BY start_at ASC`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reservation
	for rows.Next() {
		v, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// CountOverlappingTx counts reservations for the table whose half-open
// interval [start,end) overlaps the given one.
func (r Repo) CountOverlappingTx(ctx context.Context, tx *sql.Tx, table int, start, end string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE table_no=? AND start_at < ? AND end_at > ?`,
		table, end, start).Scan(&n)
	return n, err
}

func (r Repo) InsertReservationTx(ctx context.Context, tx *sql.Tx, v domain.Reservation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reservations(id,table_no,start_at,end_at,name,phone,created_at) VALUES (?,?,?,?,?,?,?)`,
		v.ID, v.Table, v.Start, v.End, v.Name, nullable(v.Phone), v.CreatedAt)
	return err
}

// Receipts.

func scanReceipt(row rowScanner) (domain.Receipt, error) {
	var rc domain.Receipt
	var table sql.NullInt64
	var itemsJSON string
	err := row.Scan(&rc.ID, &rc.OrderID, &rc.ServiceType, &table, &itemsJSON,
		&rc.Subtotal, &rc.Tax, &rc.Fee, &rc.Total, &rc.CreatedAt)
	if err == sql.ErrNoRows {
		return rc, ErrNotFound
	}
	if table.Valid {
		t := int(table.Int64)
		rc.Table = &t
	}
	decodeJSON(itemsJSON, &rc.Items)
	return rc, err
}

const receiptColumns = `id,order_id,service_type,table_no,items_json,subtotal,tax,fee,total,created_at`

func (r Repo) InsertReceiptTx(ctx context.Context, tx *sql.Tx, rc domain.Receipt) error {
	var table any
	if rc.Table != nil {
		table = *rc.Table
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO receipts(`+receiptColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rc.ID, rc.OrderID, rc.ServiceType, table, encodeJSON(rc.Items),
		rc.Subtotal, rc.Tax, rc.Fee, rc.Total, rc.CreatedAt)
	return err
}

func (r Repo) GetReceiptByOrder(ctx context.Context, orderID string) (domain.Receipt, error) {
	return scanReceipt(r.DB.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE order_id=?`, orderID))
}

func (r Repo) ListReceipts(ctx context.Context) ([]domain.Receipt, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+receiptColumns+` FROM receipts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}

// Events.

func scanEvent(row rowScanner) (domain.Event, error) {
	var e domain.Event
	var entityID sql.NullString
	err := row.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &e.Payload)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if entityID.Valid {
		e.EntityID = entityID.String
	}
	return e, err
}

// EventsAfter returns up to limit events with id greater than the cursor.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id > ? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// SalesByServiceType aggregates receipt totals for the CLI report.
// SalesRow is one line of the per-service-type sales report.
type SalesRow struct {
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

func (r Repo) SalesByServiceType(ctx context.Context) (map[string]SalesRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT service_type, COUNT(*), COALESCE(SUM(total),0) FROM receipts GROUP BY service_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[string]SalesRow)
	for rows.Next() {
		var svc string
		var row SalesRow
		if err := rows.Scan(&svc, &row.Count, &row.Total); err != nil {
			return nil, err
		}
		res[svc] = row
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// UpsertStoreConfig stores the serialized store profile alongside the data so
// a fresh process can recover it without the yaml file.
func (r Repo) UpsertStoreConfig(ctx context.Context, yamlText, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO store_profile(id,config_yaml,updated_at) VALUES (1,?,?)
		ON CONFLICT(id) DO UPDATE SET config_yaml=excluded.config_yaml, updated_at=excluded.updated_at`,
		yamlText, updatedAt)
	return err
}

func (r Repo) GetStoreConfig(ctx context.Context) (string, error) {
	var text string
	err := r.DB.QueryRowContext(ctx, `SELECT config_yaml FROM store_profile WHERE id=1`).Scan(&text)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read store config: %w", err)
	}
	return text, nil
}
