package repo

import (
	"context"
	"database/sql"
	"strings"

	"tableside/internal/domain"
)

// Customers.

func (r Repo) InsertCustomerTx(ctx context.Context, tx *sql.Tx, c domain.Customer, passwordHash string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO customers(id,name,email,phone,password_hash,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Email), nullable(c.Phone), passwordHash, c.CreatedAt)
	return err
}

func (r Repo) FindCustomerByLogin(ctx context.Context, emailOrPhone string) (domain.Customer, string, error) {
	key := strings.ToLower(strings.TrimSpace(emailOrPhone))
	var c domain.Customer
	var email, phone sql.NullString
	var hash string
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,phone,password_hash,created_at FROM customers WHERE lower(email)=? OR phone=?`,
		key, strings.TrimSpace(emailOrPhone)).Scan(&c.ID, &c.Name, &email, &phone, &hash, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, "", ErrNotFound
	}
	if err != nil {
		return c, "", err
	}
	if email.Valid {
		c.Email = email.String
	}
	if phone.Valid {
		c.Phone = phone.String
	}
	return c, hash, nil
}

// Employees.

const employeeColumns = `id,name,email,role,status,created_at,updated_at`

func scanEmployee(row rowScanner) (domain.Employee, error) {
	var e domain.Employee
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) InsertEmployeeTx(ctx context.Context, tx *sql.Tx, e domain.Employee, passwordHash string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO employees(id,name,email,role,status,password_hash,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.Name, e.Email, e.Role, e.Status, passwordHash, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r Repo) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	return scanEmployee(r.DB.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id=?`, id))
}

func (r Repo) FindEmployeeByEmail(ctx context.Context, email string) (domain.Employee, string, error) {
	var e domain.Employee
	var hash string
	err := r.DB.QueryRowContext(ctx, `SELECT `+employeeColumns+`,password_hash FROM employees WHERE lower(email)=?`,
		strings.ToLower(strings.TrimSpace(email))).
		Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.Status, &e.CreatedAt, &e.UpdatedAt, &hash)
	if err == sql.ErrNoRows {
		return e, "", ErrNotFound
	}
	return e, hash, err
}

func (r Repo) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// SetEmployeeStatusTx flips the soft status flag; employees are never deleted.
func (r Repo) SetEmployeeStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE employees SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Shifts.

func (r Repo) InsertShiftTx(ctx context.Context, tx *sql.Tx, s domain.Shift) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO shifts(id,employee_id,day,start_at,end_at,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.EmployeeID, s.Day, s.Start, s.End, s.CreatedAt)
	return err
}

func (r Repo) ListShifts(ctx context.Context, employeeID string) ([]domain.Shift, error) {
	q := `SELECT id,employee_id,day,start_at,end_at,created_at FROM shifts`
	var args []any
	if employeeID != "" {
		q += ` WHERE employee_id=?`
		args = append(args, employeeID)
	}
	q += ` ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Shift
	for rows.Next() {
		var s domain.Shift
		if err := rows.Scan(&s.ID, &s.EmployeeID, &s.Day, &s.Start, &s.End, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Timesheets.

const timesheetColumns = `id,employee_id,date,day_type,start_at,end_at,break_mins,hours,status,created_at`

func scanTimesheet(row rowScanner) (domain.TimesheetEntry, error) {
	var t domain.TimesheetEntry
	var start, end sql.NullString
	err := row.Scan(&t.ID, &t.EmployeeID, &t.Date, &t.DayType, &start, &end, &t.BreakMins, &t.Hours, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if start.Valid {
		t.Start = start.String
	}
	if end.Valid {
		t.End = end.String
	}
	return t, err
}

func (r Repo) InsertTimesheetTx(ctx context.Context, tx *sql.Tx, t domain.TimesheetEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO timesheet_entries(`+timesheetColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.EmployeeID, t.Date, t.DayType, nullable(t.Start), nullable(t.End), t.BreakMins, t.Hours, t.Status, t.CreatedAt)
	return err
}

func (r Repo) GetTimesheet(ctx context.Context, id string) (domain.TimesheetEntry, error) {
	return scanTimesheet(r.DB.QueryRowContext(ctx, `SELECT `+timesheetColumns+` FROM timesheet_entries WHERE id=?`, id))
}

func (r Repo) SetTimesheetStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE timesheet_entries SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListTimesheets(ctx context.Context, employeeID, status string) ([]domain.TimesheetEntry, error) {
	var (
		where []string
		args  []any
	)
	if employeeID != "" {
		where = append(where, "employee_id=?")
		args = append(args, employeeID)
	}
	if status != "" {
		where = append(where, "status=?")
		args = append(args, status)
	}
	q := `SELECT ` + timesheetColumns + ` FROM timesheet_entries`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY date ASC`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimesheetEntry
	for rows.Next() {
		t, err := scanTimesheet(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// Leave requests.

func scanLeave(row rowScanner) (domain.LeaveRequest, error) {
	var l domain.LeaveRequest
	var reason sql.NullString
	err := row.Scan(&l.ID, &l.EmployeeID, &l.From, &l.To, &reason, &l.Status, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if reason.Valid {
		l.Reason = reason.String
	}
	return l, err
}

func (r Repo) InsertLeaveTx(ctx context.Context, tx *sql.Tx, l domain.LeaveRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO leave_requests(id,employee_id,from_date,to_date,reason,status,created_at) VALUES (?,?,?,?,?,?,?)`,
		l.ID, l.EmployeeID, l.From, l.To, nullable(l.Reason), l.Status, l.CreatedAt)
	return err
}

func (r Repo) GetLeave(ctx context.Context, id string) (domain.LeaveRequest, error) {
	return scanLeave(r.DB.QueryRowContext(ctx, `SELECT id,employee_id,from_date,to_date,reason,status,created_at FROM leave_requests WHERE id=?`, id))
}

func (r Repo) SetLeaveStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE leave_requests SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListLeave(ctx context.Context, employeeID, status string) ([]domain.LeaveRequest, error) {
	var (
		where []string
		args  []any
	)
	if employeeID != "" {
		where = append(where, "employee_id=?")
		args = append(args, employeeID)
	}
	if status != "" {
		where = append(where, "status=?")
		args = append(args, status)
	}
	q := `SELECT id,employee_id,from_date,to_date,reason,status,created_at FROM leave_requests`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LeaveRequest
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// Announcements.

func (r Repo) InsertAnnouncementTx(ctx context.Context, tx *sql.Tx, a domain.Announcement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO announcements(id,title,message,audience,read_by_json,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.Title, a.Message, a.Audience, encodeJSON(a.ReadBy), a.CreatedAt)
	return err
}

func (r Repo) ListAnnouncements(ctx context.Context, audience string) ([]domain.Announcement, error) {
	q := `SELECT id,title,message,audience,read_by_json,created_at FROM announcements`
	var args []any
	if audience != "" {
		q += ` WHERE audience IN (?, 'all')`
		args = append(args, audience)
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Announcement
	for rows.Next() {
		var a domain.Announcement
		var readBy string
		if err := rows.Scan(&a.ID, &a.Title, &a.Message, &a.Audience, &readBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		decodeJSON(readBy, &a.ReadBy)
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) MarkAnnouncementReadTx(ctx context.Context, tx *sql.Tx, id, readerID string) error {
	var readBy string
	err := tx.QueryRowContext(ctx, `SELECT read_by_json FROM announcements WHERE id=?`, id).Scan(&readBy)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var readers []string
	decodeJSON(readBy, &readers)
	for _, r := range readers {
		if r == readerID {
			return nil
		}
	}
	readers = append(readers, readerID)
	_, err = tx.ExecContext(ctx, `UPDATE announcements SET read_by_json=? WHERE id=?`, encodeJSON(readers), id)
	return err
}

// Chat messages. Conversations are keyed by the sorted participant pair.

func ConvoKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "__" + b
}

func (r Repo) InsertMessageTx(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(id,convo_key,from_id,to_id,text,created_at) VALUES (?,?,?,?,?,?)`,
		m.ID, ConvoKey(m.From, m.To), m.From, m.To, m.Text, m.CreatedAt)
	return err
}

func (r Repo) ListMessages(ctx context.Context, a, b string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,from_id,to_id,text,created_at FROM messages WHERE convo_key=? ORDER BY created_at ASC`,
		ConvoKey(a, b))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
