// Package staff is the back-office: accounts, shifts, timesheets, leave,
// announcements, and direct messages.
package staff

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/events"
	"tableside/internal/repo"
)

type Service struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, notifier *events.Notifier) Service {
	return Service{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db, Notifier: notifier},
		Config: cfg,
		Now:    time.Now,
	}
}

var (
	ErrBadCredentials = errors.New("invalid email or password")
	// ErrNotActive blocks sign-in until the owner approves the account.
	ErrNotActive = errors.New("account is not active")
)

// RuleError mirrors the order engine's business-rule rejection.
type RuleError struct {
	Reason string
}

func (e RuleError) Error() string { return e.Reason }

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) nowISO() string {
	return s.now().UTC().Format(time.RFC3339)
}

// Passwords are stored as salt$sha256(salt+password), both hex.

func hashPassword(password string) string {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	sum := sha256.Sum256(append(salt, []byte(password)...))
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(sum[:])
}

func checkPassword(stored, password string) bool {
	saltHex, wantHex, ok := strings.Cut(stored, "$")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(append(salt, []byte(password)...))
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(wantHex)) == 1
}

// RegisterCustomer creates a customer account keyed by email or phone.
func (s Service) RegisterCustomer(ctx context.Context, name, email, phone, password string) (domain.Customer, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	phone = strings.TrimSpace(phone)
	if name == "" || (email == "" && phone == "") || len(password) < 4 {
		return domain.Customer{}, RuleError{Reason: "name, a contact, and a password of at least 4 characters are required"}
	}
	c := domain.Customer{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Phone:     phone,
		CreatedAt: s.nowISO(),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Customer{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertCustomerTx(ctx, tx, c, hashPassword(password)); err != nil {
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

func (s Service) AuthenticateCustomer(ctx context.Context, login, password string) (domain.Customer, error) {
	c, hash, err := s.Repo.FindCustomerByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Customer{}, ErrBadCredentials
		}
		return domain.Customer{}, err
	}
	if !checkPassword(hash, password) {
		return domain.Customer{}, ErrBadCredentials
	}
	return c, nil
}

// RegisterEmployee creates a pending account; the owner must approve it
// before sign-in works.
func (s Service) RegisterEmployee(ctx context.Context, name, email, role, password string) (domain.Employee, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || len(password) < 4 {
		return domain.Employee{}, RuleError{Reason: "name, email, and a password of at least 4 characters are required"}
	}
	if role == "" {
		role = "employee"
	}
	now := s.nowISO()
	emp := domain.Employee{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		Status:    "Pending",
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertEmployeeTx(ctx, tx, emp, hashPassword(password)); err != nil {
		return domain.Employee{}, fmt.Errorf("insert employee: %w", err)
	}
	if err := s.Events.Append(ctx, tx, events.EmployeeRegistered, "employee", emp.ID, emp.ID, events.EventPayload{"role": role}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	s.Events.Notify()
	return emp, nil
}

func (s Service) AuthenticateEmployee(ctx context.Context, email, password string) (domain.Employee, error) {
	emp, hash, err := s.Repo.FindEmployeeByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Employee{}, ErrBadCredentials
		}
		return domain.Employee{}, err
	}
	if !checkPassword(hash, password) {
		return domain.Employee{}, ErrBadCredentials
	}
	if emp.Status != "Active" {
		return domain.Employee{}, ErrNotActive
	}
	return emp, nil
}

// SetEmployeeStatus is the owner's approve/reject/deactivate switch.
func (s Service) SetEmployeeStatus(ctx context.Context, id, status, actorID string) (domain.Employee, error) {
	switch status {
	case "Active", "Inactive", "Rejected":
	default:
		return domain.Employee{}, RuleError{Reason: fmt.Sprintf("unknown employee status %q", status)}
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()
	now := s.nowISO()
	if err := s.Repo.SetEmployeeStatusTx(ctx, tx, id, status, now); err != nil {
		return domain.Employee{}, err
	}
	if err := s.Events.Append(ctx, tx, events.EmployeeStatusSet, "employee", id, actorID, events.EventPayload{"status": status}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	s.Events.Notify()
	return s.Repo.GetEmployee(ctx, id)
}

func (s Service) AddShift(ctx context.Context, employeeID, day, start, end string) (domain.Shift, error) {
	if _, err := parseClock(start); err != nil {
		return domain.Shift{}, RuleError{Reason: "start must be HH:MM"}
	}
	if _, err := parseClock(end); err != nil {
		return domain.Shift{}, RuleError{Reason: "end must be HH:MM"}
	}
	if !validDay(day) {
		return domain.Shift{}, RuleError{Reason: fmt.Sprintf("unknown day %q", day)}
	}
	sh := domain.Shift{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Day:        day,
		Start:      start,
		End:        end,
		CreatedAt:  s.nowISO(),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Shift{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertShiftTx(ctx, tx, sh); err != nil {
		return domain.Shift{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Shift{}, err
	}
	return sh, nil
}

func validDay(day string) bool {
	switch day {
	case "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun":
		return true
	}
	return false
}

// SubmitTimesheet records one day; worked hours are computed server-side
// from the clock times, never trusted from the caller.
func (s Service) SubmitTimesheet(ctx context.Context, entry domain.TimesheetEntry) (domain.TimesheetEntry, error) {
	if _, err := time.Parse("2006-01-02", entry.Date); err != nil {
		return domain.TimesheetEntry{}, RuleError{Reason: "date must be YYYY-MM-DD"}
	}
	switch entry.DayType {
	case "Work":
		h, err := EntryHours(entry.Start, entry.End, entry.BreakMins)
		if err != nil {
			return domain.TimesheetEntry{}, RuleError{Reason: err.Error()}
		}
		entry.Hours = h
	case "Off", "Sick", "Leave":
		entry.Start, entry.End, entry.BreakMins, entry.Hours = "", "", 0, 0
	default:
		return domain.TimesheetEntry{}, RuleError{Reason: fmt.Sprintf("unknown day type %q", entry.DayType)}
	}
	entry.ID = uuid.NewString()
	entry.Status = "Pending"
	entry.CreatedAt = s.nowISO()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimesheetEntry{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertTimesheetTx(ctx, tx, entry); err != nil {
		return domain.TimesheetEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimesheetEntry{}, err
	}
	return entry, nil
}

func (s Service) DecideTimesheet(ctx context.Context, id string, accept bool, actorID string) (domain.TimesheetEntry, error) {
	entry, err := s.Repo.GetTimesheet(ctx, id)
	if err != nil {
		return domain.TimesheetEntry{}, err
	}
	if entry.Status != "Pending" {
		return domain.TimesheetEntry{}, RuleError{Reason: "timesheet entry is already decided"}
	}
	status := "Denied"
	if accept {
		status = "Accepted"
		if err := s.checkOvertimeCaps(ctx, entry); err != nil {
			return domain.TimesheetEntry{}, err
		}
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimesheetEntry{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.SetTimesheetStatusTx(ctx, tx, id, status); err != nil {
		return domain.TimesheetEntry{}, err
	}
	if err := s.Events.Append(ctx, tx, events.TimesheetDecided, "timesheet", id, actorID, events.EventPayload{"status": status}); err != nil {
		return domain.TimesheetEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimesheetEntry{}, err
	}
	s.Events.Notify()
	entry.Status = status
	return entry, nil
}

// checkOvertimeCaps rejects an approval that would push the employee's
// accepted overtime past the monthly or yearly cap. Overtime is counted per
// Monday week bucket, as in the weekly totals.
func (s Service) checkOvertimeCaps(ctx context.Context, entry domain.TimesheetEntry) error {
	if entry.DayType != "Work" {
		return nil
	}
	d, err := time.Parse("2006-01-02", entry.Date)
	if err != nil {
		return nil
	}
	accepted, err := s.Repo.ListTimesheets(ctx, entry.EmployeeID, "Accepted")
	if err != nil {
		return err
	}
	projected := append(accepted, entry)
	if limit := s.Config.Store.OvertimeMonthCapHours; limit > 0 {
		ot := overtimeHours(projected, func(t time.Time) bool {
			return t.Year() == d.Year() && t.Month() == d.Month()
		})
		if ot > limit {
			return RuleError{Reason: fmt.Sprintf("overtime would exceed %.0f hours in %s", limit, d.Format("January 2006"))}
		}
	}
	if limit := s.Config.Store.OvertimeYearCapHours; limit > 0 {
		ot := overtimeHours(projected, func(t time.Time) bool { return t.Year() == d.Year() })
		if ot > limit {
			return RuleError{Reason: fmt.Sprintf("overtime would exceed %.0f hours in %d", limit, d.Year())}
		}
	}
	return nil
}

// RequestLeave validates the window and checks the per-month allowance for
// every month the request touches.
func (s Service) RequestLeave(ctx context.Context, employeeID, from, to, reason string) (domain.LeaveRequest, error) {
	f, err := time.Parse("2006-01-02", from)
	if err != nil {
		return domain.LeaveRequest{}, RuleError{Reason: "from must be YYYY-MM-DD"}
	}
	t, err := time.Parse("2006-01-02", to)
	if err != nil {
		return domain.LeaveRequest{}, RuleError{Reason: "to must be YYYY-MM-DD"}
	}
	if t.Before(f) {
		return domain.LeaveRequest{}, RuleError{Reason: "to must not be before from"}
	}
	for month := monthOf(f); !month.After(monthOf(t)); month = month.AddDate(0, 1, 0) {
		bal, err := s.LeaveBalance(ctx, employeeID, month.Year(), month.Month())
		if err != nil {
			return domain.LeaveRequest{}, err
		}
		requested := daysInMonth(f, t, month)
		if requested > bal.Remaining {
			return domain.LeaveRequest{}, RuleError{Reason: fmt.Sprintf(
				"only %d leave day(s) left in %s", bal.Remaining, month.Format("January 2006"))}
		}
	}
	req := domain.LeaveRequest{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		From:       from,
		To:         to,
		Reason:     strings.TrimSpace(reason),
		Status:     "Pending",
		CreatedAt:  s.nowISO(),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LeaveRequest{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertLeaveTx(ctx, tx, req); err != nil {
		return domain.LeaveRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LeaveRequest{}, err
	}
	return req, nil
}

func (s Service) DecideLeave(ctx context.Context, id string, accept bool, actorID string) (domain.LeaveRequest, error) {
	req, err := s.Repo.GetLeave(ctx, id)
	if err != nil {
		return domain.LeaveRequest{}, err
	}
	if req.Status != "Pending" {
		return domain.LeaveRequest{}, RuleError{Reason: "leave request is already decided"}
	}
	status := "Denied"
	if accept {
		status = "Accepted"
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LeaveRequest{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.SetLeaveStatusTx(ctx, tx, id, status); err != nil {
		return domain.LeaveRequest{}, err
	}
	if err := s.Events.Append(ctx, tx, events.LeaveDecided, "leave", id, actorID, events.EventPayload{"status": status}); err != nil {
		return domain.LeaveRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LeaveRequest{}, err
	}
	s.Events.Notify()
	req.Status = status
	return req, nil
}

// LeaveBalance counts accepted leave days, inclusive of both endpoints and
// clipped to the given month.
func (s Service) LeaveBalance(ctx context.Context, employeeID string, year int, month time.Month) (domain.LeaveBalance, error) {
	allowed := s.Config.Store.LeaveDaysPerMonth
	reqs, err := s.Repo.ListLeave(ctx, employeeID, "Accepted")
	if err != nil {
		return domain.LeaveBalance{}, err
	}
	target := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	used := 0
	for _, r := range reqs {
		f, err := time.Parse("2006-01-02", r.From)
		if err != nil {
			continue
		}
		t, err := time.Parse("2006-01-02", r.To)
		if err != nil {
			continue
		}
		used += daysInMonth(f, t, target)
	}
	return domain.LeaveBalance{Allowed: allowed, Used: used, Remaining: allowed - used}, nil
}

func monthOf(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// daysInMonth counts the days of [from, to] that fall inside month.
func daysInMonth(from, to, month time.Time) int {
	start := month
	end := month.AddDate(0, 1, -1)
	if from.After(start) {
		start = from
	}
	if to.Before(end) {
		end = to
	}
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

func (s Service) PostAnnouncement(ctx context.Context, title, message, audience, actorID string) (domain.Announcement, error) {
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(message) == "" {
		return domain.Announcement{}, RuleError{Reason: "title and message are required"}
	}
	if audience == "" {
		audience = "all"
	}
	a := domain.Announcement{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   strings.TrimSpace(message),
		Audience:  audience,
		CreatedAt: s.nowISO(),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Announcement{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertAnnouncementTx(ctx, tx, a); err != nil {
		return domain.Announcement{}, err
	}
	if err := s.Events.Append(ctx, tx, events.AnnouncementPosted, "announcement", a.ID, actorID, events.EventPayload{"audience": audience}); err != nil {
		return domain.Announcement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Announcement{}, err
	}
	s.Events.Notify()
	return a, nil
}

func (s Service) MarkAnnouncementRead(ctx context.Context, id, readerID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.Repo.MarkAnnouncementReadTx(ctx, tx, id, readerID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s Service) SendMessage(ctx context.Context, from, to, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, RuleError{Reason: "message text is required"}
	}
	if from == "" || to == "" || from == to {
		return domain.Message{}, RuleError{Reason: "a message needs two distinct participants"}
	}
	m := domain.Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Text:      text,
		CreatedAt: s.nowISO(),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertMessageTx(ctx, tx, m); err != nil {
		return domain.Message{}, err
	}
	if err := s.Events.Append(ctx, tx, events.MessageSent, "message", m.ID, from, events.EventPayload{"to": to}); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	s.Events.Notify()
	return m, nil
}
