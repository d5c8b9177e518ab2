package staff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tableside/internal/config"
	"tableside/internal/db"
	"tableside/internal/domain"
	"tableside/internal/events"
	"tableside/internal/migrate"
	"tableside/internal/staff"
)

func newService(t *testing.T) (staff.Service, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc := staff.New(conn, config.Default(), events.NewNotifier())
	svc.Now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return svc, context.Background()
}

func registerActive(t *testing.T, svc staff.Service, ctx context.Context, name, email string) domain.Employee {
	t.Helper()
	emp, err := svc.RegisterEmployee(ctx, name, email, "employee", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	emp, err = svc.SetEmployeeStatus(ctx, emp.ID, "Active", "owner-1")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	return emp
}

func TestEmployeeApprovalGate(t *testing.T) {
	svc, ctx := newService(t)
	emp, err := svc.RegisterEmployee(ctx, "Jordan", "jordan@example.com", "server", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if emp.Status != "Pending" {
		t.Fatalf("status = %s, want Pending", emp.Status)
	}

	if _, err := svc.AuthenticateEmployee(ctx, "jordan@example.com", "secret"); !errors.Is(err, staff.ErrNotActive) {
		t.Fatalf("pending sign-in: got %v, want ErrNotActive", err)
	}
	if _, err := svc.AuthenticateEmployee(ctx, "jordan@example.com", "wrong"); !errors.Is(err, staff.ErrBadCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}

	if _, err := svc.SetEmployeeStatus(ctx, emp.ID, "Active", "owner-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, err := svc.AuthenticateEmployee(ctx, "Jordan@Example.com", "secret")
	if err != nil {
		t.Fatalf("active sign-in: %v", err)
	}
	if got.ID != emp.ID {
		t.Fatalf("signed in as %s, want %s", got.ID, emp.ID)
	}
}

func TestCustomerLoginByEmailOrPhone(t *testing.T) {
	svc, ctx := newService(t)
	c, err := svc.RegisterCustomer(ctx, "Avery", "avery@example.com", "555-123-4567", "pass1234")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.AuthenticateCustomer(ctx, "avery@example.com", "pass1234"); err != nil {
		t.Fatalf("email login: %v", err)
	}
	got, err := svc.AuthenticateCustomer(ctx, "555-123-4567", "pass1234")
	if err != nil {
		t.Fatalf("phone login: %v", err)
	}
	if got.ID != c.ID {
		t.Fatalf("logged in as %s, want %s", got.ID, c.ID)
	}
	if _, err := svc.AuthenticateCustomer(ctx, "nobody@example.com", "pass1234"); !errors.Is(err, staff.ErrBadCredentials) {
		t.Fatalf("unknown login: got %v", err)
	}
}

func TestEntryHours(t *testing.T) {
	cases := []struct {
		start, end string
		breakMins  int
		want       float64
	}{
		{"09:00", "17:30", 30, 8},
		{"09:00", "17:00", 0, 8},
		{"22:00", "06:00", 60, 7}, // overnight
		{"09:00", "09:00", 0, 24}, // full wrap
		{"09:00", "09:15", 30, 0}, // break longer than shift
	}
	for _, c := range cases {
		got, err := staff.EntryHours(c.start, c.end, c.breakMins)
		if err != nil {
			t.Fatalf("EntryHours(%s,%s,%d): %v", c.start, c.end, c.breakMins, err)
		}
		if got != c.want {
			t.Fatalf("EntryHours(%s,%s,%d) = %v, want %v", c.start, c.end, c.breakMins, got, c.want)
		}
	}
	if _, err := staff.EntryHours("9am", "17:00", 0); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWeekTotalsOvertimeSplit(t *testing.T) {
	svc, ctx := newService(t)
	emp := registerActive(t, svc, ctx, "Riley", "riley@example.com")

	// Mon 2026-03-02 .. Sat 2026-03-07: five 9h days plus one 3h day = 48h
	days := []struct {
		date  string
		hours string
	}{
		{"2026-03-02", "18:00"}, {"2026-03-03", "18:00"}, {"2026-03-04", "18:00"},
		{"2026-03-05", "18:00"}, {"2026-03-06", "18:00"}, {"2026-03-07", "12:00"},
	}
	for _, d := range days {
		entry, err := svc.SubmitTimesheet(ctx, domain.TimesheetEntry{
			EmployeeID: emp.ID,
			Date:       d.date,
			DayType:    "Work",
			Start:      "09:00",
			End:        d.hours,
		})
		if err != nil {
			t.Fatalf("submit %s: %v", d.date, err)
		}
		if _, err := svc.DecideTimesheet(ctx, entry.ID, true, "owner-1"); err != nil {
			t.Fatalf("accept %s: %v", d.date, err)
		}
	}
	// a pending day and an off day must not count toward hours
	if _, err := svc.SubmitTimesheet(ctx, domain.TimesheetEntry{
		EmployeeID: emp.ID, Date: "2026-03-08", DayType: "Work", Start: "09:00", End: "17:00",
	}); err != nil {
		t.Fatalf("submit pending: %v", err)
	}
	off, err := svc.SubmitTimesheet(ctx, domain.TimesheetEntry{EmployeeID: emp.ID, Date: "2026-03-04", DayType: "Off"})
	if err != nil {
		t.Fatalf("submit off: %v", err)
	}
	if _, err := svc.DecideTimesheet(ctx, off.ID, true, "owner-1"); err != nil {
		t.Fatalf("accept off: %v", err)
	}

	totals, err := svc.WeekTotalsFor(ctx, emp.ID, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("week totals: %v", err)
	}
	if totals.Total != 48 {
		t.Fatalf("total = %v, want 48", totals.Total)
	}
	if totals.Regular != 40 || totals.Overtime != 8 {
		t.Fatalf("split = %v/%v, want 40/8", totals.Regular, totals.Overtime)
	}
	if totals.Counts["Work"] != 6 || totals.Counts["Off"] != 1 {
		t.Fatalf("counts = %v", totals.Counts)
	}
}

func TestOvertimeMonthlyCap(t *testing.T) {
	svc, ctx := newService(t)
	svc.Config.Store.OvertimeMonthCapHours = 10
	emp := registerActive(t, svc, ctx, "Riley", "riley@example.com")

	// Mon..Fri at 9h each: 45h, five hours of overtime, still under the cap.
	for _, date := range []string{"2026-03-02", "2026-03-03", "2026-03-04", "2026-03-05", "2026-03-06"} {
		entry, err := svc.SubmitTimesheet(ctx, domain.TimesheetEntry{
			EmployeeID: emp.ID, Date: date, DayType: "Work", Start: "09:00", End: "18:00",
		})
		if err != nil {
			t.Fatalf("submit %s: %v", date, err)
		}
		if _, err := svc.DecideTimesheet(ctx, entry.ID, true, "owner-1"); err != nil {
			t.Fatalf("accept %s: %v", date, err)
		}
	}

	// Saturday would take the week to 54h and month overtime to 14.
	sat, err := svc.SubmitTimesheet(ctx, domain.TimesheetEntry{
		EmployeeID: emp.ID, Date: "2026-03-07", DayType: "Work", Start: "09:00", End: "18:00",
	})
	if err != nil {
		t.Fatalf("submit sat: %v", err)
	}
	if _, err := svc.DecideTimesheet(ctx, sat.ID, true, "owner-1"); err == nil {
		t.Fatalf("approval past the overtime cap must be rejected")
	}
	// the rejected entry stays pending and still counts for nothing
	totals, err := svc.WeekTotalsFor(ctx, emp.ID, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("week totals: %v", err)
	}
	if totals.Total != 45 {
		t.Fatalf("total = %v, want 45", totals.Total)
	}
	// denying it is still allowed
	if _, err := svc.DecideTimesheet(ctx, sat.ID, false, "owner-1"); err != nil {
		t.Fatalf("deny: %v", err)
	}
}

func TestWeekStartIsMonday(t *testing.T) {
	// 2026-03-04 is a Wednesday; 2026-03-02 is the Monday before it.
	got := staff.WeekStart(time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC))
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("WeekStart = %v, want %v", got, want)
	}
	// Sunday belongs to the week that started six days earlier.
	got = staff.WeekStart(time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC))
	if !got.Equal(want) {
		t.Fatalf("Sunday WeekStart = %v, want %v", got, want)
	}
}

func TestLeaveAllowancePerMonth(t *testing.T) {
	svc, ctx := newService(t)
	emp := registerActive(t, svc, ctx, "Riley", "riley@example.com")

	req, err := svc.RequestLeave(ctx, emp.ID, "2026-03-10", "2026-03-11", "trip")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.DecideLeave(ctx, req.ID, true, "owner-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	bal, err := svc.LeaveBalance(ctx, emp.ID, 2026, time.March)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Allowed != 3 || bal.Used != 2 || bal.Remaining != 1 {
		t.Fatalf("balance = %+v, want 3/2/1", bal)
	}

	// two more days would exceed the three-day March allowance
	if _, err := svc.RequestLeave(ctx, emp.ID, "2026-03-20", "2026-03-21", ""); err == nil {
		t.Fatalf("over-allowance request must be rejected")
	}
	// one more day fits exactly
	if _, err := svc.RequestLeave(ctx, emp.ID, "2026-03-20", "2026-03-20", ""); err != nil {
		t.Fatalf("exact-fit request: %v", err)
	}
	// denied requests never consume allowance, so April is untouched
	bal, err = svc.LeaveBalance(ctx, emp.ID, 2026, time.April)
	if err != nil {
		t.Fatalf("april balance: %v", err)
	}
	if bal.Used != 0 {
		t.Fatalf("april used = %d, want 0", bal.Used)
	}
}

func TestLeaveSpanningMonths(t *testing.T) {
	svc, ctx := newService(t)
	emp := registerActive(t, svc, ctx, "Riley", "riley@example.com")

	// Mar 30 .. Apr 1: two March days, one April day
	req, err := svc.RequestLeave(ctx, emp.ID, "2026-03-30", "2026-04-01", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.DecideLeave(ctx, req.ID, true, "owner-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	march, _ := svc.LeaveBalance(ctx, emp.ID, 2026, time.March)
	april, _ := svc.LeaveBalance(ctx, emp.ID, 2026, time.April)
	if march.Used != 2 || april.Used != 1 {
		t.Fatalf("used march=%d april=%d, want 2 and 1", march.Used, april.Used)
	}
}

func TestAnnouncementsAndMessages(t *testing.T) {
	svc, ctx := newService(t)
	emp := registerActive(t, svc, ctx, "Riley", "riley@example.com")

	a, err := svc.PostAnnouncement(ctx, "Deep clean", "Kitchen closes early Friday", "", "owner-1")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if a.Audience != "all" {
		t.Fatalf("audience = %s, want all", a.Audience)
	}
	if err := svc.MarkAnnouncementRead(ctx, a.ID, emp.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	list, err := svc.Repo.ListAnnouncements(ctx, "employee")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || len(list[0].ReadBy) != 1 || list[0].ReadBy[0] != emp.ID {
		t.Fatalf("announcements = %+v", list)
	}

	if _, err := svc.SendMessage(ctx, "owner-1", emp.ID, "Can you cover Saturday?"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.SendMessage(ctx, emp.ID, "owner-1", "Sure."); err != nil {
		t.Fatalf("reply: %v", err)
	}
	msgs, err := svc.Repo.ListMessages(ctx, emp.ID, "owner-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if _, err := svc.SendMessage(ctx, emp.ID, emp.ID, "hi"); err == nil {
		t.Fatalf("self-message must be rejected")
	}
}
