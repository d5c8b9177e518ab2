package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"tableside/internal/config"
	"tableside/internal/db"
	"tableside/internal/domain"
	"tableside/internal/engine"
	"tableside/internal/events"
	"tableside/internal/geo"
	"tableside/internal/migrate"
	"tableside/internal/staff"
)

const testSecret = "test-secret"

type fakeGeocoder struct{}

func (fakeGeocoder) Forward(ctx context.Context, address string, bias domain.LatLng) (domain.LatLng, error) {
	return domain.LatLng{Lat: 40.72, Lng: -74.01}, nil
}

type fakeRouter struct{}

func (fakeRouter) Route(ctx context.Context, from, to domain.LatLng) (geo.Route, error) {
	return geo.Route{DistanceKm: 3.2, DurationMin: 18}, nil
}

type testServer struct {
	URL    string
	Engine engine.Engine
	Staff  staff.Service
	client *http.Client
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	notifier := events.NewNotifier()
	e := engine.New(conn, cfg, notifier)
	e.Geocoder = fakeGeocoder{}
	e.Router = fakeRouter{}
	s := staff.New(conn, cfg, notifier)
	handler, err := New(Config{
		Engine:   e,
		Staff:    s,
		Notifier: notifier,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		Staff:  s,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
	return testSrv
}

func token(t *testing.T, id, name, role string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, id, name, role, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + tok
}

func doJSON(t *testing.T, client *http.Client, method, url, authz string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/orders", "", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/health", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", res.StatusCode)
	}
}

func TestCustomerRegisterAndOrder(t *testing.T) {
	srv := newTestServer(t)

	res, body := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/auth/register", "", RegisterCustomerRequest{
		Name: "Avery", Email: "avery@example.com", Password: "pass1234",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d: %s", res.StatusCode, body)
	}
	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.Token == "" {
		t.Fatalf("token response: %v %s", err, body)
	}
	authz := "Bearer " + tok.Token

	res, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/orders", authz, PlaceOrderRequest{
		ServiceType: domain.ServicePickup,
		Items: []domain.OrderItem{
			{ID: "m1", Name: "Burger", Qty: 1, Price: 8.50},
			{ID: "m2", Name: "Fries", Qty: 1, Price: 4.50},
		},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("place status = %d: %s", res.StatusCode, body)
	}
	var placed OrderResponse
	if err := json.Unmarshal(body, &placed); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if placed.Totals.Total != 14.14 {
		t.Fatalf("total = %v, want 14.14", placed.Totals.Total)
	}
	if placed.CustomerID != tok.ID {
		t.Fatalf("customer id = %s, want %s", placed.CustomerID, tok.ID)
	}

	// customer listing only shows their own orders
	res, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/orders", authz, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", res.StatusCode)
	}
	var mine []OrderResponse
	if err := json.Unmarshal(body, &mine); err != nil || len(mine) != 1 {
		t.Fatalf("list = %s", body)
	}

	other := token(t, "someone-else", "Else", RoleCustomer)
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/orders/"+placed.ID, other, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign read status = %d, want 403", res.StatusCode)
	}
}

func TestKitchenFlowAndRevisionConflict(t *testing.T) {
	srv := newTestServer(t)
	customer := token(t, "cust-1", "Avery", RoleCustomer)
	kitchen := token(t, "kit-1", "Kitchen", RoleKitchen)

	res, body := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/orders", customer, PlaceOrderRequest{
		ServiceType: domain.ServicePickup,
		Items:       []domain.OrderItem{{ID: "m1", Name: "Burger", Qty: 1, Price: 8.50}},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("place: %d %s", res.StatusCode, body)
	}
	var placed OrderResponse
	json.Unmarshal(body, &placed)

	// customers cannot drive the kitchen flow
	res, _ = doJSON(t, srv.client, http.MethodPatch, srv.URL+"/v1/orders/"+placed.ID+"/status", customer,
		SetStatusRequest{Status: domain.StatusAccepted})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("customer transition status = %d, want 403", res.StatusCode)
	}

	res, body = doJSON(t, srv.client, http.MethodPatch, srv.URL+"/v1/orders/"+placed.ID+"/status", kitchen,
		SetStatusRequest{Status: domain.StatusAccepted, Revision: placed.Revision})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, body)
	}

	// the same stale revision now loses
	res, body = doJSON(t, srv.client, http.MethodPatch, srv.URL+"/v1/orders/"+placed.ID+"/status", kitchen,
		SetStatusRequest{Status: domain.StatusCooking, Revision: placed.Revision})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("stale write status = %d, want 409: %s", res.StatusCode, body)
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code != "revision_conflict" {
		t.Fatalf("error envelope = %s", body)
	}

	res, body = doJSON(t, srv.client, http.MethodPut, srv.URL+"/v1/orders/"+placed.ID+"/eta", kitchen,
		SetETARequest{Minutes: 15})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("eta: %d %s", res.StatusCode, body)
	}
	var withETA OrderResponse
	json.Unmarshal(body, &withETA)
	if withETA.ETA == nil || withETA.ETA.Minutes != 15 || withETA.RemainingMS <= 0 {
		t.Fatalf("eta response = %s", body)
	}
}

func TestDeliveryFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	customer := token(t, "cust-1", "Avery", RoleCustomer)
	kitchen := token(t, "kit-1", "Kitchen", RoleKitchen)
	driver := token(t, "drv-1", "Sam", RoleDriver)

	res, body := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/delivery/quote", "", QuoteRequest{
		Address: "1 Main St", Phone: "555-123-4567",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("quote: %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/orders", customer, PlaceOrderRequest{
		ServiceType: domain.ServiceDelivery,
		Items:       []domain.OrderItem{{ID: "m1", Name: "Burger", Qty: 2, Price: 8.50}},
		Address:     "1 Main St",
		Phone:       "555-123-4567",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("place: %d %s", res.StatusCode, body)
	}
	var placed OrderResponse
	json.Unmarshal(body, &placed)

	for _, next := range []string{domain.StatusAccepted, domain.StatusCooking, domain.StatusReadyForPickup} {
		res, body = doJSON(t, srv.client, http.MethodPatch, srv.URL+"/v1/orders/"+placed.ID+"/status", kitchen,
			SetStatusRequest{Status: next})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("to %s: %d %s", next, res.StatusCode, body)
		}
	}

	// the driver pool shows the ready order
	res, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/orders", driver, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pool: %d", res.StatusCode)
	}
	var pool []OrderResponse
	if err := json.Unmarshal(body, &pool); err != nil || len(pool) != 1 {
		t.Fatalf("pool = %s", body)
	}

	res, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/orders/"+placed.ID+"/claim", driver,
		map[string]any{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("claim: %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, srv.client, http.MethodPut, srv.URL+"/v1/orders/"+placed.ID+"/location", driver,
		DriverLocationRequest{Lat: 40.721, Lng: -74.009})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("location: %d %s", res.StatusCode, body)
	}
	var located OrderResponse
	json.Unmarshal(body, &located)
	if !located.DriverNearby {
		t.Fatalf("driver ~0.1 km out should read nearby: %s", body)
	}

	res, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/orders/"+placed.ID+"/delivered", driver,
		MarkDeliveredRequest{})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("photoless delivery status = %d, want 422: %s", res.StatusCode, body)
	}
	res, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/orders/"+placed.ID+"/delivered", driver,
		MarkDeliveredRequest{Photo: "data:image/jpeg;base64,abc"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delivered: %d %s", res.StatusCode, body)
	}
	var done OrderResponse
	json.Unmarshal(body, &done)
	if done.Status != domain.StatusDelivered || done.RemainingMS != 0 {
		t.Fatalf("terminal order = %s", body)
	}
}

func TestReservationConflictOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	customer := token(t, "cust-1", "Avery", RoleCustomer)

	res, body := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/reservations", customer, CreateReservationRequest{
		Table: 2, Start: "2026-03-05T18:00:00Z", End: "2026-03-05T19:00:00Z", Name: "Avery",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("reserve: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/reservations", customer, CreateReservationRequest{
		Table: 2, Start: "2026-03-05T18:30:00Z", End: "2026-03-05T19:30:00Z", Name: "Blake",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("overlap status = %d, want 409: %s", res.StatusCode, body)
	}
}

func TestStaffLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	owner := seedOwner(t, srv)

	res, body := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/employees/register", "", RegisterEmployeeRequest{
		Name: "Jordan", Email: "jordan@example.com", Role: "kitchen", Password: "secret",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %s", res.StatusCode, body)
	}
	var emp domain.Employee
	json.Unmarshal(body, &emp)

	// pending sign-in is blocked
	res, _ = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/employees/login", "", LoginRequest{
		Login: "jordan@example.com", Password: "secret",
	})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("pending login status = %d, want 403", res.StatusCode)
	}

	res, body = doJSON(t, srv.client, http.MethodPatch, srv.URL+"/v1/employees/"+emp.ID+"/status", owner,
		SetEmployeeStatusRequest{Status: "Active"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/employees/login", "", LoginRequest{
		Login: "jordan@example.com", Password: "secret",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", res.StatusCode, body)
	}
	var tok TokenResponse
	json.Unmarshal(body, &tok)
	if tok.Role != RoleKitchen {
		t.Fatalf("role = %s, want kitchen", tok.Role)
	}
	authz := "Bearer " + tok.Token

	res, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/timesheets", authz, SubmitTimesheetRequest{
		Date: "2026-03-02", DayType: "Work", Start: "09:00", End: "17:30", BreakMins: 30,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("timesheet: %d %s", res.StatusCode, body)
	}
	var entry domain.TimesheetEntry
	json.Unmarshal(body, &entry)
	if entry.Hours != 8 {
		t.Fatalf("hours = %v, want 8", entry.Hours)
	}

	res, body = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/timesheets/"+entry.ID+"/decision", owner,
		DecisionRequest{Accept: true})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decide: %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/timesheets/week?date=2026-03-02", authz, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("week: %d %s", res.StatusCode, body)
	}
	var totals domain.WeeklyTotals
	json.Unmarshal(body, &totals)
	if totals.Total != 8 {
		t.Fatalf("week total = %v, want 8", totals.Total)
	}
}

func seedOwner(t *testing.T, srv *testServer) string {
	t.Helper()
	ctx := context.Background()
	emp, err := srv.Staff.RegisterEmployee(ctx, "Owner", "owner@example.com", RoleOwner, "ownerpass")
	if err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if _, err := srv.Staff.SetEmployeeStatus(ctx, emp.ID, "Active", emp.ID); err != nil {
		t.Fatalf("activate owner: %v", err)
	}
	res, body := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/owners/login", "", LoginRequest{
		Login: "owner@example.com", Password: "ownerpass",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("owner login: %d %s", res.StatusCode, body)
	}
	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		t.Fatalf("owner token: %v", err)
	}
	return "Bearer " + tok.Token
}

func TestEventsFeed(t *testing.T) {
	srv := newTestServer(t)
	customer := token(t, "cust-1", "Avery", RoleCustomer)
	kitchen := token(t, "kit-1", "Kitchen", RoleKitchen)

	res, body := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/orders", customer, PlaceOrderRequest{
		ServiceType: domain.ServicePickup,
		Items:       []domain.OrderItem{{ID: "m1", Name: "Burger", Qty: 1, Price: 8.50}},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("place: %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/events?after=0", kitchen, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, body)
	}
	var evts []domain.Event
	if err := json.Unmarshal(body, &evts); err != nil || len(evts) == 0 {
		t.Fatalf("events = %s", body)
	}
	if evts[0].Type != events.OrderPlaced {
		t.Fatalf("first event = %s, want %s", evts[0].Type, events.OrderPlaced)
	}

	// customers are not on the operational feed
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/events", customer, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("customer feed status = %d, want 403", res.StatusCode)
	}
}
