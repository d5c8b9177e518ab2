package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tableside/internal/config"
	"tableside/internal/db"
	"tableside/internal/domain"
	"tableside/internal/engine"
	"tableside/internal/events"
	"tableside/internal/geo"
	"tableside/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Router *fakeRouter
}

type fakeGeocoder struct {
	Point domain.LatLng
}

func (f *fakeGeocoder) Forward(ctx context.Context, address string, bias domain.LatLng) (domain.LatLng, error) {
	return f.Point, nil
}

type fakeRouter struct {
	Km  float64
	Min int
}

func (f *fakeRouter) Route(ctx context.Context, from, to domain.LatLng) (geo.Route, error) {
	return geo.Route{DistanceKm: f.Km, DurationMin: f.Min}, nil
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg, events.NewNotifier())
	eng.Now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	router := &fakeRouter{Km: 3.2, Min: 18}
	eng.Geocoder = &fakeGeocoder{Point: domain.LatLng{Lat: 40.72, Lng: -74.0}}
	eng.Router = router
	return testEnv{Engine: eng, Ctx: context.Background(), Router: router}
}

func placePickup(t *testing.T, env testEnv, items []domain.OrderItem) domain.Order {
	t.Helper()
	o, err := env.Engine.PlaceOrder(env.Ctx, engine.PlaceOrderOptions{
		ServiceType: domain.ServicePickup,
		CustomerID:  "cust-1",
		Items:       items,
		ActorID:     "cust-1",
	})
	if err != nil {
		t.Fatalf("place pickup: %v", err)
	}
	return o
}

func TestPickupTotals(t *testing.T) {
	env := newTestEnv(t)
	o := placePickup(t, env, []domain.OrderItem{
		{ID: "m1", Name: "Burger", Qty: 1, Price: 8.50},
		{ID: "m2", Name: "Fries", Qty: 1, Price: 4.50},
	})
	if o.Totals.Subtotal != 13.00 {
		t.Fatalf("subtotal = %v, want 13.00", o.Totals.Subtotal)
	}
	if o.Totals.Tax != 1.14 {
		t.Fatalf("tax = %v, want 1.14", o.Totals.Tax)
	}
	if o.Totals.Total != 14.14 {
		t.Fatalf("total = %v, want 14.14", o.Totals.Total)
	}
	if o.Totals.DeliveryFee != 0 {
		t.Fatalf("pickup order should have no delivery fee, got %v", o.Totals.DeliveryFee)
	}
	rc, err := env.Engine.ReceiptForOrder(env.Ctx, o.ID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if rc.Total != o.Totals.Total || rc.OrderID != o.ID {
		t.Fatalf("receipt mismatch: %+v", rc)
	}
}

func TestPickupStatusFlow(t *testing.T) {
	env := newTestEnv(t)
	o := placePickup(t, env, []domain.OrderItem{{ID: "m1", Name: "Burger", Qty: 1, Price: 8.50}})

	for _, next := range []string{domain.StatusAccepted, domain.StatusCooking, domain.StatusReady, domain.StatusServed} {
		var err error
		o, err = env.Engine.SetStatus(env.Ctx, o.ID, next, "kitchen-1", 0)
		if err != nil {
			t.Fatalf("to %s: %v", next, err)
		}
	}
	if o.Status != domain.StatusServed {
		t.Fatalf("status = %s", o.Status)
	}
	// terminal orders reject everything, including cancel
	if _, err := env.Engine.SetStatus(env.Ctx, o.ID, domain.StatusCancelled, "kitchen-1", 0); err == nil {
		t.Fatalf("expected rejection after SERVED")
	}

	o2 := placePickup(t, env, []domain.OrderItem{{ID: "m1", Name: "Burger", Qty: 1, Price: 8.50}})
	if _, err := env.Engine.SetStatus(env.Ctx, o2.ID, domain.StatusReady, "kitchen-1", 0); err == nil {
		t.Fatalf("expected rejection for skipped step")
	}
	if _, err := env.Engine.SetStatus(env.Ctx, o2.ID, domain.StatusReadyForPickup, "kitchen-1", 0); err == nil {
		t.Fatalf("READY_FOR_PICKUP must not apply to pickup orders")
	}
	if _, err := env.Engine.SetStatus(env.Ctx, o2.ID, domain.StatusCancelled, "kitchen-1", 0); err != nil {
		t.Fatalf("cancel from PLACED: %v", err)
	}
}

func TestDeliveryQuoteAndFee(t *testing.T) {
	env := newTestEnv(t)
	env.Router.Km = 12.4
	q, err := env.Engine.QuoteDelivery(env.Ctx, "1 Main St", "555-123-4567")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Fee != 12.29 {
		t.Fatalf("fee at 12.4 km = %v, want 12.29", q.Fee)
	}

	env.Router.Km = 30
	if _, err := env.Engine.QuoteDelivery(env.Ctx, "1 Main St", "555-123-4567"); err == nil {
		t.Fatalf("expected radius rejection at 30 km")
	}

	if _, err := env.Engine.QuoteDelivery(env.Ctx, "1 Main St", "555"); err == nil {
		t.Fatalf("expected phone rejection")
	}
}

func placeDelivery(t *testing.T, env testEnv) domain.Order {
	t.Helper()
	o, err := env.Engine.PlaceOrder(env.Ctx, engine.PlaceOrderOptions{
		ServiceType: domain.ServiceDelivery,
		CustomerID:  "cust-1",
		Items:       []domain.OrderItem{{ID: "m1", Name: "Burger", Qty: 2, Price: 8.50}},
		Address:     "1 Main St",
		Phone:       "555-123-4567",
		ActorID:     "cust-1",
	})
	if err != nil {
		t.Fatalf("place delivery: %v", err)
	}
	return o
}

func TestDeliveryLifecycle(t *testing.T) {
	env := newTestEnv(t)
	o := placeDelivery(t, env)
	if o.ETA == nil || o.ETA.Minutes != 18 {
		t.Fatalf("routed eta not seeded: %+v", o.ETA)
	}
	if o.Delivery == nil || o.Delivery.Coords == nil {
		t.Fatalf("drop coordinates missing")
	}

	for _, next := range []string{domain.StatusAccepted, domain.StatusCooking, domain.StatusReadyForPickup} {
		var err error
		o, err = env.Engine.SetStatus(env.Ctx, o.ID, next, "kitchen-1", 0)
		if err != nil {
			t.Fatalf("to %s: %v", next, err)
		}
	}
	// OUT_FOR_DELIVERY is reserved for the claim flow
	if _, err := env.Engine.SetStatus(env.Ctx, o.ID, domain.StatusOutForDelivery, "kitchen-1", 0); err == nil {
		t.Fatalf("kitchen must not set OUT_FOR_DELIVERY")
	}

	o, err := env.Engine.ClaimDelivery(env.Ctx, o.ID, "drv-1", "Sam", 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if o.Status != domain.StatusOutForDelivery || o.Driver == nil || o.Driver.ID != "drv-1" {
		t.Fatalf("claim result: %+v", o)
	}
	if _, err := env.Engine.ClaimDelivery(env.Ctx, o.ID, "drv-2", "Pat", 0); err == nil {
		t.Fatalf("second claim must lose")
	}

	t0 := time.Date(2026, 3, 2, 12, 5, 0, 0, time.UTC)
	o, err = env.Engine.RecordDriverLocation(env.Ctx, o.ID, "drv-1", domain.LatLng{Lat: 40.71, Lng: -74.01}, t0)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if o.Driver.LastLatLng == nil || o.Driver.LastLatLng.Lat != 40.71 {
		t.Fatalf("ping not stored: %+v", o.Driver)
	}
	// an out-of-order ping is dropped
	if _, err := env.Engine.RecordDriverLocation(env.Ctx, o.ID, "drv-1", domain.LatLng{Lat: 1, Lng: 1}, t0.Add(-time.Minute)); err == nil {
		t.Fatalf("stale ping must be rejected")
	}
	if _, err := env.Engine.RecordDriverLocation(env.Ctx, o.ID, "drv-2", domain.LatLng{Lat: 1, Lng: 1}, t0.Add(time.Minute)); err == nil {
		t.Fatalf("other driver must not ping this order")
	}

	if _, err := env.Engine.MarkDelivered(env.Ctx, o.ID, "drv-1", "", 0); err == nil {
		t.Fatalf("delivery without photo must be rejected")
	}
	o, err = env.Engine.MarkDelivered(env.Ctx, o.ID, "drv-1", "data:image/jpeg;base64,abc", 0)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if o.Status != domain.StatusDelivered || o.ETA != nil || o.Driver.DeliveredAt == nil {
		t.Fatalf("delivered state: %+v", o)
	}
	if ms := engine.RemainingMS(o, time.Date(2026, 3, 2, 12, 6, 0, 0, time.UTC)); ms != 0 {
		t.Fatalf("delivered order countdown = %d, want 0", ms)
	}
}

func TestDriverNearDrop(t *testing.T) {
	env := newTestEnv(t)
	drop := domain.LatLng{Lat: 40.7128, Lng: -74.0060}
	order := domain.Order{
		ServiceType: domain.ServiceDelivery,
		Status:      domain.StatusOutForDelivery,
		Delivery:    &domain.DeliveryInfo{Coords: &drop},
		Driver:      &domain.Driver{ID: "drv-1"},
	}
	// ~0.2 km north of the drop
	near := domain.LatLng{Lat: drop.Lat + 0.0018, Lng: drop.Lng}
	order.Driver.LastLatLng = &near
	if !env.Engine.DriverNearDrop(order) {
		t.Fatalf("0.2 km away should count as arrived")
	}
	// ~0.4 km north
	far := domain.LatLng{Lat: drop.Lat + 0.0036, Lng: drop.Lng}
	order.Driver.LastLatLng = &far
	if env.Engine.DriverNearDrop(order) {
		t.Fatalf("0.4 km away should not count as arrived")
	}
}

func TestETACountdown(t *testing.T) {
	env := newTestEnv(t)
	o := placePickup(t, env, []domain.OrderItem{{ID: "m1", Name: "Burger", Qty: 1, Price: 8.50}})

	o, err := env.Engine.SetETA(env.Ctx, o.ID, 10, "kitchen-1", 0)
	if err != nil {
		t.Fatalf("set eta: %v", err)
	}
	setAt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if got := engine.RemainingMS(o, setAt.Add(4*time.Minute)); got != (6 * time.Minute).Milliseconds() {
		t.Fatalf("remaining = %d, want 6m", got)
	}
	if got := engine.RemainingMS(o, setAt.Add(15*time.Minute)); got != 0 {
		t.Fatalf("expired countdown = %d, want 0", got)
	}
	if got := engine.ETAProgress(o, setAt.Add(4*time.Minute)); got != 0.4 {
		t.Fatalf("eta progress = %v, want 0.4", got)
	}
	if got := engine.ETAProgress(o, setAt.Add(15*time.Minute)); got != 1 {
		t.Fatalf("expired eta progress = %v, want 1", got)
	}

	// zero minutes clears the estimate
	o, err = env.Engine.SetETA(env.Ctx, o.ID, 0, "kitchen-1", 0)
	if err != nil {
		t.Fatalf("clear eta: %v", err)
	}
	if o.ETA != nil {
		t.Fatalf("eta not cleared: %+v", o.ETA)
	}
}

func TestRevisionConflict(t *testing.T) {
	env := newTestEnv(t)
	o := placePickup(t, env, []domain.OrderItem{{ID: "m1", Name: "Burger", Qty: 1, Price: 8.50}})

	if _, err := env.Engine.SetStatus(env.Ctx, o.ID, domain.StatusAccepted, "kitchen-1", o.Revision); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	_, err := env.Engine.SetStatus(env.Ctx, o.ID, domain.StatusCancelled, "kitchen-2", o.Revision)
	if !errors.Is(err, engine.ErrRevisionConflict) {
		t.Fatalf("second writer: got %v, want revision conflict", err)
	}
}

func TestLiveNotes(t *testing.T) {
	env := newTestEnv(t)
	o := placePickup(t, env, []domain.OrderItem{{ID: "m1", Name: "Burger", Qty: 1, Price: 8.50}})
	o, err := env.Engine.AddNote(env.Ctx, o.ID, "", "Out of fries, swapped for salad", "kitchen-1", 0)
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if len(o.LiveNotes) != 1 || o.LiveNotes[0].From != "Kitchen" {
		t.Fatalf("notes: %+v", o.LiveNotes)
	}
	if _, err := env.Engine.AddNote(env.Ctx, o.ID, "Kitchen", "   ", "kitchen-1", 0); err == nil {
		t.Fatalf("blank note must be rejected")
	}
}

func placeDineIn(t *testing.T, env testEnv, table int, price float64) domain.Order {
	t.Helper()
	o, err := env.Engine.PlaceOrder(env.Ctx, engine.PlaceOrderOptions{
		ServiceType: domain.ServiceDineIn,
		Table:       table,
		CustomerID:  "cust-1",
		Items:       []domain.OrderItem{{ID: "m1", Name: "Dish", Qty: 1, Price: price}},
		ActorID:     "cust-1",
	})
	if err != nil {
		t.Fatalf("place dine-in: %v", err)
	}
	return o
}

func TestDineInBill(t *testing.T) {
	env := newTestEnv(t)
	first := placeDineIn(t, env, 3, 10.00)
	second := placeDineIn(t, env, 3, 20.00)

	if first.DineInSessionID == nil || second.DineInSessionID == nil {
		t.Fatalf("session ids missing")
	}
	if *first.DineInSessionID != *second.DineInSessionID {
		t.Fatalf("orders on the same table must share a session")
	}
	sessionID := *first.DineInSessionID

	bill, err := env.Engine.BillTotals(env.Ctx, sessionID)
	if err != nil {
		t.Fatalf("bill: %v", err)
	}
	if len(bill.Orders) != 2 {
		t.Fatalf("bill orders = %d, want 2", len(bill.Orders))
	}
	if bill.Subtotal != 30.00 {
		t.Fatalf("bill subtotal = %v, want 30.00", bill.Subtotal)
	}
	wantTotal := first.Totals.Total + second.Totals.Total
	if bill.Total != wantTotal {
		t.Fatalf("bill total = %v, want %v", bill.Total, wantTotal)
	}

	paid, err := env.Engine.PayAndCloseBill(env.Ctx, sessionID, "owner-1")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Total != wantTotal {
		t.Fatalf("paid total = %v, want %v", paid.Total, wantTotal)
	}
	if _, err := env.Engine.PayAndCloseBill(env.Ctx, sessionID, "owner-1"); err == nil {
		t.Fatalf("double settlement must be rejected")
	}

	got, err := env.Engine.Repo.GetOrder(env.Ctx, first.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.BillStatus != domain.BillPaid {
		t.Fatalf("order bill status = %s, want PAID", got.BillStatus)
	}

	// the next order at the table starts a fresh session
	third := placeDineIn(t, env, 3, 5.00)
	if *third.DineInSessionID == sessionID {
		t.Fatalf("closed session must not be reused")
	}
}

func TestReservationOverlap(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateReservation(env.Ctx, 2, "2026-03-05T18:00:00Z", "2026-03-05T19:00:00Z", "Avery", "555-123-4567", "owner-1"); err != nil {
		t.Fatalf("first reservation: %v", err)
	}
	if _, err := env.Engine.CreateReservation(env.Ctx, 2, "2026-03-05T18:30:00Z", "2026-03-05T19:30:00Z", "Blake", "", "owner-1"); err == nil {
		t.Fatalf("overlapping reservation must be rejected")
	}
	// half-open windows: back-to-back bookings share the boundary instant
	if _, err := env.Engine.CreateReservation(env.Ctx, 2, "2026-03-05T19:00:00Z", "2026-03-05T20:00:00Z", "Blake", "", "owner-1"); err != nil {
		t.Fatalf("back-to-back reservation: %v", err)
	}
	if _, err := env.Engine.CreateReservation(env.Ctx, 4, "2026-03-05T18:30:00Z", "2026-03-05T19:30:00Z", "Casey", "", "owner-1"); err != nil {
		t.Fatalf("other table: %v", err)
	}
	if _, err := env.Engine.CreateReservation(env.Ctx, 2, "2026-03-05T20:00:00Z", "2026-03-05T20:00:00Z", "Drew", "", "owner-1"); err == nil {
		t.Fatalf("empty window must be rejected")
	}
}
