package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/events"
	"tableside/internal/geo"
	"tableside/internal/repo"
)

// Engine owns the order lifecycle: placement, kitchen transitions, delivery
// hand-off, dine-in billing, and reservations. Every mutation runs inside a
// transaction and appends to the events table.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Geocoder geo.Geocoder
	Router   geo.Router
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, notifier *events.Notifier) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db, Notifier: notifier},
		Config:   cfg,
		Geocoder: geo.NewHTTPGeocoder(cfg.Geo.GeocoderURL, cfg.Geo.BiasDeg),
		Router:   geo.NewHTTPRouter(cfg.Geo.RouterURL),
		Now:      time.Now,
	}
}

// ErrRevisionConflict reports a lost-update: the order changed between the
// caller's read and its write.
var ErrRevisionConflict = errors.New("order was modified concurrently")

// RuleError is a business-rule rejection with a user-facing reason.
type RuleError struct {
	Reason string
}

func (e RuleError) Error() string { return e.Reason }

// ValidationError is a malformed-input rejection, caught before any work.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowISO() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID() string {
	return uuid.NewString()
}

// PlaceOrderOptions are the checkout parameters for any service type.
type PlaceOrderOptions struct {
	ServiceType  string
	Table        int
	CustomerID   string
	CustomerName string
	Items        []domain.OrderItem
	Address      string
	Phone        string
	PaymentMode  string
	ActorID      string
}

// PlaceOrder validates, prices, and persists a new order together with its
// receipt. Totals are computed exactly once here; items are immutable after
// placement so they are never recomputed.
func (e Engine) PlaceOrder(ctx context.Context, opts PlaceOrderOptions) (domain.Order, error) {
	if len(opts.Items) == 0 {
		return domain.Order{}, ValidationError{Reason: "order has no items"}
	}
	if opts.CustomerID == "" {
		opts.CustomerID = "guest"
	}
	for i := range opts.Items {
		if opts.Items[i].Qty <= 0 {
			opts.Items[i].Qty = 1
		}
		if opts.Items[i].Price < 0 {
			return domain.Order{}, ValidationError{Reason: fmt.Sprintf("item %q has a negative price", opts.Items[i].Name)}
		}
	}

	now := e.nowISO()
	order := domain.Order{
		ID:           newID(),
		Status:       domain.StatusPlaced,
		ServiceType:  opts.ServiceType,
		CustomerID:   opts.CustomerID,
		CustomerName: opts.CustomerName,
		Items:        opts.Items,
		LiveNotes:    []domain.LiveNote{},
		Payment:      domain.Payment{Mode: paymentMode(opts.PaymentMode), Status: "paid"},
		CreatedAt:    now,
		Revision:     1,
	}

	subtotal := geo.RoundCents(itemsSubtotal(opts.Items))
	taxRate := e.Config.Store.TaxRate
	tax := geo.RoundCents(subtotal * taxRate)
	fee := 0.0

	switch opts.ServiceType {
	case domain.ServicePickup:
		// nothing extra
	case domain.ServiceDelivery:
		quote, err := e.QuoteDelivery(ctx, opts.Address, opts.Phone)
		if err != nil {
			return domain.Order{}, err
		}
		fee = quote.Fee
		order.Delivery = &domain.DeliveryInfo{
			Address: strings.TrimSpace(opts.Address),
			Phone:   formatPhone(opts.Phone),
			Coords:  &quote.Drop,
		}
		// Seed the countdown from the routed ETA so the customer sees a
		// deadline before the kitchen refines it.
		if quote.DurationMin > 0 {
			order.ETA = &domain.ETA{Minutes: quote.DurationMin, SetAt: now}
		}
	case domain.ServiceDineIn:
		if opts.Table < 1 || opts.Table > e.Config.Store.TableCount {
			return domain.Order{}, ValidationError{Reason: fmt.Sprintf("table must be between 1 and %d", e.Config.Store.TableCount)}
		}
	default:
		return domain.Order{}, ValidationError{Reason: fmt.Sprintf("unknown service type %q", opts.ServiceType)}
	}

	order.Totals = domain.Totals{
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: fee,
		Total:       geo.RoundCents(subtotal + tax + fee),
		TaxRate:     taxRate,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	if opts.ServiceType == domain.ServiceDineIn {
		session, err := e.openSessionTx(ctx, tx, opts.Table, opts.ActorID)
		if err != nil {
			return domain.Order{}, err
		}
		order.Table = &opts.Table
		order.DineInSessionID = &session.ID
		order.BillStatus = domain.BillOpen
	}

	if err := e.Repo.InsertOrderTx(ctx, tx, order); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	if err := e.Repo.InsertReceiptTx(ctx, tx, buildReceipt(order, now)); err != nil {
		return domain.Order{}, fmt.Errorf("insert receipt: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.OrderPlaced, "order", order.ID, opts.ActorID, events.EventPayload{
		"service_type": order.ServiceType,
		"total":        order.Totals.Total,
	}); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	e.Events.Notify()
	return order, nil
}

// DeliveryQuote is the resolved drop point and pricing for an address.
type DeliveryQuote struct {
	Drop        domain.LatLng `json:"drop"`
	DistanceKm  float64       `json:"distance_km"`
	DurationMin int           `json:"duration_min"`
	Fee         float64       `json:"fee"`
}

// QuoteDelivery geocodes the address, routes from the store, and rejects
// addresses outside the configured radius.
func (e Engine) QuoteDelivery(ctx context.Context, address, phone string) (DeliveryQuote, error) {
	if strings.TrimSpace(address) == "" {
		return DeliveryQuote{}, ValidationError{Reason: "delivery address is required"}
	}
	if !isValidPhone(phone) {
		return DeliveryQuote{}, ValidationError{Reason: "enter a valid mobile number"}
	}
	storePoint := domain.LatLng{Lat: e.Config.Store.Lat, Lng: e.Config.Store.Lng}
	drop, err := e.Geocoder.Forward(ctx, address, storePoint)
	if err != nil {
		return DeliveryQuote{}, fmt.Errorf("resolve address: %w", err)
	}
	route, err := e.Router.Route(ctx, storePoint, drop)
	if err != nil {
		return DeliveryQuote{}, fmt.Errorf("resolve route: %w", err)
	}
	radius := e.Config.Delivery.RadiusKm
	if route.DistanceKm > radius {
		return DeliveryQuote{}, RuleError{Reason: fmt.Sprintf("outside delivery radius (%.0f km)", radius)}
	}
	return DeliveryQuote{
		Drop:        drop,
		DistanceKm:  route.DistanceKm,
		DurationMin: route.DurationMin,
		Fee: geo.DeliveryFee(route.DistanceKm, geo.FeeSchedule{
			Base:  e.Config.Delivery.Fee.Base,
			PerKm: e.Config.Delivery.Fee.PerKm,
			Cap:   e.Config.Delivery.Fee.Cap,
		}),
	}, nil
}

// SetStatus applies a kitchen transition. Driver transitions go through
// ClaimDelivery and MarkDelivered, never here.
func (e Engine) SetStatus(ctx context.Context, orderID, next, actorID string, revision int64) (domain.Order, error) {
	if next == domain.StatusOutForDelivery || next == domain.StatusDelivered {
		return domain.Order{}, RuleError{Reason: fmt.Sprintf("status %s is set by the delivery flow", next)}
	}
	return e.mutateOrder(ctx, orderID, revision, actorID, func(o *domain.Order) (string, events.EventPayload, error) {
		if err := checkTransition(o.ServiceType, o.Status, next); err != nil {
			return "", nil, err
		}
		prev := o.Status
		o.Status = next
		return events.OrderStatusChanged, events.EventPayload{"from": prev, "to": next}, nil
	})
}

// SetETA records the kitchen estimate as {minutes, set-at}; zero minutes
// clears it. Remaining time is always derived from these two fields.
func (e Engine) SetETA(ctx context.Context, orderID string, minutes int, actorID string, revision int64) (domain.Order, error) {
	if minutes < 0 {
		return domain.Order{}, ValidationError{Reason: "eta minutes must not be negative"}
	}
	return e.mutateOrder(ctx, orderID, revision, actorID, func(o *domain.Order) (string, events.EventPayload, error) {
		if domain.TerminalStatuses[o.Status] {
			return "", nil, RuleError{Reason: "cannot set eta on a finished order"}
		}
		if minutes == 0 {
			o.ETA = nil
		} else {
			o.ETA = &domain.ETA{Minutes: minutes, SetAt: e.nowISO()}
		}
		return events.OrderETASet, events.EventPayload{"minutes": minutes}, nil
	})
}

// AddNote appends a live note from the kitchen to the customer.
func (e Engine) AddNote(ctx context.Context, orderID, from, text, actorID string, revision int64) (domain.Order, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Order{}, ValidationError{Reason: "note text is required"}
	}
	if from == "" {
		from = "Kitchen"
	}
	return e.mutateOrder(ctx, orderID, revision, actorID, func(o *domain.Order) (string, events.EventPayload, error) {
		o.LiveNotes = append(o.LiveNotes, domain.LiveNote{
			ID:   newID(),
			From: from,
			Text: text,
			At:   e.nowISO(),
		})
		return events.OrderNoteAdded, events.EventPayload{"from": from}, nil
	})
}

// mutateOrder reads the order, applies fn, and writes it back guarded by the
// expected revision; revision 0 means "whatever is current".
func (e Engine) mutateOrder(ctx context.Context, orderID string, revision int64, actorID string,
	fn func(o *domain.Order) (string, events.EventPayload, error)) (domain.Order, error) {

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOrderTx(ctx, tx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if revision != 0 && revision != o.Revision {
		return domain.Order{}, ErrRevisionConflict
	}
	evtType, payload, err := fn(&o)
	if err != nil {
		return domain.Order{}, err
	}
	n, err := e.Repo.UpdateOrderTx(ctx, tx, o, o.Revision)
	if err != nil {
		return domain.Order{}, err
	}
	if n == 0 {
		return domain.Order{}, ErrRevisionConflict
	}
	if err := e.Events.Append(ctx, tx, evtType, "order", o.ID, actorID, payload); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	e.Events.Notify()
	o.Revision++
	return o, nil
}

// ReceiptForOrder returns the stored receipt, regenerating it when a legacy
// order predates receipt bookkeeping.
func (e Engine) ReceiptForOrder(ctx context.Context, orderID string) (domain.Receipt, error) {
	rc, err := e.Repo.GetReceiptByOrder(ctx, orderID)
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Receipt{}, err
	}
	o, err := e.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Receipt{}, err
	}
	rc = buildReceipt(o, e.nowISO())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Receipt{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReceiptTx(ctx, tx, rc); err != nil {
		return domain.Receipt{}, fmt.Errorf("regenerate receipt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Receipt{}, err
	}
	return rc, nil
}

func buildReceipt(o domain.Order, createdAt string) domain.Receipt {
	return domain.Receipt{
		ID:          newID(),
		OrderID:     o.ID,
		ServiceType: o.ServiceType,
		Table:       o.Table,
		Items:       o.Items,
		Subtotal:    o.Totals.Subtotal,
		Tax:         o.Totals.Tax,
		Fee:         o.Totals.DeliveryFee,
		Total:       o.Totals.Total,
		CreatedAt:   createdAt,
	}
}

func itemsSubtotal(items []domain.OrderItem) float64 {
	var sum float64
	for _, it := range items {
		qty := it.Qty
		if qty < 1 {
			qty = 1
		}
		sum += it.Price * float64(qty)
	}
	return sum
}

func paymentMode(mode string) string {
	if mode == "" {
		return "card"
	}
	return mode
}

func isValidPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 10
}

func formatPhone(phone string) string {
	return strings.TrimSpace(phone)
}
