package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tableside/internal/domain"
	"tableside/internal/events"
	"tableside/internal/geo"
)

// ClaimDelivery assigns a driver to a ready, unclaimed delivery order and
// moves it out for delivery. First claim wins; the revision guard rejects the
// second driver's stale write.
func (e Engine) ClaimDelivery(ctx context.Context, orderID, driverID, driverName string, revision int64) (domain.Order, error) {
	if driverID == "" {
		return domain.Order{}, ValidationError{Reason: "driver id is required"}
	}
	if driverName == "" {
		driverName = "Driver"
	}
	return e.mutateOrder(ctx, orderID, revision, driverID, func(o *domain.Order) (string, events.EventPayload, error) {
		if o.ServiceType != domain.ServiceDelivery {
			return "", nil, RuleError{Reason: "only delivery orders can be claimed"}
		}
		if o.Status != domain.StatusReadyForPickup {
			return "", nil, RuleError{Reason: fmt.Sprintf("order is %s, not ready for pickup", strings.ToLower(o.Status))}
		}
		if o.Driver != nil {
			return "", nil, RuleError{Reason: "order is already claimed by another driver"}
		}
		o.Driver = &domain.Driver{ID: driverID, Name: driverName, AssignedAt: e.nowISO()}
		o.Status = domain.StatusOutForDelivery
		return events.DriverAssigned, events.EventPayload{"driver_id": driverID}, nil
	})
}

// RecordDriverLocation stores the driver's latest ping. Out-of-order pings
// are dropped so the customer map never jumps backwards.
func (e Engine) RecordDriverLocation(ctx context.Context, orderID, driverID string, pos domain.LatLng, at time.Time) (domain.Order, error) {
	ts := at.UTC().Format(time.RFC3339)
	return e.mutateOrder(ctx, orderID, 0, driverID, func(o *domain.Order) (string, events.EventPayload, error) {
		if o.Status != domain.StatusOutForDelivery {
			return "", nil, RuleError{Reason: "order is not out for delivery"}
		}
		if o.Driver == nil || o.Driver.ID != driverID {
			return "", nil, RuleError{Reason: "order belongs to a different driver"}
		}
		if o.Driver.LastPingAt != nil && *o.Driver.LastPingAt >= ts {
			return "", nil, RuleError{Reason: "stale location ping"}
		}
		o.Driver.LastLatLng = &pos
		o.Driver.LastPingAt = &ts
		return events.DriverLocation, events.EventPayload{"lat": pos.Lat, "lng": pos.Lng}, nil
	})
}

// MarkDelivered completes a delivery. A proof-of-delivery photo is mandatory;
// the stored ETA is cleared so the countdown reads zero everywhere.
func (e Engine) MarkDelivered(ctx context.Context, orderID, driverID, photo string, revision int64) (domain.Order, error) {
	if strings.TrimSpace(photo) == "" {
		return domain.Order{}, RuleError{Reason: "a delivery photo is required"}
	}
	return e.mutateOrder(ctx, orderID, revision, driverID, func(o *domain.Order) (string, events.EventPayload, error) {
		if o.Status != domain.StatusOutForDelivery {
			return "", nil, RuleError{Reason: "order is not out for delivery"}
		}
		if o.Driver == nil || o.Driver.ID != driverID {
			return "", nil, RuleError{Reason: "order belongs to a different driver"}
		}
		now := e.nowISO()
		o.Status = domain.StatusDelivered
		o.Driver.DeliveredAt = &now
		o.Driver.DeliveredPhoto = photo
		o.ETA = nil
		return events.OrderDelivered, events.EventPayload{"driver_id": driverID}, nil
	})
}

// DriverNearDrop reports whether the driver's last ping is within the
// configured arrival threshold of the drop point.
func (e Engine) DriverNearDrop(o domain.Order) bool {
	if o.Driver == nil || o.Driver.LastLatLng == nil || o.Delivery == nil || o.Delivery.Coords == nil {
		return false
	}
	return geo.HaversineKm(*o.Driver.LastLatLng, *o.Delivery.Coords) <= e.Config.Delivery.NearbyKm
}
