package server

import (
	"time"

	"tableside/internal/domain"
	"tableside/internal/engine"
)

// Request payloads

type RegisterCustomerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type RegisterEmployeeRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty" enum:"employee,kitchen,driver"`
	Password string `json:"password"`
}

type PlaceOrderRequest struct {
	ServiceType string             `json:"service_type" enum:"PICKUP,DELIVERY,DINE_IN"`
	Table       int                `json:"table,omitempty"`
	Items       []domain.OrderItem `json:"items"`
	Address     string             `json:"address,omitempty"`
	Phone       string             `json:"phone,omitempty"`
	PaymentMode string             `json:"payment_mode,omitempty"`
}

type QuoteRequest struct {
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type SetStatusRequest struct {
	Status   string `json:"status"`
	Revision int64  `json:"revision,omitempty"`
}

type SetETARequest struct {
	Minutes  int   `json:"minutes" minimum:"0"`
	Revision int64 `json:"revision,omitempty"`
}

type AddNoteRequest struct {
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

type DriverLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type MarkDeliveredRequest struct {
	Photo    string `json:"photo"`
	Revision int64  `json:"revision,omitempty"`
}

type CreateReservationRequest struct {
	Table int    `json:"table" minimum:"1"`
	Start string `json:"start" format:"date-time"`
	End   string `json:"end" format:"date-time"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type AddShiftRequest struct {
	EmployeeID string `json:"employee_id"`
	Day        string `json:"day" enum:"Mon,Tue,Wed,Thu,Fri,Sat,Sun"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

type SubmitTimesheetRequest struct {
	Date      string `json:"date"`
	DayType   string `json:"day_type" enum:"Work,Off,Sick,Leave"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	BreakMins int    `json:"break_mins,omitempty" minimum:"0"`
}

type DecisionRequest struct {
	Accept bool `json:"accept"`
}

type RequestLeaveRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type PostAnnouncementRequest struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Audience string `json:"audience,omitempty"`
}

type SendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type SetEmployeeStatusRequest struct {
	Status string `json:"status" enum:"Active,Inactive,Rejected"`
}

// Responses

type TokenResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// OrderResponse augments the stored order with the derived countdown and
// progress position; clients never compute these themselves.
type OrderResponse struct {
	domain.Order
	RemainingMS  int64   `json:"remaining_ms"`
	Progress     float64 `json:"progress"`
	ETAProgress  float64 `json:"eta_progress"`
	DriverNearby bool    `json:"driver_nearby,omitempty"`
}

func orderResponse(e engine.Engine, o domain.Order, now time.Time) OrderResponse {
	return OrderResponse{
		Order:        o,
		RemainingMS:  engine.RemainingMS(o, now),
		Progress:     engine.Progress(o.ServiceType, o.Status),
		ETAProgress:  engine.ETAProgress(o, now),
		DriverNearby: e.DriverNearDrop(o),
	}
}

func mapOrders(e engine.Engine, orders []domain.Order, now time.Time) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(e, o, now))
	}
	return out
}

type BillResponse struct {
	SessionID string          `json:"session_id"`
	Table     int             `json:"table"`
	Orders    []OrderResponse `json:"orders"`
	Subtotal  float64         `json:"subtotal"`
	Tax       float64         `json:"tax"`
	Total     float64         `json:"total"`
	TaxRate   float64         `json:"tax_rate"`
}

func billResponse(e engine.Engine, b domain.Bill, now time.Time) BillResponse {
	return BillResponse{
		SessionID: b.SessionID,
		Table:     b.Table,
		Orders:    mapOrders(e, b.Orders, now),
		Subtotal:  b.Subtotal,
		Tax:       b.Tax,
		Total:     b.Total,
		TaxRate:   b.TaxRate,
	}
}
