package domain

// Service types.
const (
	ServicePickup   = "PICKUP"
	ServiceDelivery = "DELIVERY"
	ServiceDineIn   = "DINE_IN"
)

// Order statuses. READY is the pickup/dine-in handoff state,
// READY_FOR_PICKUP is the delivery handoff state; they are distinct on purpose.
const (
	StatusPlaced         = "PLACED"
	StatusAccepted       = "ACCEPTED"
	StatusCooking        = "COOKING"
	StatusReady          = "READY"
	StatusServed         = "SERVED"
	StatusReadyForPickup = "READY_FOR_PICKUP"
	StatusOutForDelivery = "OUT_FOR_DELIVERY"
	StatusDelivered      = "DELIVERED"
	StatusCancelled      = "CANCELLED"
)

// Bill statuses for dine-in orders, independent of the order status.
const (
	BillOpen = "OPEN"
	BillPaid = "PAID"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type OrderItem struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Qty          int     `json:"qty"`
	Price        float64 `json:"price"`
	Instructions string  `json:"instructions,omitempty"`
}

type Totals struct {
	Subtotal    float64 `json:"subtotal"`
	Tax         float64 `json:"tax"`
	DeliveryFee float64 `json:"delivery_fee"`
	Total       float64 `json:"total"`
	TaxRate     float64 `json:"tax_rate"`
}

type DeliveryInfo struct {
	Address string  `json:"address"`
	Phone   string  `json:"phone"`
	Coords  *LatLng `json:"coords,omitempty"`
}

type Driver struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	AssignedAt     string  `json:"assigned_at" format:"date-time"`
	LastLatLng     *LatLng `json:"last_lat_lng,omitempty"`
	LastPingAt     *string `json:"last_ping_at,omitempty" format:"date-time"`
	DeliveredAt    *string `json:"delivered_at,omitempty" format:"date-time"`
	DeliveredPhoto string  `json:"delivered_photo,omitempty"`
}

// ETA holds the kitchen's service-time estimate. The countdown deadline is
// SetAt + Minutes; remaining time is always derived, never stored.
type ETA struct {
	Minutes int    `json:"minutes"`
	SetAt   string `json:"set_at" format:"date-time"`
}

type LiveNote struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Text string `json:"text"`
	At   string `json:"at" format:"date-time"`
}

type Payment struct {
	Mode   string `json:"mode"`
	Status string `json:"status"`
}

type Order struct {
	ID              string        `json:"id"`
	Status          string        `json:"status"`
	ServiceType     string        `json:"service_type" enum:"PICKUP,DELIVERY,DINE_IN"`
	Table           *int          `json:"table,omitempty"`
	DineInSessionID *string       `json:"dine_in_session_id,omitempty"`
	BillStatus      string        `json:"bill_status,omitempty"`
	CustomerID      string        `json:"customer_id"`
	CustomerName    string        `json:"customer_name,omitempty"`
	Items           []OrderItem   `json:"items"`
	Totals          Totals        `json:"totals"`
	Delivery        *DeliveryInfo `json:"delivery,omitempty"`
	Driver          *Driver       `json:"driver,omitempty"`
	ETA             *ETA          `json:"eta,omitempty"`
	LiveNotes       []LiveNote    `json:"live_notes,omitempty"`
	Payment         Payment       `json:"payment"`
	CreatedAt       string        `json:"created_at" format:"date-time"`
	Revision        int64         `json:"revision"`
}

type DineInSession struct {
	ID       string  `json:"id"`
	Table    int     `json:"table"`
	Status   string  `json:"status" enum:"OPEN,CLOSED"`
	OpenedAt string  `json:"opened_at" format:"date-time"`
	ClosedAt *string `json:"closed_at,omitempty" format:"date-time"`
}

type Reservation struct {
	ID        string `json:"id"`
	Table     int    `json:"table"`
	Start     string `json:"start" format:"date-time"`
	End       string `json:"end" format:"date-time"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Receipt is an immutable snapshot of an order at checkout time.
type Receipt struct {
	ID          string      `json:"id"`
	OrderID     string      `json:"order_id"`
	ServiceType string      `json:"service_type"`
	Table       *int        `json:"table,omitempty"`
	Items       []OrderItem `json:"items"`
	Subtotal    float64     `json:"subtotal"`
	Tax         float64     `json:"tax"`
	Fee         float64     `json:"fee"`
	Total       float64     `json:"total"`
	CreatedAt   string      `json:"created_at" format:"date-time"`
}

type Bill struct {
	SessionID string  `json:"session_id"`
	Table     int     `json:"table"`
	Orders    []Order `json:"orders"`
	Subtotal  float64 `json:"subtotal"`
	Tax       float64 `json:"tax"`
	Total     float64 `json:"total"`
	TaxRate   float64 `json:"tax_rate"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Staff entities.

type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Employee struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status" enum:"Pending,Active,Inactive,Rejected"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Shift struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	Day        string `json:"day" enum:"Mon,Tue,Wed,Thu,Fri,Sat,Sun"`
	Start      string `json:"start"`
	End        string `json:"end"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type TimesheetEntry struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	Date       string  `json:"date"`
	DayType    string  `json:"day_type" enum:"Work,Off,Sick,Leave"`
	Start      string  `json:"start,omitempty"`
	End        string  `json:"end,omitempty"`
	BreakMins  int     `json:"break_mins"`
	Hours      float64 `json:"hours"`
	Status     string  `json:"status" enum:"Pending,Accepted,Denied"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type LeaveRequest struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reason     string `json:"reason,omitempty"`
	Status     string `json:"status" enum:"Pending,Accepted,Denied"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type LeaveBalance struct {
	Allowed   int `json:"allowed"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

type Announcement struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Audience  string   `json:"audience"`
	ReadBy    []string `json:"read_by,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// WeeklyTotals is the computed summary for one employee week.
type WeeklyTotals struct {
	Total    float64        `json:"total"`
	Regular  float64        `json:"regular"`
	Overtime float64        `json:"overtime"`
	Counts   map[string]int `json:"counts"`
}

// TerminalStatuses are the states an order can never leave.
var TerminalStatuses = map[string]bool{
	StatusServed:    true,
	StatusDelivered: true,
	StatusCancelled: true,
}
