// Package tablesidesdk is a typed client for the Tableside HTTP API.
package tablesidesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Tableside HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Qty          int     `json:"qty"`
	Price        float64 `json:"price"`
	Instructions string  `json:"instructions,omitempty"`
}

// Order is the API order model (partial).
type Order struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	ServiceType string      `json:"service_type"`
	Items       []OrderItem `json:"items"`
	Totals      struct {
		Subtotal    float64 `json:"subtotal"`
		Tax         float64 `json:"tax"`
		DeliveryFee float64 `json:"delivery_fee"`
		Total       float64 `json:"total"`
	} `json:"totals"`
	Revision    int64   `json:"revision"`
	RemainingMS int64   `json:"remaining_ms"`
	Progress    float64 `json:"progress"`
	CreatedAt   string  `json:"created_at"`
}

// Token is a sign-in result.
type Token struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Quote is a delivery price quote.
type Quote struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin int     `json:"duration_min"`
	Fee         float64 `json:"fee"`
}

// Reservation is a table booking.
type Reservation struct {
	ID    string `json:"id"`
	Table int    `json:"table"`
	Start string `json:"start"`
	End   string `json:"end"`
	Name  string `json:"name"`
}

// Receipt is an immutable order snapshot.
type Receipt struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"order_id"`
	ServiceType string  `json:"service_type"`
	Subtotal    float64 `json:"subtotal"`
	Tax         float64 `json:"tax"`
	Fee         float64 `json:"fee"`
	Total       float64 `json:"total"`
	CreatedAt   string  `json:"created_at"`
}

// Event is a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login signs in a customer and stores the bearer token on the client.
func (c *Client) Login(ctx context.Context, login, password string) (Token, error) {
	var resp Token
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"login":    login,
		"password": password,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// PlaceOrder places an order of any service type.
func (c *Client) PlaceOrder(ctx context.Context, serviceType string, items []OrderItem, opts map[string]any) (Order, error) {
	body := map[string]any{
		"service_type": serviceType,
		"items":        items,
	}
	for k, v := range opts {
		body[k] = v
	}
	var resp Order
	err := c.do(ctx, http.MethodPost, "v1/orders", body, &resp)
	return resp, err
}

// GetOrder fetches one order.
func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodGet, "v1/orders/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListOrders lists orders visible to the caller.
func (c *Client) ListOrders(ctx context.Context, activeOnly bool) ([]Order, error) {
	endpoint := "v1/orders"
	if activeOnly {
		endpoint += "?active=true"
	}
	var resp []Order
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetStatus advances an order; pass the last seen revision to detect
// concurrent edits (a stale revision returns a 409 APIError).
func (c *Client) SetStatus(ctx context.Context, id, status string, revision int64) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodPatch, "v1/orders/"+url.PathEscape(id)+"/status", map[string]any{
		"status":   status,
		"revision": revision,
	}, &resp)
	return resp, err
}

// SetETA sets the kitchen estimate in minutes; zero clears it.
func (c *Client) SetETA(ctx context.Context, id string, minutes int, revision int64) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodPut, "v1/orders/"+url.PathEscape(id)+"/eta", map[string]any{
		"minutes":  minutes,
		"revision": revision,
	}, &resp)
	return resp, err
}

// QuoteDelivery prices a delivery address.
func (c *Client) QuoteDelivery(ctx context.Context, address, phone string) (Quote, error) {
	var resp Quote
	err := c.do(ctx, http.MethodPost, "v1/delivery/quote", map[string]any{
		"address": address,
		"phone":   phone,
	}, &resp)
	return resp, err
}

// CreateReservation books a table for a half-open window.
func (c *Client) CreateReservation(ctx context.Context, table int, start, end, name, phone string) (Reservation, error) {
	var resp Reservation
	err := c.do(ctx, http.MethodPost, "v1/reservations", map[string]any{
		"table": table,
		"start": start,
		"end":   end,
		"name":  name,
		"phone": phone,
	}, &resp)
	return resp, err
}

// Receipt fetches the receipt for an order.
func (c *Client) Receipt(ctx context.Context, orderID string) (Receipt, error) {
	var resp Receipt
	err := c.do(ctx, http.MethodGet, "v1/orders/"+url.PathEscape(orderID)+"/receipt", nil, &resp)
	return resp, err
}

// Events pages the event log after a cursor.
func (c *Client) Events(ctx context.Context, after int64, limit int) ([]Event, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", strconv.FormatInt(after, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "v1/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
