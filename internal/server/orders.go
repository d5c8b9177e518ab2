package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"tableside/internal/domain"
	"tableside/internal/engine"
	"tableside/internal/repo"
)

type OrderPath struct {
	OrderID string `path:"order_id"`
}

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "place-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Place an order",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body PlaceOrderRequest `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		p, authErr := requireAuth(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.PlaceOrder(ctx, engine.PlaceOrderOptions{
			ServiceType:  input.Body.ServiceType,
			Table:        input.Body.Table,
			CustomerID:   p.ID,
			CustomerName: p.Name,
			Items:        input.Body.Items,
			Address:      input.Body.Address,
			Phone:        input.Body.Phone,
			PaymentMode:  input.Body.PaymentMode,
			ActorID:      p.ID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(e, o, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "quote-delivery",
		Method:      http.MethodPost,
		Path:        "/delivery/quote",
		Summary:     "Quote a delivery address",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body QuoteRequest `json:"body"`
	}) (*struct {
		Body engine.DeliveryQuote `json:"body"`
	}, error) {
		q, err := e.QuoteDelivery(ctx, input.Body.Address, input.Body.Phone)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DeliveryQuote `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List orders",
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		ServiceType string `query:"service_type"`
		Active      bool   `query:"active"`
		Mine        bool   `query:"mine"`
	}) (*struct {
		Body []OrderResponse `json:"body"`
	}, error) {
		p, authErr := requireAuth(ctx)
		if authErr != nil {
			return nil, authErr
		}
		filter := repo.OrderFilter{
			Status:      input.Status,
			ServiceType: input.ServiceType,
			ActiveOnly:  input.Active,
		}
		switch p.Role {
		case RoleCustomer:
			// customers only ever see their own orders
			filter.CustomerID = p.ID
		case RoleDriver:
			if input.Mine {
				filter.DriverID = p.ID
			} else {
				// the claimable pool
				filter.Status = domain.StatusReadyForPickup
				filter.ServiceType = domain.ServiceDelivery
			}
		default:
			if input.Mine {
				filter.CustomerID = p.ID
			}
		}
		orders, err := e.Repo.ListOrders(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OrderResponse `json:"body"`
		}{Body: mapOrders(e, orders, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Get an order",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *OrderPath) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		p, authErr := requireAuth(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.Repo.GetOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.Role == RoleCustomer && o.CustomerID != p.ID {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "not your order", nil)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(e, o, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-order-status",
		Method:      http.MethodPatch,
		Path:        "/orders/{order_id}/status",
		Summary:     "Advance or cancel an order",
		Errors:      []int{http.StatusConflict, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		OrderPath
		Body SetStatusRequest `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleKitchen, RoleEmployee)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.SetStatus(ctx, input.OrderID, input.Body.Status, p.ID, input.Body.Revision)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(e, o, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-order-eta",
		Method:      http.MethodPut,
		Path:        "/orders/{order_id}/eta",
		Summary:     "Set the kitchen ETA",
		Errors:      []int{http.StatusConflict, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		OrderPath
		Body SetETARequest `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleKitchen, RoleEmployee)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.SetETA(ctx, input.OrderID, input.Body.Minutes, p.ID, input.Body.Revision)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(e, o, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-order-note",
		Method:        http.MethodPost,
		Path:          "/orders/{order_id}/notes",
		Summary:       "Send a live note to the customer",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderPath
		Body AddNoteRequest `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleKitchen, RoleEmployee)
		if authErr != nil {
			return nil, authErr
		}
		from := input.Body.From
		if from == "" {
			from = p.Name
		}
		o, err := e.AddNote(ctx, input.OrderID, from, input.Body.Text, p.ID, 0)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(e, o, time.Now())}, nil
	})
}

func registerDelivery(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "claim-delivery",
		Method:      http.MethodPost,
		Path:        "/orders/{order_id}/claim",
		Summary:     "Claim a delivery",
		Errors:      []int{http.StatusConflict, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		OrderPath
		Body struct {
			Revision int64 `json:"revision,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleDriver)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.ClaimDelivery(ctx, input.OrderID, p.ID, p.Name, input.Body.Revision)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(e, o, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-driver-location",
		Method:      http.MethodPut,
		Path:        "/orders/{order_id}/location",
		Summary:     "Record a driver location ping",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		OrderPath
		Body DriverLocationRequest `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleDriver)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.RecordDriverLocation(ctx, input.OrderID, p.ID,
			domain.LatLng{Lat: input.Body.Lat, Lng: input.Body.Lng}, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(e, o, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-delivered",
		Method:      http.MethodPost,
		Path:        "/orders/{order_id}/delivered",
		Summary:     "Complete a delivery with a proof photo",
		Errors:      []int{http.StatusConflict, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		OrderPath
		Body MarkDeliveredRequest `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleDriver)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.MarkDelivered(ctx, input.OrderID, p.ID, input.Body.Photo, input.Body.Revision)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(e, o, time.Now())}, nil
	})
}

func registerDineIn(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-table-session",
		Method:      http.MethodGet,
		Path:        "/tables/{table}/session",
		Summary:     "Open or fetch the table's dine-in session",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Table int `path:"table" minimum:"1"`
	}) (*struct {
		Body domain.DineInSession `json:"body"`
	}, error) {
		p, authErr := requireAuth(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.OpenSession(ctx, input.Table, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DineInSession `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session-bill",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}/bill",
		Summary:     "Aggregate the session's open orders into a bill",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body BillResponse `json:"body"`
	}, error) {
		if _, authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		b, err := e.BillTotals(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BillResponse `json:"body"`
		}{Body: billResponse(e, b, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pay-session-bill",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/pay",
		Summary:     "Settle the bill and close the session",
		Errors:      []int{http.StatusConflict, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body BillResponse `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, RoleEmployee, RoleKitchen, RoleCustomer)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.PayAndCloseBill(ctx, input.SessionID, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BillResponse `json:"body"`
		}{Body: billResponse(e, b, time.Now())}, nil
	})
}

func registerReservations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-reservation",
		Method:        http.MethodPost,
		Path:          "/reservations",
		Summary:       "Reserve a table",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateReservationRequest `json:"body"`
	}) (*struct {
		Body domain.Reservation `json:"body"`
	}, error) {
		p, authErr := requireAuth(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.CreateReservation(ctx, input.Body.Table, input.Body.Start, input.Body.End,
			input.Body.Name, input.Body.Phone, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reservation `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reservations",
		Method:      http.MethodGet,
		Path:        "/reservations",
		Summary:     "List reservations",
	}, func(ctx context.Context, input *struct {
		Table int `query:"table"`
	}) (*struct {
		Body []domain.Reservation `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx, RoleEmployee, RoleKitchen); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListReservations(ctx, input.Table)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Reservation `json:"body"`
		}{Body: items}, nil
	})
}

func registerReceipts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-order-receipt",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}/receipt",
		Summary:     "Get the order's receipt",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *OrderPath) (*struct {
		Body domain.Receipt `json:"body"`
	}, error) {
		p, authErr := requireAuth(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if p.Role == RoleCustomer {
			o, err := e.Repo.GetOrder(ctx, input.OrderID)
			if err != nil {
				return nil, handleError(err)
			}
			if o.CustomerID != p.ID {
				return nil, newAPIError(http.StatusForbidden, "forbidden", "not your order", nil)
			}
		}
		rc, err := e.ReceiptForOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Receipt `json:"body"`
		}{Body: rc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-receipts",
		Method:      http.MethodGet,
		Path:        "/receipts",
		Summary:     "List all receipts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Receipt `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListReceipts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Receipt `json:"body"`
		}{Body: items}, nil
	})
}
