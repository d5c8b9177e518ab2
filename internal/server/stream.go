package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"tableside/internal/domain"
	"tableside/internal/engine"
	"tableside/internal/events"
)

const (
	streamHeartbeat = 25 * time.Second
	streamBatch     = 100
)

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events after a cursor",
	}, func(ctx context.Context, input *struct {
		After int64 `query:"after" minimum:"0"`
		Limit int   `query:"limit" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx, RoleKitchen, RoleDriver, RoleEmployee); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit == 0 {
			limit = streamBatch
		}
		items, err := e.Repo.EventsAfter(ctx, limit, input.After)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

// registerStream mounts the SSE feed directly on chi; huma's typed responses
// don't fit a long-lived stream. Clients resume with Last-Event-ID (or the
// after query parameter) and each SSE id is the durable event id.
func registerStream(router chi.Router, basePath string, e engine.Engine, notifier *events.Notifier) {
	router.Get(path.Join(basePath, "events/stream"), func(w http.ResponseWriter, r *http.Request) {
		if _, ok := principalFromContext(r.Context()); !ok {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "streaming unsupported", nil))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		cursor := parseCursor(r)
		if cursor < 0 {
			latest, err := e.Repo.LatestEventID(r.Context())
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			cursor = latest
		}

		var wake <-chan struct{}
		if notifier != nil {
			ch, unsub := notifier.Subscribe()
			defer unsub()
			wake = ch
		}
		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		flusher.Flush()
		for {
			var err error
			cursor, err = writeEventsAfter(w, e, r.Context(), cursor)
			if err != nil {
				return
			}
			flusher.Flush()

			select {
			case <-r.Context().Done():
				return
			case <-wake:
			case <-heartbeat.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
			}
		}
	})
}

func parseCursor(r *http.Request) int64 {
	var cursor int64 = -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		fmt.Sscanf(v, "%d", &cursor)
	}
	if v := r.URL.Query().Get("after"); v != "" {
		fmt.Sscanf(v, "%d", &cursor)
	}
	return cursor
}

func writeEventsAfter(w http.ResponseWriter, e engine.Engine, ctx context.Context, cursor int64) (int64, error) {
	for {
		batch, err := e.Repo.EventsAfter(ctx, streamBatch, cursor)
		if err != nil {
			return cursor, err
		}
		for _, evt := range batch {
			data, merr := json.Marshal(evt)
			if merr != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type, data); err != nil {
				return cursor, err
			}
			cursor = evt.ID
		}
		if len(batch) < streamBatch {
			return cursor, nil
		}
	}
}
