package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/pkg/metrics"
)

var wsConnSeq uint64

// contextForConn ties a context's lifetime to the connection: closing
// done cancels every resolution started from this socket.
func contextForConn(done <-chan struct{}) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// wsRequest is a client message on the resolution socket.
type wsRequest struct {
	Action string `json:"action"` // "suggest" | "route" | "cancel"

	// suggest
	Slot  string `json:"slot,omitempty"` // "origin" | "destination"
	Query string `json:"query,omitempty"`

	// route
	RequestID    string              `json:"request_id,omitempty"`
	Route        domain.RouteRequest `json:"route,omitempty"`
	Alternatives bool                `json:"alternatives,omitempty"`
}

// wsSuggestReply carries debounced suggestion results back to the
// client, tagged with the slot they belong to.
type wsSuggestReply struct {
	Type   string         `json:"type"` // "suggestions"
	Slot   string         `json:"slot"`
	Query  string         `json:"query"`
	Places []domain.Place `json:"places"`
}

type wsRouteReply struct {
	Type string `json:"type"` // "route"
	domain.RouteUpdate
}

// ResolveSocketHandler runs the interactive resolution session: typed
// queries arrive as "suggest" messages and are debounced server-side;
// "route" messages trigger the two-phase computation with provisional
// and final deliveries. Route progress published by other instances is
// relayed from NATS. All in-flight work for the connection is released
// on disconnect.
func ResolveSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		connID := fmt.Sprintf("ws:%d", atomic.AddUint64(&wsConnSeq, 1))
		slog.Info("ws client connected", "conn", connID, "remote", c.RemoteAddr().String())
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		// Relay broadcasts (e.g. dataset refresh notices) from other
		// instances.
		var subs []*nats.Subscription
		if deps.NATS != nil {
			if sub, err := deps.NATS.Subscribe("geo.updates.broadcast", func(msg *nats.Msg) {
				_ = writeJSON(json.RawMessage(msg.Data))
			}); err == nil {
				subs = append(subs, sub)
			}
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		ctx := contextForConn(done)

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch req.Action {
			case "suggest":
				slot := req.Slot
				if slot == "" {
					slot = "destination"
				}
				query := req.Query
				deps.Geocoder.SuggestDebounced(ctx, connID+":suggest:"+slot, query,
					func(places []domain.Place, err error) {
						if err != nil {
							_ = writeJSON(map[string]string{"error": err.Error()})
							return
						}
						if places == nil {
							places = []domain.Place{}
						}
						_ = writeJSON(wsSuggestReply{Type: "suggestions", Slot: slot, Query: query, Places: places})
					})

			case "route":
				if req.RequestID == "" {
					req.RequestID = fmt.Sprintf("%s-%d", connID, time.Now().UnixMilli())
				}
				if req.Route.Profile == "" {
					req.Route.Profile = domain.ProfileCar
				}
				deps.Routes.ResolveTwoPhase(ctx, connID+":route", req.RequestID, req.Route, req.Alternatives,
					func(update domain.RouteUpdate) {
						_ = writeJSON(wsRouteReply{Type: "route", RouteUpdate: update})
					})

			case "cancel":
				if deps.Lifecycle != nil {
					deps.Lifecycle.ReleasePrefix(connID + ":")
				}
				_ = writeJSON(map[string]string{"status": "cancelled"})

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + req.Action})
			}
		}

		// Cleanup
		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		if deps.Lifecycle != nil {
			deps.Lifecycle.ReleasePrefix(connID + ":")
		}
		slog.Info("ws client disconnected", "conn", connID)
	}
}
