package handlers

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"medops-bknd/internal/changefeed"
	"medops-bknd/internal/models"
	"medops-bknd/internal/session"
	"medops-bknd/internal/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// StreamHandler pushes change events to browsers over a websocket.
type StreamHandler struct {
	hub      *changefeed.Hub
	upgrader websocket.Upgrader
	logr     *zap.Logger
}

func NewStreamHandler(hub *changefeed.Hub, allowedOrigins []string, logr *zap.Logger) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logr: logr,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// streamFilter restricts events to the requested live tables and keeps
// notifications addressed to userID only.
func streamFilter(tables []string, userID string) (changefeed.Filter, error) {
	want := map[string]bool{}
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !slices.Contains(models.LiveTables, t) {
			return nil, errUnknownTable(t)
		}
		want[t] = true
	}
	if len(want) == 0 {
		for _, t := range models.LiveTables {
			want[t] = true
		}
	}

	mine := changefeed.FieldEquals("user_id", userID)
	return func(ev changefeed.Event) bool {
		if !want[ev.Table] {
			return false
		}
		if ev.Table == models.TableNotifications {
			return mine(ev)
		}
		return true
	}, nil
}

type errUnknownTable string

func (e errUnknownTable) Error() string { return "unknown table " + string(e) }

// GET /stream?tables=hospitals,dispatch_requests
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	filter, err := streamFilter(utils.ParseQueryList(r.URL.Query(), "tables"), sess.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logr.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe("", filter)
	defer sub.Close()

	done := make(chan struct{})
	go h.readPump(conn, done)

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// Dropped by the hub. The client reconnects and refetches.
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logr.Debug("websocket write failed", zap.Error(err), zap.String("user_id", sess.UserID))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (h *StreamHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
