package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"invokeledger/services/settlementd/models"
)

const (
	wsWriteTimeout = 5 * time.Second
	backlogLimit   = 500
)

// Backlog lists archived events after a cursor.
type Backlog interface {
	List(ctx context.Context, after uint64, eventType string, limit int) ([]models.Event, error)
}

// Handler streams events over a websocket. Clients resume with ?cursor=N and
// may filter with ?type=.
type Handler struct {
	hub     *Hub
	backlog Backlog
	logger  *slog.Logger
}

func NewHandler(hub *Hub, backlog Backlog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, backlog: backlog, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		after = parsed
	}
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn, after, eventType); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			h.logger.Warn("event stream ended", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, after uint64, eventType string) error {
	updates, cancel := h.hub.Subscribe(0)
	defer cancel()

	last := after
	if h.backlog != nil {
		for {
			rows, err := h.backlog.List(ctx, last, eventType, backlogLimit)
			if err != nil {
				return err
			}
			for _, row := range rows {
				msg, err := FromRecord(row)
				if err != nil {
					return err
				}
				if err := writeMessage(ctx, conn, msg); err != nil {
					return err
				}
				last = msg.Cursor
			}
			if len(rows) < backlogLimit {
				break
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			}
			if msg.Cursor <= last || (eventType != "" && msg.Type != eventType) {
				continue
			}
			if err := writeMessage(ctx, conn, msg); err != nil {
				return err
			}
			last = msg.Cursor
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
