package syncbroker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
)

const (
	wsDefaultPollInterval = 1 * time.Second
	wsWriteTimeout        = 5 * time.Second

	// wsMaxSession caps a single push session. The mailbox itself
	// expires on the same order, so longer sessions observe nothing.
	wsMaxSession = 10 * time.Minute
)

// wsEvent is the frame pushed to the client on every state transition.
// It mirrors the poll response so clients can treat both channels the
// same way.
type wsEvent struct {
	Status    string    `json:"status"`
	URL       string    `json:"url,omitempty"`
	ShortCode string    `json:"shortCode,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// WSHandler pushes mailbox state transitions over a WebSocket as an
// alternative to polling. The wire contract matches Poll exactly; the
// server does the polling.
type WSHandler struct {
	log    *slog.Logger
	broker *Broker

	pollInterval time.Duration
}

// NewWSHandler constructs a push handler over the given broker.
func NewWSHandler(log *slog.Logger, broker *Broker) *WSHandler {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &WSHandler{
		log:          log,
		broker:       broker,
		pollInterval: wsDefaultPollInterval,
	}
}

// ServeHTTP upgrades the request and streams transitions until the
// mailbox completes, the client leaves, or the session cap hits.
// The token comes from the "token" path value.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if !validToken(token) {
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}

	// The sync channel is deliberately open to any origin: the phone
	// and desktop are different devices, often different origins.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Error("sync.ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ctx, cancel := context.WithTimeout(r.Context(), wsMaxSession)
	defer cancel()

	last := Status(-1)
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		status, rec, err := h.broker.Poll(ctx, token)
		if err != nil {
			h.log.Info("sync.ws.poll.fail", "err", err)
			_ = conn.Close(websocket.StatusInternalError, "poll failed")
			return
		}

		if status != last {
			last = status
			if err := h.writeEvent(ctx, conn, status, rec); err != nil {
				h.log.Info("sync.ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				return
			}
			if status == StatusComplete {
				_ = conn.Close(websocket.StatusNormalClosure, "complete")
				return
			}
		}

		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "session over")
			return
		case <-ticker.C:
		}
	}
}

func (h *WSHandler) writeEvent(ctx context.Context, conn *websocket.Conn, status Status, rec Record) error {
	payload, err := json.Marshal(wsEvent{
		Status:    status.String(),
		URL:       rec.URL,
		ShortCode: rec.ShortCode,
		CreatedAt: rec.CreatedAt,
	})
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
