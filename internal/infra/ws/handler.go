package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"companion-pipeline/internal/infra/bus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// Handler bridges a conversation's bus subscription onto a WebSocket. One
// goroutine writes the event stream (keep-alives included); the read loop
// exists only to notice the peer going away.
type Handler struct {
	bus      *bus.Bus
	upgrader websocket.Upgrader
	log      *zerolog.Logger
}

func NewHandler(b *bus.Bus, logger *zerolog.Logger) *Handler {
	wsLog := logger.With().Str("component", "WSHandler").Logger()
	return &Handler{
		bus: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement belongs to the reverse proxy in this
			// deployment; the API itself is bearer-token gated.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: &wsLog,
	}
}

// Serve upgrades the request and streams the conversation's events until
// either side disconnects.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, conversationID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := h.bus.Subscribe(conversationID)
	defer sub.Close()
	defer conn.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		for {
			// Discard client frames; an error means the peer is gone.
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug().Err(err).Str("conversation_id", conversationID).Msg("websocket read error")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug().Err(err).Str("conversation_id", conversationID).Msg("websocket write failed")
				return
			}
		}
	}
}
