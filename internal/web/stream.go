package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/justestif/soundify/internal/player"
	"github.com/justestif/soundify/internal/state"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	streamBuf  = 16
)

// streamMessage is one push to the browser. Every message carries a full
// view, so dropping one under backpressure loses nothing the next one
// does not restore.
type streamMessage struct {
	Type   string          `json:"type"`
	State  *state.Snapshot `json:"state,omitempty"`
	Player *player.State   `json:"player,omitempty"`
}

// Stream pushes state and player changes over a websocket (GET /ws).
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	l := h.live(r)
	if l == nil || l.Store().Credential().Empty() {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	out := make(chan streamMessage, streamBuf)
	push := func(m streamMessage) {
		select {
		case out <- m:
		default:
			h.logger.Debug("dropping stream message", "type", m.Type)
		}
	}

	// Subscribe first so nothing published between the initial snapshot and
	// the subscription is lost. The gate drops the resulting duplicates.
	cancelState := l.Store().Subscribe(func(s state.Snapshot) {
		push(streamMessage{Type: "state", State: &s})
	})
	defer cancelState()
	cancelPlayer := l.Player.OnStateChanged(func(s player.State) {
		push(streamMessage{Type: "player", Player: &s})
	})
	defer cancelPlayer()

	snap := l.Store().Snapshot()
	ps := l.Player.State()
	push(streamMessage{Type: "state", State: &snap})
	push(streamMessage{Type: "player", Player: &ps})

	var gate versionGate

	done := make(chan struct{})
	go h.readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case m := <-out:
			if !gate.admit(m) {
				continue
			}
			data, err := json.Marshal(m)
			if err != nil {
				h.logger.Error("encoding stream message failed", "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("stream write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// versionGate drops state messages that are not newer than the last one
// written. Subscribers are called outside the store lock, so snapshots can
// reach the stream out of order.
type versionGate struct {
	seen bool
	last uint64
}

func (g *versionGate) admit(m streamMessage) bool {
	if m.State == nil {
		return true
	}
	if g.seen && m.State.Version <= g.last {
		return false
	}
	g.seen = true
	g.last = m.State.Version
	return true
}

// readPump discards client frames and closes done when the peer goes away.
func (h *Handlers) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
