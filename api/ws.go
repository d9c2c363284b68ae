package api

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/replay/domain"
)

// Stream upgrades to a WebSocket and relays every broadcast update for
// the replay, in order, until the client disconnects or the replay
// closes. The first frame is the current state snapshot.
// GET /v1/replays/:replay_id/stream
func (h *Handler) Stream(c echo.Context) error {
	sess, err := h.registry.Get(c.Param("replay_id"))
	if err != nil {
		return h.fail(c, err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	send := make(chan []byte, h.config.SubscriberBuffer)
	unsubscribe := h.bc.Subscribe(sess.ReplayID, func(u domain.Update) {
		data, err := json.Marshal(u)
		if err != nil {
			log.Printf("ERROR: marshal update for replay %s: %v", sess.ReplayID, err)
			return
		}
		select {
		case send <- data:
		default:
			// Connection can't keep up; drop it rather than block
			// the broadcast goroutine.
		}
		if u.Type == domain.UpdateClosed {
			close(send)
		}
	})

	// Seed the client with the current snapshot. Anything published
	// between subscribe and here supersedes it by sequence number.
	state := sess.Snapshot()
	if seed, err := json.Marshal(domain.Update{ReplayID: sess.ReplayID, Type: domain.UpdateState, State: &state}); err == nil {
		_ = ws.SetWriteDeadline(time.Now().Add(h.config.WSWriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, seed); err != nil {
			unsubscribe()
			ws.Close()
			return nil
		}
	}

	go h.writePump(ws, send, unsubscribe)
	go h.readPump(ws, unsubscribe)
	return nil
}

// writePump writes updates and pings to the WebSocket connection.
func (h *Handler) writePump(ws *websocket.Conn, send <-chan []byte, unsubscribe func()) {
	ticker := time.NewTicker(h.config.WSPingInterval)
	defer func() {
		ticker.Stop()
		unsubscribe()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-send:
			_ = ws.SetWriteDeadline(time.Now().Add(h.config.WSWriteTimeout))
			if !ok {
				// Replay closed
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.config.WSWriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and tears the subscription down when
// the connection drops.
func (h *Handler) readPump(ws *websocket.Conn, unsubscribe func()) {
	defer func() {
		unsubscribe()
		ws.Close()
	}()

	_ = ws.SetReadDeadline(time.Now().Add(h.config.WSReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.WSReadTimeout))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}
