package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"wabridge/pkg/logger"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

// handleEvents streams connection status updates over a websocket. The
// current snapshot is sent first, then every state change until the peer
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := s.cfg.Server.AllowOrigin
			return origin == "" || origin == "*" || origin == r.Header.Get("Origin")
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("server", "Websocket upgrade failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return
	}
	defer conn.Close()

	updates, cancel := s.messenger.Subscribe()
	defer cancel()

	// Drain the reader so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	if err := conn.WriteJSON(s.messenger.Status()); err != nil {
		return
	}

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
