package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

type helloFrame struct {
	Kind string `json:"kind"`
	TS   int64  `json:"ts"`
}

// handleStream upgrades to a websocket and forwards simulator events until
// either side goes away
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := s.simulator.Subscribe()
	defer unsubscribe()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(helloFrame{Kind: "hello", TS: time.Now().UnixMilli()}); err != nil {
		return
	}

	// The reader only exists to notice the client closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("Websocket write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
