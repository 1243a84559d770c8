package web

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// stream pushes the re-rendered chat panel and uploader to the browser every
// time the session's panel state changes, until either side goes away.
func (s *Server) stream(c *gin.Context) {
	sess := currentSession(c)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed for session %s: %v", sess.ID, err)

		return
	}

	defer func() {
		closeErr := conn.Close()
		if closeErr != nil {
			s.log.Warn("Failed to close websocket for session %s: %v", sess.ID, closeErr)
		}
	}()

	updates, unsubscribe := sess.Panel.Subscribe()
	defer unsubscribe()

	gone := make(chan struct{})

	go func() {
		defer close(gone)

		for {
			_, _, readErr := conn.ReadMessage()
			if readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case state, ok := <-updates:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))

				return
			}

			sess.Uploader.SetDisabled(state.Loading)

			fragment, renderErr := s.streamFragment(sess, state)
			if renderErr != nil {
				s.log.Error("Failed to render update for session %s: %v", sess.ID, renderErr)

				return
			}

			writeErr := conn.WriteMessage(websocket.TextMessage, fragment)
			if writeErr != nil {
				s.log.Warn("Failed to push update to session %s: %v", sess.ID, writeErr)

				return
			}
		}
	}
}
