package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"deliveryFieldOps/internal/channel"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	c := newClient(channel.TransportWebSocket)
	s.hub.add(c)
	s.log.Info("client connected", "client", c.id, "transport", c.transport, "platform", r.URL.Query().Get("platform"))

	go s.writer(conn, c)
	s.reader(conn, c)

	s.hub.remove(c)
	s.log.Info("client disconnected", "client", c.id, "driver", c.driverName())
}

// reader handles inbound envelopes in arrival order until the connection fails
// or the client is dropped.
func (s *Server) reader(conn *websocket.Conn, c *client) {
	conn.SetReadLimit(maxMessageSize)
	go func() {
		<-c.done
		_ = conn.Close()
	}()
	for {
		var env channel.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !c.closed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed", "client", c.id, "error", err)
			}
			c.close()
			return
		}
		s.handle(context.Background(), c, env)
	}
}

func (s *Server) writer(conn *websocket.Conn, c *client) {
	for {
		select {
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"), time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case env := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				s.log.Warn("websocket write failed", "client", c.id, "error", err)
				c.close()
				return
			}
		}
	}
}
