package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// wsClient is one websocket connection with its own writer goroutine.
type wsClient struct {
	id         int64
	conn       *websocket.Conn
	server     *Server
	sendCh     chan any
	done       chan struct{}
	closeOnce  sync.Once
	subscribed atomic.Bool
}

// Send queues msg. A client that cannot keep up loses messages.
func (c *wsClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.WithField("client", c.id).Warn("dropping message, send buffer full")
	}
}

// Close closes the connection once.
func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.WithError(err).Warn("websocket read failed")
			}
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.Send(rpcResponse{JSONRPC: "2.0", Error: &rpcError{codeParseError, "Parse error"}})
			continue
		}
		c.Send(c.server.dispatch(req, c))
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsClient{
		id:     atomic.AddInt64(&s.nextID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, sendBuffer),
		done:   make(chan struct{}),
	}
	s.clientMu.Lock()
	s.clients[c.id] = c
	s.clientMu.Unlock()
	s.logger.WithField("client", c.id).Debug("websocket connected")

	go c.writePump()
	c.Send(notification{JSONRPC: "2.0", Method: "notify_sculpture_connected"})
	c.readPump()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientMu.Lock()
	delete(s.clients, c.id)
	s.clientMu.Unlock()
	s.logger.WithField("client", c.id).Debug("websocket disconnected")
}
