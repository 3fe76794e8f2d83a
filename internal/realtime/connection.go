package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrBufferFull       = errors.New("connection send buffer full")
)

// Connection adapts a websocket to Conn. Outbound frames go through a
// buffered channel drained by a single writer goroutine.
type Connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	once   sync.Once
	closed chan struct{}
}

func NewConnection(ws *websocket.Conn, sendBuffer int) *Connection {
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	return &Connection{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

// Send enqueues a frame and never touches the socket. A client that cannot
// keep up is marked closed and torn down in the background.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		if c.markClosed() {
			go c.shutdown(websocket.CloseTryAgainLater, "send buffer full")
		}
		return ErrBufferFull
	}
}

func (c *Connection) Close(code int, reason string) {
	if c.markClosed() {
		c.shutdown(code, reason)
	}
}

// markClosed reports whether this call was the one that closed c.
func (c *Connection) markClosed() bool {
	first := false
	c.once.Do(func() {
		close(c.closed)
		first = true
	})
	return first
}

// shutdown may wait up to writeWait behind a stalled writer.
func (c *Connection) shutdown(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = c.ws.Close()
}

// Serve runs the write loop in the background and reads until the peer goes
// away. It returns once the connection is finished.
func (c *Connection) Serve() {
	go c.writeLoop()
	c.readLoop()
	c.Close(websocket.CloseNormalClosure, "")
}

// readLoop only keeps the connection alive: clients talk to the server over
// HTTP and receive events here.
func (c *Connection) readLoop() {
	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}
