package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 * 1024
	writeWait      = 10 * time.Second
	sendBuffer     = 64
)

// WS wraps a single websocket connection with dedicated
// reader/writer pumps, so all reads and writes are serialized.
type WS struct {
	conn deadlinedConn
	send chan []byte

	// OnMessage is called inline from the read pump, which
	// preserves the per-connection message order.
	OnMessage func(message []byte)

	Done chan struct{}

	once sync.Once
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
	// signaling clients connect from arbitrary web origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer upgrades an incoming HTTP request to a websocket connection.
func NewServer(w http.ResponseWriter, r *http.Request) (*WS, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn), nil
}

func newSocket(conn *websocket.Conn) *WS {
	ws := &WS{
		conn: deadlinedConn{sock: conn, wt: writeWait},
		send: make(chan []byte, sendBuffer),
		Done: make(chan struct{}),
	}
	go ws.writer()
	return ws
}

// Listen starts the read pump. The OnMessage handler
// should be set before the call.
func (ws *WS) Listen() { go ws.reader() }

func (ws *WS) RemoteAddr() string { return ws.conn.sock.RemoteAddr().String() }

// Write queues a message for the write pump.
// Messages are dropped when the connection is gone.
func (ws *WS) Write(data []byte) {
	select {
	case <-ws.Done:
	case ws.send <- data:
	}
}

// WriteNow writes the message directly, bypassing the write pump.
// Only safe before the connection has been handed to a session.
func (ws *WS) WriteNow(data []byte) error {
	return ws.conn.write(websocket.TextMessage, data)
}

// Close sends a close frame and tears the connection down.
// Safe to call multiple times.
func (ws *WS) Close() {
	ws.once.Do(func() {
		_ = ws.conn.write(websocket.CloseMessage, []byte{})
		_ = ws.conn.close()
	})
}

// reader pumps messages from the connection to the OnMessage callback.
func (ws *WS) reader() {
	defer func() {
		close(ws.Done)
		_ = ws.conn.close()
	}()
	ws.conn.sock.SetReadLimit(maxMessageSize)
	for {
		message, err := ws.conn.read()
		if err != nil {
			return
		}
		if ws.OnMessage != nil {
			ws.OnMessage(message)
		}
	}
}

// writer pumps messages from the send channel to the connection.
func (ws *WS) writer() {
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ws.Done:
			return
		}
	}
}
