package connections

import (
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds a single websocket write so one stalled peer cannot
// hold a broadcast goroutine forever.
const writeTimeout = 5 * time.Second

// WSTransport adapts a gorilla websocket connection to the Transport
// interface. Frames are written as binary messages.
type WSTransport struct {
	conn *websocket.Conn
}

func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{
		conn: conn,
	}
}

func (t *WSTransport) WriteMessage(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *WSTransport) Close() error {
	return t.conn.Close()
}
