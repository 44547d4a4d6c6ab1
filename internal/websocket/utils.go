package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single event write. A client that stops draining
// its socket loses the connection, not the attempt.
const writeWait = 10 * time.Second

// WriteTyped sends one typed attempt event to the client.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends an ErrorResponse without closing the connection.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}
