package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// dialTestConn runs serverFn against an upgraded server-side connection and
// returns the client side.
func dialTestConn(t *testing.T, serverFn func(*websocket.Conn)) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serverFn(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWriteErrorFrame(t *testing.T) {
	conn := dialTestConn(t, func(server *websocket.Conn) {
		_ = WriteError(server, "unknown action: subscribe")
	})

	var frame ErrorResponse
	if err := ReadJSON(conn, &frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Event != EventError {
		t.Errorf("event = %s, want %s", frame.Event, EventError)
	}
	if frame.Error != "unknown action: subscribe" {
		t.Errorf("error = %q, want the rejected action named", frame.Error)
	}
}

func TestWriteTypedPong(t *testing.T) {
	conn := dialTestConn(t, func(server *websocket.Conn) {
		_ = WriteTyped(server, PongResponse{Event: EventPong})
	})

	var frame PongResponse
	if err := ReadJSON(conn, &frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Event != EventPong {
		t.Errorf("event = %s, want %s", frame.Event, EventPong)
	}
}
