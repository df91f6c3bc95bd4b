package wsclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/p2pcall/internal/adapters/wsclient"
	"github.com/dkeye/p2pcall/internal/domain"
	"github.com/gorilla/websocket"
)

// echoServer sends back every message with From set, like the relay does.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg domain.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			msg.From = "server"
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := echoServer(t)
	c := wsclient.New("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	for _, kind := range []domain.Kind{domain.KindJoin, domain.KindPing, domain.KindEndCall} {
		if err := c.Send(domain.Message{Type: kind, Room: "r1"}); err != nil {
			t.Fatalf("send %s: %v", kind, err)
		}
	}

	for _, want := range []domain.Kind{domain.KindJoin, domain.KindPing, domain.KindEndCall} {
		select {
		case got := <-c.Incoming():
			if got.Type != want || got.From != "server" || got.Room != "r1" {
				t.Fatalf("got %+v, want type %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestClientSendAfterClose(t *testing.T) {
	srv := echoServer(t)
	c := wsclient.New("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.Close()
	c.Close()

	if err := c.Send(domain.Message{Type: domain.KindPing}); !errors.Is(err, wsclient.ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}

	select {
	case _, ok := <-c.Incoming():
		for ok {
			_, ok = <-c.Incoming()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("incoming not closed after Close")
	}
}

func TestClientBadURL(t *testing.T) {
	c := wsclient.New("ws://127.0.0.1:1/nowhere")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestClientCloseFlushesQueuedMessages(t *testing.T) {
	const n = 50
	got := make(chan int, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		count := 0
		for {
			var msg domain.Message
			if err := conn.ReadJSON(&msg); err != nil {
				got <- count
				return
			}
			count++
		}
	}))
	t.Cleanup(srv.Close)

	c := wsclient.New("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for i := 0; i < n-1; i++ {
		if err := c.Send(domain.Message{Type: domain.KindChat}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := c.Send(domain.Message{Type: domain.KindEndCall}); err != nil {
		t.Fatalf("send end-call: %v", err)
	}
	c.Close()

	select {
	case count := <-got:
		if count != n {
			t.Fatalf("server got %d messages before close, want %d", count, n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close")
	}
}
