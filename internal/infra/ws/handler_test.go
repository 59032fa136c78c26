//go:build !integration

package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/infra/bus"
)

func dialTestHandler(t *testing.T, b *bus.Bus, conversationID string) *websocket.Conn {
	t.Helper()
	logger := zerolog.Nop()
	h := NewHandler(b, &logger)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, conversationID)
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

func TestHandler_StreamsPublishedEvents(t *testing.T) {
	t.Parallel()

	logger := zerolog.Nop()
	b := bus.New(4, &logger)
	conn := dialTestHandler(t, b, "conv-1")

	// The subscription is registered during the upgrade handshake; give the
	// server goroutine a beat before publishing.
	deadline := time.Now().Add(time.Second)
	for {
		b.Publish("conv-1", model.Event{Type: model.EventJobUpdate, JobID: "job-1", Status: model.JobStatusCompleted})
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var ev model.Event
		if err := conn.ReadJSON(&ev); err == nil {
			if ev.Type != model.EventJobUpdate || ev.JobID != "job-1" {
				t.Fatalf("got %+v", ev)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no event arrived over the websocket")
		}
	}
}

func TestHandler_ClientDisconnectReleasesSubscription(t *testing.T) {
	t.Parallel()

	logger := zerolog.Nop()
	b := bus.New(4, &logger)
	conn := dialTestHandler(t, b, "conv-1")
	conn.Close()

	// Publishing after the peer went away must not panic or block; the
	// handler tears the subscription down on its own.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		b.Publish("conv-1", model.Event{Type: model.EventJobUpdate, JobID: "job-after-close"})
		time.Sleep(10 * time.Millisecond)
	}
}
