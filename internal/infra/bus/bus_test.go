//go:build !integration

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"companion-pipeline/internal/domain/model"
)

func newTestBus(buffer int) *Bus {
	logger := zerolog.Nop()
	return New(buffer, &logger)
}

func recv(t *testing.T, sub *Subscription) model.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

func TestBus_FanOut(t *testing.T) {
	t.Parallel()

	b := newTestBus(4)
	first := b.Subscribe("conv-1")
	second := b.Subscribe("conv-1")
	defer first.Close()
	defer second.Close()

	ev := model.Event{Type: model.EventJobUpdate, JobID: "job-1", ConversationID: "conv-1"}
	b.Publish("conv-1", ev)

	if got := recv(t, first); got.JobID != "job-1" {
		t.Fatalf("first subscriber got %+v", got)
	}
	if got := recv(t, second); got.JobID != "job-1" {
		t.Fatalf("second subscriber got %+v", got)
	}
}

func TestBus_ConversationIsolation(t *testing.T) {
	t.Parallel()

	b := newTestBus(4)
	mine := b.Subscribe("conv-1")
	other := b.Subscribe("conv-2")
	defer mine.Close()
	defer other.Close()

	b.Publish("conv-1", model.Event{Type: model.EventJobUpdate, JobID: "job-1"})

	if got := recv(t, mine); got.JobID != "job-1" {
		t.Fatalf("got %+v", got)
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("conv-2 subscriber leaked event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	b := newTestBus(4)
	// Must not panic or block.
	b.Publish("conv-nobody", model.Event{Type: model.EventJobUpdate, JobID: "job-1"})
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	t.Parallel()

	b := newTestBus(1)
	slow := b.Subscribe("conv-1")
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("conv-1", model.Event{Type: model.EventJobUpdate, JobID: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	// The buffered event is still deliverable.
	if got := recv(t, slow); got.JobID != "flood" {
		t.Fatalf("got %+v", got)
	}
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	b := newTestBus(4)
	sub := b.Subscribe("conv-1")
	sub.Close()
	sub.Close()

	if _, open := <-sub.Events(); open {
		t.Fatal("channel must be closed after Close")
	}

	// Publishing after close must not panic.
	b.Publish("conv-1", model.Event{Type: model.EventJobUpdate})
}

func TestBus_KeepAlive(t *testing.T) {
	t.Parallel()

	b := newTestBus(4)
	sub := b.Subscribe("conv-1")
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.RunKeepAlive(ctx, 10*time.Millisecond)

	ev := recv(t, sub)
	if ev.Type != model.EventKeepAlive {
		t.Fatalf("expected keepalive, got %s", ev.Type)
	}
}
