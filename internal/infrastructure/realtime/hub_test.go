package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHub_RoutesByChannel(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("s1")
	b := h.Subscribe("s2")
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Broadcast(context.Background(), Event{Channel: "s1", Name: "item_completed", Data: map[string]string{"id": "free_content"}})

	select {
	case ev := <-a.Events():
		assert.Equal(t, "item_completed", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("expected event on s1")
	}
	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event on s2: %v", ev)
	default:
	}
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	c := h.Subscribe("s")
	defer h.Unsubscribe(c)

	for i := 0; i < clientBuffer+10; i++ {
		h.Broadcast(context.Background(), Event{Channel: "s", Name: "x"})
	}
	assert.Len(t, c.Events(), clientBuffer)
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub()
	c := h.Subscribe("s")
	assert.Equal(t, 1, h.Subscribers("s"))

	h.Unsubscribe(c)
	h.Unsubscribe(c)
	assert.Equal(t, 0, h.Subscribers("s"))
	<-c.Done()
}

func TestHub_IgnoresEventsWithoutChannel(t *testing.T) {
	h := NewHub()
	c := h.Subscribe("s")
	defer h.Unsubscribe(c)

	h.Broadcast(context.Background(), Event{Name: "pipeline_completed"})
	h.Broadcast(context.Background(), Event{Channel: "other", Name: "pipeline_completed"})
	assert.Empty(t, c.Events())
	assert.Equal(t, 15*time.Second, h.Heartbeat())
}
