package events

import "testing"

func TestHubPublish(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(MotionState, MotionStateEvent{Device: "a", Direction: "backward", State: "increasing"})

	ev := <-ch
	if ev.Name != MotionState {
		t.Fatalf("event name = %s, want %s", ev.Name, MotionState)
	}
	payload, err := DecodeAs[MotionStateEvent](ev)
	if err != nil {
		t.Fatalf("DecodeAs() error: %v", err)
	}
	if payload.Device != "a" || payload.State != "increasing" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish(MotionPosition, MotionPositionEvent{CurrentSteps: int64(i)})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered %d events, want %d", len(ch), subscriberBuffer)
	}

	h.Unsubscribe(ch)
	if h.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after unsubscribe", h.Subscribers())
	}
	// unsubscribing twice must not panic on a closed channel
	h.Unsubscribe(ch)
}

func TestNilHub(t *testing.T) {
	var h *Hub
	h.Publish(DeviceReady, DeviceReadyEvent{Device: "a"})
}
