package hub

import (
	"encoding/json"
	"testing"
	"time"
)

type envelopeMsg struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func addClient(t *testing.T, h *Hub, id string) *Client {
	t.Helper()
	return addClientBuffered(t, h, id, 8)
}

func addClientBuffered(t *testing.T, h *Hub, id string, buf int) *Client {
	t.Helper()
	before := h.ClientCount()
	c := &Client{ID: id, Send: make(chan []byte, buf), hub: h, done: make(chan struct{})}
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() > before })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func recvEvent(t *testing.T, c *Client) *envelopeMsg {
	t.Helper()
	select {
	case raw := <-c.Send:
		var msg envelopeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		return &msg
	case <-time.After(time.Second):
		t.Fatal("no message within deadline")
		return nil
	}
}

func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected message: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPositionUpdateReachesEveryClient(t *testing.T) {
	h := startHub(t)
	a := addClient(t, h, "a")
	b := addClient(t, h, "b")
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	h.PublishPosition("IMEI-1", map[string]string{"identifier": "IMEI-1"})

	for _, c := range []*Client{a, b} {
		msg := recvEvent(t, c)
		if msg.Type != EventPositionUpdate {
			t.Errorf("client %s got %s, want %s", c.ID, msg.Type, EventPositionUpdate)
		}
	}
}

func TestAlertFeedRequiresSubscription(t *testing.T) {
	h := startHub(t)
	sub := addClient(t, h, "sub")
	other := addClient(t, h, "other")
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	h.Subscribe(sub, TopicAlerts)
	time.Sleep(20 * time.Millisecond)

	h.PublishAlert("IMEI-1", map[string]string{"kind": "overspeed"})

	if msg := recvEvent(t, sub); msg.Type != EventAlertNew {
		t.Errorf("got %s, want %s", msg.Type, EventAlertNew)
	}
	expectSilence(t, other)
}

func TestTrackerFeedRoutesBySource(t *testing.T) {
	h := startHub(t)
	c := addClient(t, h, "c")

	h.Subscribe(c, TrackerTopic("IMEI-1"))
	h.Unsubscribe(c, TopicAll)
	time.Sleep(20 * time.Millisecond)

	h.PublishAlert("IMEI-1", map[string]string{"kind": "overspeed"})
	if msg := recvEvent(t, c); msg.Type != EventAlertNew {
		t.Errorf("got %s, want %s", msg.Type, EventAlertNew)
	}

	h.PublishAlert("IMEI-2", map[string]string{"kind": "overspeed"})
	expectSilence(t, c)
}

func TestUnsubscribeAllMutesGlobalFeed(t *testing.T) {
	h := startHub(t)
	c := addClient(t, h, "c")

	h.Unsubscribe(c, TopicAll)
	time.Sleep(20 * time.Millisecond)

	h.PublishPosition("IMEI-1", nil)
	expectSilence(t, c)

	h.Subscribe(c, TopicAll)
	time.Sleep(20 * time.Millisecond)

	h.PublishPosition("IMEI-1", nil)
	if msg := recvEvent(t, c); msg.Type != EventPositionUpdate {
		t.Errorf("got %s, want %s", msg.Type, EventPositionUpdate)
	}
}

func TestGeofenceFeedRoutesByRegion(t *testing.T) {
	h := startHub(t)
	c := addClient(t, h, "c")

	h.Subscribe(c, GeofenceTopic(5))
	h.Unsubscribe(c, TopicAll)
	time.Sleep(20 * time.Millisecond)

	h.PublishGeofence(5, "IMEI-1", map[string]string{"event_type": "enter"})
	if msg := recvEvent(t, c); msg.Type != EventGeofence {
		t.Errorf("got %s, want %s", msg.Type, EventGeofence)
	}

	h.PublishGeofence(6, "IMEI-1", nil)
	expectSilence(t, c)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t)
	addClientBuffered(t, h, "slow", 1)

	// First fills the buffer, second finds it full and drops the client
	h.PublishPosition("IMEI-1", nil)
	h.PublishPosition("IMEI-1", nil)

	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestSendAfterDropDoesNotPanic(t *testing.T) {
	h := startHub(t)
	slow := addClientBuffered(t, h, "slow", 1)

	h.PublishPosition("IMEI-1", nil)
	h.PublishPosition("IMEI-1", nil)
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	// The read pump may still answer a ping for a client the hub just
	// dropped; the reply must be discarded, not crash the process.
	slow.handleCommand(clientCommand{Type: "ping"})

	if slow.TrySend([]byte(`{}`)) {
		t.Error("send to a dropped client should report failure")
	}
}

func TestUnregisterRemovesClient(t *testing.T) {
	h := startHub(t)
	c := addClient(t, h, "c")

	h.Unregister(c)
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	// done is closed on removal so the write pump exits
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Error("done channel not closed")
	}

	if c.TrySend([]byte(`{}`)) {
		t.Error("send to an unregistered client should report failure")
	}
}
