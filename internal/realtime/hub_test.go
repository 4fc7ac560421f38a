package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/atelierhq/atelier/internal/contract"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func sampleContract(id string) *contract.Contract {
	return &contract.Contract{
		ID:     id,
		Leader: contract.Party{UserID: "user_leader"},
		Artist: contract.Party{UserID: "user_artist"},
		Status: contract.StatusPending,
	}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: contract.EventOffered, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []string{contract.EventOffered, contract.EventSettled},
	}}

	offered := &Event{Type: contract.EventOffered}
	settled := &Event{Type: contract.EventSettled}
	declined := &Event{Type: contract.EventDeclined}

	if !h.shouldSend(client, offered) {
		t.Error("Should receive offered events")
	}
	if !h.shouldSend(client, settled) {
		t.Error("Should receive settled events")
	}
	if h.shouldSend(client, declined) {
		t.Error("Should NOT receive declined events")
	}
}

func TestShouldSend_ContractFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		ContractIDs: []string{"ct_1"},
	}}

	matching := &Event{Type: contract.EventOffered, ContractID: "ct_1", Contract: sampleContract("ct_1")}
	other := &Event{Type: contract.EventOffered, ContractID: "ct_2", Contract: sampleContract("ct_2")}

	if !h.shouldSend(client, matching) {
		t.Error("Should match watched contract")
	}
	if h.shouldSend(client, other) {
		t.Error("Should NOT match unrelated contract")
	}
}

func TestShouldSend_UserFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"user_artist"},
	}}

	asParty := &Event{Type: contract.EventOffered, ContractID: "ct_1", Contract: sampleContract("ct_1")}
	if !h.shouldSend(client, asParty) {
		t.Error("Should match a contract where the user is a party")
	}

	stranger := sampleContract("ct_2")
	stranger.Artist.UserID = "user_other"
	notParty := &Event{Type: contract.EventOffered, ContractID: "ct_2", Contract: stranger}
	if h.shouldSend(client, notParty) {
		t.Error("Should NOT match a contract where the user is not a party")
	}

	noSnapshot := &Event{Type: contract.EventOffered, ContractID: "ct_3"}
	if h.shouldSend(client, noSnapshot) {
		t.Error("User filter without a snapshot should not match")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: contract.EventOffered}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.ContractEvent(ctx, contract.EventOffered, sampleContract("ct_1"))
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.ContractEvent(ctx, contract.EventArtistSigned, sampleContract("ct_1"))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants settlement events
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []string{contract.EventSettled}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// An offer event should be filtered out
	h.ContractEvent(ctx, contract.EventOffered, sampleContract("ct_1"))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive offer event")
	default:
		// Good - filtered out
	}

	// A settlement event should be received
	h.ContractEvent(ctx, contract.EventSettled, sampleContract("ct_1"))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive settlement event")
	}
}
