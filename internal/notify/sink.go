package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/atelierhq/atelier/internal/contract"
	"github.com/atelierhq/atelier/internal/idgen"
)

// Sink adapts the dispatcher to the contract engine's event sink. Every
// confirmed transition is offered to both parties' registered webhooks.
// Delivery is fire-and-forget: a refused webhook never affects the
// transition that produced it.
type Sink struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewSink creates an event sink backed by a dispatcher.
func NewSink(d *Dispatcher, logger *slog.Logger) *Sink {
	return &Sink{d: d, logger: logger}
}

// ContractEvent implements contract.EventSink.
func (s *Sink) ContractEvent(_ context.Context, event string, c *contract.Contract) {
	if s == nil || s.d == nil {
		return
	}

	ev := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      EventType(event),
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"contractId":   c.ID,
			"status":       string(c.Status),
			"title":        c.Title,
			"totalAmount":  c.TotalAmount,
			"leaderUserId": c.Leader.UserID,
			"artistUserId": c.Artist.UserID,
		},
	}

	// The dispatch context is detached: deliveries must not be cut short by
	// the request that triggered the transition.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	go func() {
		defer cancel()
		for _, userID := range []string{c.Leader.UserID, c.Artist.UserID} {
			if err := s.d.DispatchToUser(ctx, userID, ev); err != nil {
				s.logger.Warn("notification dispatch failed",
					"event", event, "user_id", userID, "error", err)
			}
		}
		// Deliveries run async inside the dispatcher; hold the context open
		// for the configured timeout.
		<-ctx.Done()
	}()
}

// Fanout combines several event sinks into one.
type Fanout []contract.EventSink

// ContractEvent implements contract.EventSink.
func (f Fanout) ContractEvent(ctx context.Context, event string, c *contract.Contract) {
	for _, sink := range f {
		sink.ContractEvent(ctx, event, c)
	}
}
