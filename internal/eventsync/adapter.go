package eventsync

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atelierhq/atelier/internal/metrics"
)

// Refresher re-fetches authoritative contract state. Implemented by the
// contract service; the trigger label distinguishes push from poll.
type Refresher interface {
	Refresh(ctx context.Context, contractID, trigger string) error
}

// wsConn is the subset of *websocket.Conn the adapter reads from.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// Config controls the adapter's connection to the push event source.
type Config struct {
	// URL is the websocket endpoint of the event source.
	URL string

	// ReconnectDelay is the wait before re-dialing after a dropped
	// connection. Defaults to 5s.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds the websocket dial. Defaults to 10s.
	HandshakeTimeout time.Duration
}

// Adapter consumes push frames from the event source and converges them with
// the poll path: chat events for a watched room and contract notifications
// both trigger Refresher.Refresh for the referenced contract, never a local
// mutation.
type Adapter struct {
	cfg       Config
	refresher Refresher
	logger    *slog.Logger

	dial func(ctx context.Context) (wsConn, error)

	mu    sync.RWMutex
	rooms map[string]string // chat room ID -> contract ID

	stop chan struct{}
	done chan struct{}
}

// NewAdapter creates an adapter that dials cfg.URL.
func NewAdapter(cfg Config, refresher Refresher, logger *slog.Logger) *Adapter {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	a := &Adapter{
		cfg:       cfg,
		refresher: refresher,
		logger:    logger,
		rooms:     make(map[string]string),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	a.dial = func(ctx context.Context) (wsConn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: a.cfg.HandshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, a.cfg.URL, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return a
}

// WatchRoom binds a chat room to a contract. Chat events for unwatched rooms
// are counted and dropped.
func (a *Adapter) WatchRoom(roomID, contractID string) {
	a.mu.Lock()
	a.rooms[roomID] = contractID
	a.mu.Unlock()
}

// UnwatchRoom removes a room binding.
func (a *Adapter) UnwatchRoom(roomID string) {
	a.mu.Lock()
	delete(a.rooms, roomID)
	a.mu.Unlock()
}

func (a *Adapter) roomContract(roomID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.rooms[roomID]
	return id, ok
}

// Start begins consuming the event source in a background goroutine,
// reconnecting after dropped connections until Stop is called.
func (a *Adapter) Start(ctx context.Context) {
	go a.run(ctx)
	a.logger.Info("event sync adapter started", "url", a.cfg.URL)
}

// Stop terminates the adapter and waits for the consume loop to exit.
func (a *Adapter) Stop() {
	close(a.stop)
	<-a.done
	a.logger.Info("event sync adapter stopped")
}

func (a *Adapter) run(ctx context.Context) {
	defer close(a.done)

	for {
		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, err := a.dial(ctx)
		if err != nil {
			a.logger.Warn("event source dial failed", "error", err)
			if !a.sleep(ctx, a.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		a.consume(ctx, conn)
		_ = conn.Close()

		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		if !a.sleep(ctx, a.cfg.ReconnectDelay) {
			return
		}
	}
}

// consume reads until the connection errors or the adapter stops. A fresh
// parser per connection: a partial frame never survives a reconnect.
func (a *Adapter) consume(ctx context.Context, conn wsConn) {
	parser := &FrameParser{}

	for {
		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				a.logger.Warn("event source read error", "error", err)
			}
			return
		}

		frames, err := parser.Feed(data)
		if err != nil {
			a.logger.Warn("event frame discarded", "error", err)
			metrics.PushEventsTotal.WithLabelValues("malformed").Inc()
		}
		for _, frame := range frames {
			a.handleFrame(ctx, frame)
		}
	}
}

func (a *Adapter) handleFrame(ctx context.Context, frame []byte) {
	ev, err := DecodeEvent(frame)
	if err != nil {
		a.logger.Debug("unparseable push frame", "error", err)
		metrics.PushEventsTotal.WithLabelValues("malformed").Inc()
		return
	}

	switch ev.Type {
	case KindChat:
		contractID, ok := a.roomContract(ev.RoomID)
		if !ok {
			metrics.PushEventsTotal.WithLabelValues("ignored").Inc()
			return
		}
		metrics.PushEventsTotal.WithLabelValues("chat").Inc()
		a.refresh(ctx, contractID)

	case KindNotification:
		if !isContractAlarm(ev.AlarmType) || ev.RelatedID == "" {
			metrics.PushEventsTotal.WithLabelValues("ignored").Inc()
			return
		}
		metrics.PushEventsTotal.WithLabelValues("notification").Inc()
		a.refresh(ctx, ev.RelatedID)
	}
}

// refresh triggers a full authoritative re-fetch. Errors are logged, not
// propagated: the poll path converges on the same state on its next tick.
func (a *Adapter) refresh(ctx context.Context, contractID string) {
	if err := a.refresher.Refresh(ctx, contractID, "push"); err != nil {
		a.logger.Warn("push-triggered refresh failed", "contract_id", contractID, "error", err)
	}
}

// isContractAlarm reports whether a notification alarm type references a
// contract. The source emits CONTRACT_* alarm types for lifecycle events.
func isContractAlarm(alarmType string) bool {
	return strings.HasPrefix(alarmType, "CONTRACT")
}

func (a *Adapter) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-a.stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
