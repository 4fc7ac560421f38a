// Package eventsync reconciles the push event source with the contract
// engine. Push frames never mutate local state; every relevant event
// triggers a re-fetch of authoritative contract state, the same idempotent
// action the fixed-interval poll performs. Receiving both push and poll for
// the same change is therefore harmless.
package eventsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrFrameTooLarge = errors.New("eventsync: frame exceeds maximum size")
	ErrUnknownEvent  = errors.New("eventsync: unrecognized event shape")
)

// MaxFrameSize bounds a single frame. A partial frame growing past this
// indicates a misbehaving source, not a slow one.
const MaxFrameSize = 64 * 1024

// FrameParser splits a byte stream into newline-delimited frames. Chunks may
// end anywhere, including in the middle of a multi-byte UTF-8 sequence: the
// parser splits on raw '\n' bytes, which never occur inside a multi-byte
// rune, and carries the unterminated tail until the next chunk completes it.
type FrameParser struct {
	buf []byte
}

// Feed appends chunk to the carried partial and returns every complete frame
// now available, oldest first. Returned slices are copies; the caller may
// retain them. Empty lines are skipped. If the carried partial exceeds
// MaxFrameSize the parser resets and returns ErrFrameTooLarge.
func (p *FrameParser) Feed(chunk []byte) ([][]byte, error) {
	p.buf = append(p.buf, chunk...)

	var frames [][]byte
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(p.buf[:i], []byte{'\r'})
		if len(line) > 0 {
			frame := make([]byte, len(line))
			copy(frame, line)
			frames = append(frames, frame)
		}
		p.buf = p.buf[i+1:]
	}

	if len(p.buf) > MaxFrameSize {
		p.Reset()
		return frames, ErrFrameTooLarge
	}
	return frames, nil
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (p *FrameParser) Pending() int {
	return len(p.buf)
}

// Reset discards any carried partial frame.
func (p *FrameParser) Reset() {
	p.buf = nil
}

// EventKind discriminates push event shapes.
type EventKind string

const (
	KindChat         EventKind = "chat"
	KindNotification EventKind = "notification"
)

// Event is one decoded push frame. Only identity fields are ever read; the
// business payload of a push event is never trusted as ground truth.
type Event struct {
	Type EventKind `json:"type"`

	// chat events
	RoomID    string `json:"roomId,omitempty"`
	MessageID string `json:"messageId,omitempty"`

	// notification events
	NotificationID string `json:"notificationId,omitempty"`
	AlarmType      string `json:"alarmType,omitempty"`
	RelatedID      string `json:"relatedId,omitempty"`
}

// DecodeEvent parses a single frame. Frames without an explicit type are
// classified by shape: a notificationId marks a notification, a roomId a
// chat message. Anything else is ErrUnknownEvent.
func DecodeEvent(frame []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Event{}, fmt.Errorf("eventsync: decode frame: %w", err)
	}

	if ev.Type == "" {
		switch {
		case ev.NotificationID != "":
			ev.Type = KindNotification
		case ev.RoomID != "":
			ev.Type = KindChat
		}
	}

	switch ev.Type {
	case KindChat:
		if ev.RoomID == "" {
			return Event{}, ErrUnknownEvent
		}
	case KindNotification:
		if ev.NotificationID == "" {
			return Event{}, ErrUnknownEvent
		}
	default:
		return Event{}, ErrUnknownEvent
	}
	return ev, nil
}
