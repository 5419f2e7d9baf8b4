package ui

import (
	"github.com/rygwdn/CosoriKettleBLE/internal/kettle"
	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
)

// EventKind discriminates Feed events
type EventKind int

const (
	// EventStatus carries a fresh status snapshot
	EventStatus EventKind = iota
	// EventHeatingDone fires when the kettle reaches temperature
	EventHeatingDone
	// EventHoldDone fires when the keep-warm hold expires
	EventHoldDone
	// EventFault carries a device error code
	EventFault
)

// Event is one device notification translated for the monitor
type Event struct {
	Kind   EventKind
	Status *protocol.StatusPacket // EventStatus only
	Code   int                    // EventFault only
}

// Feed adapts the session's callback events into a channel the Bubble Tea
// loop can select on. Create it before connecting and pass Events() into
// the session options.
type Feed struct {
	ch chan Event
}

// NewFeed creates a feed with enough buffering that the notification
// goroutine never blocks on a slow redraw
func NewFeed() *Feed {
	return &Feed{ch: make(chan Event, 32)}
}

// Events returns session callbacks that forward into the feed. Events that
// arrive while the buffer is full are dropped; the next status replaces
// them anyway.
func (f *Feed) Events() kettle.Events {
	return kettle.Events{
		OnStatus: func(status *protocol.StatusPacket) {
			f.push(Event{Kind: EventStatus, Status: status})
		},
		OnHeatingComplete: func() {
			f.push(Event{Kind: EventHeatingDone})
		},
		OnHoldComplete: func() {
			f.push(Event{Kind: EventHoldDone})
		},
		OnError: func(code int) {
			f.push(Event{Kind: EventFault, Code: code})
		},
	}
}

func (f *Feed) push(ev Event) {
	select {
	case f.ch <- ev:
	default:
	}
}

// Next blocks until the next event arrives
func (f *Feed) Next() Event {
	return <-f.ch
}
