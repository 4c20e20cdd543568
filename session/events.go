package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"mtu/rxstream"
)

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventPacketSent
	EventLogLine
	EventWaveform
	EventModeChanged
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state"
	case EventPacketSent:
		return "packet"
	case EventLogLine:
		return "log"
	case EventWaveform:
		return "waveform"
	case EventModeChanged:
		return "mode"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one observable change of a session. Only the fields matching Kind
// are set.
type Event struct {
	Kind     EventKind
	State    State
	Text     string
	Data     []byte
	Waveform rxstream.Waveform
	Mode     rxstream.Mode
	Err      error
}

const subscriberBuffer = 256

// criticalEventWait bounds how long a state change or error waits for a
// subscriber whose buffer is full.
var criticalEventWait = 5 * time.Second

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// critical events are never dropped for a subscriber that is still reading.
func (k EventKind) critical() bool {
	return k == EventStateChanged || k == EventError
}

// Subscribe returns a channel receiving all future events and a function
// that ends the subscription and closes the channel. Log lines, packets and
// waveforms are dropped for subscribers that do not keep up; the Receiver
// keeps the lossless copies. State changes and errors wait for room.
func (s *Session) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.subsMu.Unlock()

	cancel := func() {
		// release a pending emit before taking the lock:
		sub.once.Do(func() { close(sub.done) })

		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

func (s *Session) emit(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, sub := range s.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}

		if !ev.Kind.critical() {
			s.log.Warn("session: subscriber too slow, dropped event", zap.Int("subscriber", id), zap.Stringer("kind", ev.Kind))
			continue
		}

		timer := time.NewTimer(criticalEventWait)
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-timer.C:
			s.log.Error("session: subscriber stalled, dropped event", zap.Int("subscriber", id), zap.Stringer("kind", ev.Kind), zap.Error(ev.Err))
		}
		timer.Stop()
	}
}

func (s *Session) emitRx(updates []rxstream.Update) {
	for _, u := range updates {
		switch u.Kind {
		case rxstream.UpdateLine:
			s.emit(Event{Kind: EventLogLine, Text: u.Line})
		case rxstream.UpdateWaveform:
			s.emit(Event{Kind: EventWaveform, Waveform: u.Waveform})
		case rxstream.UpdateMode:
			s.emit(Event{Kind: EventModeChanged, Mode: u.Mode})
		}
	}
}
