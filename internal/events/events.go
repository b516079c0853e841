// Package events manufactures the four named, auto-reset OS events a vsbridge
// channel uses to signal chunk availability and acknowledgement in each
// direction (spec.md §4.2).
package events

import (
	"time"

	"github.com/vsbridge/vsbridge/internal/xerrors"
)

// Name suffixes are part of the external contract (spec.md §6): the shell
// side derives the same four names from the channel name.
const (
	SuffixH2SReady = ".h2s.ready"
	SuffixH2SAck   = ".h2s.ack"
	SuffixS2HReady = ".s2h.ready"
	SuffixS2HAck   = ".s2h.ack"
)

// WaitResult is the outcome of a timed wait on a named event.
type WaitResult int

const (
	Signaled WaitResult = iota
	TimedOut
	Abandoned
)

// Event is one auto-reset named OS event (or its in-process simulation).
// Auto-reset semantics: a signal admits exactly one wait; an already-signaled
// event stays signaled until one wait consumes it, so the protocol never
// signals without a matching pending-or-immediate-future wait (no lost
// wakeups, spec.md §4.2).
type Event interface {
	Signal() error
	Wait(timeout time.Duration) (WaitResult, error)
	Close() error
}

// Set holds all four events of a channel.
type Set struct {
	H2SReady Event
	H2SAck   Event
	S2HReady Event
	S2HAck   Event
}

// CreateOrOpen manufactures (or attaches to) the four events derived from
// baseName. Safe to call from both the creating and the attaching process.
func CreateOrOpen(baseName string) (*Set, error) {
	h2sReady, err := createOrOpen(baseName + SuffixH2SReady)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, baseName, err, "create or open "+SuffixH2SReady+" event")
	}
	h2sAck, err := createOrOpen(baseName + SuffixH2SAck)
	if err != nil {
		h2sReady.Close()
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, baseName, err, "create or open "+SuffixH2SAck+" event")
	}
	s2hReady, err := createOrOpen(baseName + SuffixS2HReady)
	if err != nil {
		h2sReady.Close()
		h2sAck.Close()
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, baseName, err, "create or open "+SuffixS2HReady+" event")
	}
	s2hAck, err := createOrOpen(baseName + SuffixS2HAck)
	if err != nil {
		h2sReady.Close()
		h2sAck.Close()
		s2hReady.Close()
		return nil, xerrors.Wrap(xerrors.KindChannelOpen, baseName, err, "create or open "+SuffixS2HAck+" event")
	}

	return &Set{H2SReady: h2sReady, H2SAck: h2sAck, S2HReady: s2hReady, S2HAck: s2hAck}, nil
}

// Close releases all four events. Idempotent: each event ignores a second
// Close. A Set is not reused after Close.
func (s *Set) Close() error {
	var first error
	for _, e := range []Event{s.H2SReady, s.H2SAck, s.S2HReady, s.S2HAck} {
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
