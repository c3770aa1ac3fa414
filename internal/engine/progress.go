package engine

import "github.com/eargollo/taxsheet/internal/protocol"

// Tracker holds the progress counters of the current run. Every mutating
// method passes the resulting snapshot to the publish function it was built
// with, so no change is ever left unbroadcast. Tracker is not safe for
// concurrent use; the Controller serialises access under its lock.
type Tracker struct {
	snap      protocol.Snapshot
	publish   func(protocol.Snapshot)
	mutations int
}

// NewTracker returns an idle tracker that reports to publish.
func NewTracker(publish func(protocol.Snapshot)) *Tracker {
	if publish == nil {
		publish = func(protocol.Snapshot) {}
	}
	return &Tracker{
		snap:    protocol.Snapshot{State: protocol.Starting},
		publish: publish,
	}
}

// Reset returns the tracker to {0, 0, STARTING}.
func (t *Tracker) Reset() {
	t.snap = protocol.Snapshot{State: protocol.Starting}
	t.changed()
}

// SetTotal sets the number of files in the run and points at the first one.
func (t *Tracker) SetTotal(n int) {
	if n < 0 {
		n = 0
	}
	t.snap.TotalFiles = n
	t.snap.CurrentFileIndex = min(1, n)
	t.changed()
}

// Advance moves to the next file, saturating at the total.
func (t *Tracker) Advance() {
	if t.snap.CurrentFileIndex < t.snap.TotalFiles {
		t.snap.CurrentFileIndex++
	}
	t.changed()
}

// SetState changes the run state.
func (t *Tracker) SetState(s protocol.State) {
	t.snap.State = s
	t.changed()
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() protocol.Snapshot { return t.snap }

// Mutations returns how many mutating calls have been made.
func (t *Tracker) Mutations() int { return t.mutations }

func (t *Tracker) changed() {
	t.mutations++
	t.publish(t.snap)
}
