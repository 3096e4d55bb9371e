// Package relay implements the per-circle switch state machine: it filters
// malformed on/off pairs announced by the schedule's hint phase and, once
// hot, issues gateway commands when a validated pair fires.
package relay

import (
	"log/slog"
	"time"

	"github.com/hwio/circlekeeper/schedule"
)

// State is the on/off state of a relay.
type State int

const (
	// StateOff is the initial and default relay state.
	StateOff State = iota
	// StateOn.
	StateOn
)

func (s State) String() string {
	if s == StateOn {
		return "on"
	}
	return "off"
}

// Gateway is the subset of the serial gateway client a Switch needs to emit
// commands. Kept minimal and interface-typed so tests can substitute a
// recording fake instead of a real gateway.Client.
type Gateway interface {
	SwitchOn(alias string) error
	SwitchOff(alias string) error
}

// Snapshot is a point-in-time, read-only view of a Switch's state, returned
// by the supervisor's Get query.
type Snapshot struct {
	Alias       string
	State       State
	ValidEvents map[time.Time]State
}

// Switch is the per-circle handler. It implements schedule.Handler.
//
// Switch is not safe for concurrent use; per spec.md §3/§5 its mutable
// fields are only ever touched from the supervisor goroutine.
type Switch struct {
	alias string
	gw    Gateway

	state State
	hot   bool

	lastOn      time.Time
	validEvents map[time.Time]State
}

// New returns a Switch for the given circle alias, initially Off and cold
// (no gateway commands are emitted until MakeHot is called).
func New(alias string, gw Gateway) *Switch {
	return &Switch{
		alias:       alias,
		gw:          gw,
		state:       StateOff,
		validEvents: make(map[time.Time]State),
	}
}

// Alias returns the circle alias this switch drives.
func (sw *Switch) Alias() string { return sw.alias }

// State returns the current local state.
func (sw *Switch) State() State { return sw.state }

// Hot reports whether gateway commands are currently being emitted.
func (sw *Switch) Hot() bool { return sw.hot }

// Hint implements schedule.Handler.
//
// An On hint just records the candidate on-timestamp. An Off hint only
// produces a valid pair if it lands strictly after the most recently hinted
// On and that On is non-zero; this rejects an Off that precedes any On,
// same-timestamp degeneracies, and a dangling Off with no preceding On.
func (sw *Switch) Hint(ts time.Time, ctx schedule.Context) {
	switch ctx {
	case schedule.On:
		sw.lastOn = ts
	case schedule.Off:
		if !sw.lastOn.IsZero() && ts.After(sw.lastOn) {
			sw.validEvents[sw.lastOn] = StateOn
			sw.validEvents[ts] = StateOff
		}
	}
}

// Kick implements schedule.Handler.
//
// A kick for a timestamp that hint never validated is a no-op (stale or
// filtered). Otherwise the local state is set, a gateway command is emitted
// if hot, and every validated timestamp at or before ts is forgotten.
func (sw *Switch) Kick(ts time.Time, ctx schedule.Context) {
	if _, ok := sw.validEvents[ts]; !ok {
		return
	}

	sw.setState(ctx == schedule.On)

	for k := range sw.validEvents {
		if !k.After(ts) {
			delete(sw.validEvents, k)
		}
	}
}

// MakeHot marks the switch hot and re-dispatches the current state exactly
// once. It must be called after the supervisor's first full tick resolves,
// so that startup materialization of already-past "today" events (which
// would otherwise toggle the relay once per stale event) collapses into a
// single effective command.
func (sw *Switch) MakeHot() {
	sw.hot = true
	sw.dispatch()
}

func (sw *Switch) setState(on bool) {
	if on {
		sw.state = StateOn
	} else {
		sw.state = StateOff
	}
	sw.dispatch()
}

func (sw *Switch) dispatch() {
	if !sw.hot {
		return
	}

	var err error
	if sw.state == StateOn {
		err = sw.gw.SwitchOn(sw.alias)
	} else {
		err = sw.gw.SwitchOff(sw.alias)
	}
	if err != nil {
		slog.Error("relay: gateway command failed", "alias", sw.alias, "state", sw.state, "error", err)
	}
}

// ForceState sets the local state directly (the supervisor's Switch
// command) and dispatches it if hot. Pending validated events are left
// untouched, so the next scheduled event still fires normally.
func (sw *Switch) ForceState(on bool) {
	sw.setState(on)
}

// Snapshot returns a read-only copy of this switch's current state and
// pending validated events.
func (sw *Switch) Snapshot() Snapshot {
	cp := make(map[time.Time]State, len(sw.validEvents))
	for k, v := range sw.validEvents {
		cp[k] = v
	}
	return Snapshot{
		Alias:       sw.alias,
		State:       sw.state,
		ValidEvents: cp,
	}
}
