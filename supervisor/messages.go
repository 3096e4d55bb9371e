package supervisor

import (
	"time"

	"github.com/hwio/circlekeeper/relay"
)

// message is the tagged-union of everything the Tracker's loop accepts on
// its single inbound channel, mirroring app.go's elChan/ctx.Done() select
// but generalized to a closed set of command kinds instead of one
// websocket-shaped payload.
type message interface{ isMessage() }

type tickMsg struct {
	ts      time.Time
	hasTime bool
}

func (tickMsg) isMessage() {}

type listMsg struct {
	reply chan []string
}

func (listMsg) isMessage() {}

// getResult is a zero Snapshot with ok=false when the alias is unknown.
type getResult struct {
	snapshot relay.Snapshot
	ok       bool
}

type getMsg struct {
	alias string
	reply chan getResult
}

func (getMsg) isMessage() {}

type switchMsg struct {
	alias string
	on    bool
	reply chan relay.State
}

func (switchMsg) isMessage() {}

type teardownMsg struct {
	done chan struct{}
}

func (teardownMsg) isMessage() {}
