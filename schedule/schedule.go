// Package schedule materializes abstract daily Events into concrete UTC
// timestamps, one day at a time, and drives registered Handlers through the
// two-phase hint-then-kick protocol.
package schedule

import (
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/hwio/circlekeeper/event"
)

// Context is the meaning of a materialized event: the start ("On") or end
// ("Off") of a toggle.
type Context int

const (
	// On marks the start half of a toggle.
	On Context = iota
	// Off marks the end half of a toggle.
	Off
)

func (c Context) String() string {
	if c == On {
		return "on"
	}
	return "off"
}

// Handler receives hint and kick callbacks from a Schedule. The only
// implementation in this system is relay.Switch; Schedule is generic over
// Handler identity only so tests can substitute a recording fake.
type Handler interface {
	Hint(ts time.Time, ctx Context)
	Kick(ts time.Time, ctx Context)
}

// registration is one (spec, handler, ctx) triple registered via AddEvent.
// It is re-materialized once per day by UpdateSchedule.
type registration struct {
	spec    event.Event
	handler Handler
	ctx     Context
}

// entry is a single materialized (timestamp, handler, ctx) occupying a slot
// in the pending priority queue.
type entry struct {
	ts      time.Time
	handler Handler
	ctx     Context
}

// Compare implements queue.Item so entries pop in ascending timestamp order
// (earliest due event first), the same ordering convention the teacher's
// own Item.Compare uses for its nextRunTime-keyed priority queues.
func (e entry) Compare(other queue.Item) int {
	o := other.(entry)
	switch {
	case e.ts.After(o.ts):
		return 1
	case e.ts.Before(o.ts):
		return -1
	default:
		return 0
	}
}

// DaylightSource is re-exported so callers constructing a Schedule don't
// need to import event directly.
type DaylightSource = event.DaylightSource

// Schedule is a per-location calendar of registered daily Events. It
// materializes one day of concrete timestamps at a time and fires handlers
// as the window reference advances.
//
// Schedule is not safe for concurrent use; per spec.md §3/§5 it is owned
// exclusively by the supervisor goroutine.
type Schedule struct {
	dev       DaylightSource
	latitude  float64
	longitude float64
	rng       *rand.Rand

	registrations []registration
	pending       *queue.PriorityQueue
}

// New returns a Schedule that resolves Sunrise/Sunset events against dev at
// the given location, drawing Fuzzy/jitter randomness from rng.
func New(dev DaylightSource, latitude, longitude float64, rng *rand.Rand) *Schedule {
	return &Schedule{
		dev:       dev,
		latitude:  latitude,
		longitude: longitude,
		rng:       rng,
		pending:   queue.NewPriorityQueue(64, true),
	}
}

// AddEvent registers a daily event specification against a handler and
// context. Duplicate registrations are allowed and each fires independently
// every day they're materialized (spec.md §4.2).
func (s *Schedule) AddEvent(spec event.Event, handler Handler, ctx Context) {
	s.registrations = append(s.registrations, registration{spec: spec, handler: handler, ctx: ctx})
}

// UpdateSchedule materializes every registered event for the calendar day
// containing w, inserts the resulting entries into the pending queue, and
// calls Hint on each handler in ascending timestamp order within this pass.
//
// Handlers are side-effecting and infallible from Schedule's point of view;
// a spec that fails to resolve (e.g. polar-day daylight lookup) is logged
// and skipped rather than aborting the rest of the pass.
func (s *Schedule) UpdateSchedule(w time.Time) {
	materialized := make([]entry, 0, len(s.registrations))

	for _, reg := range s.registrations {
		ts, err := reg.spec.Resolve(w, s.dev, s.latitude, s.longitude, s.rng)
		if err != nil {
			slog.Warn("schedule: failed to resolve event, skipping for this day", "spec", reg.spec, "window", w, "error", err)
			continue
		}
		materialized = append(materialized, entry{ts: ts, handler: reg.handler, ctx: reg.ctx})
	}

	sort.Slice(materialized, func(i, j int) bool {
		return materialized[i].ts.Before(materialized[j].ts)
	})

	for _, e := range materialized {
		if err := s.pending.Put(e); err != nil {
			slog.Error("schedule: failed to enqueue materialized event", "error", err)
			continue
		}
		e.handler.Hint(e.ts, e.ctx)
	}
}

// KickEvent drains every pending entry with a timestamp at or before now, in
// ascending timestamp order, calling Kick on each. It returns the smallest
// remaining timestamp, if any.
func (s *Schedule) KickEvent(now time.Time) (time.Time, bool) {
	for {
		if s.pending.Empty() {
			return time.Time{}, false
		}

		next := s.pending.Peek().(entry)
		if next.ts.After(now) {
			return next.ts, true
		}

		got, err := s.pending.Get(1)
		if err != nil || len(got) == 0 {
			return time.Time{}, false
		}
		due := got[0].(entry)
		due.handler.Kick(due.ts, due.ctx)
	}
}
