// Package supervisor owns the schedule, the per-circle switches, the
// gateway client, and the ticker, all on a single goroutine, translated
// from original_source/src/tracker.rs's Tracker/TrackerInner and from
// app.go's single-owning-struct, single-select-loop idiom.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hwio/circlekeeper/config"
	"github.com/hwio/circlekeeper/daylight"
	"github.com/hwio/circlekeeper/gateway"
	"github.com/hwio/circlekeeper/relay"
	"github.com/hwio/circlekeeper/schedule"
	"github.com/hwio/circlekeeper/ticker"
)

// Options configures the ticker driving a Tracker; these are deployment
// parameters, not part of the configuration file (spec.md §6 lists only the
// NTP server as file-configured; the cadence constants are an operator
// knob exposed by cmd/keeperd's flags).
type Options struct {
	TickInterval    time.Duration
	NTPPollInterval time.Duration
}

// DefaultOptions matches spec.md's non-goal "no guarantee of sub-second
// accuracy on event firing (tick granularity is >= 1 s)".
var DefaultOptions = Options{
	TickInterval:    time.Second,
	NTPPollInterval: time.Hour,
}

// Tracker is the supervisor's owning state. Every field here is touched
// only from the goroutine running Run; external callers only ever see a
// Client.
type Tracker struct {
	schedule *schedule.Schedule
	switches map[string]*relay.Switch
	order    []string

	gw   *gateway.Client
	tick *ticker.Ticker[struct{}]

	inbound chan message

	// forwardDone stops the goroutine that relays ticker output onto
	// inbound; closed once, when Teardown is processed.
	forwardDone chan struct{}

	w       time.Time
	initial bool
}

// New constructs a Tracker from a parsed configuration: it connects the
// gateway (real serial device if configured, else the simulator), registers
// every circle, applies each circle's default state, wires schedule-driven
// circles' toggles into the schedule, and spawns the ticker. The gateway
// connection happens synchronously so a bad serial path is reported to the
// caller instead of surfacing later as a silently-dropped command.
func New(cfg config.Config, rng *rand.Rand, opts Options) (*Tracker, error) {
	dev := daylight.New()
	sched := schedule.New(dev, cfg.Device.Latitude, cfg.Device.Longitude, rng)

	var backend gateway.Backend
	if cfg.Device.SerialDevice != nil {
		backend = gateway.NewSerialBackend(*cfg.Device.SerialDevice)
	} else {
		backend = gateway.NewSimulator()
	}
	gw := gateway.Spawn(backend)

	if cfg.Device.SerialDevice != nil {
		if err := gw.ConnectDevice(*cfg.Device.SerialDevice); err != nil {
			return nil, fmt.Errorf("supervisor: %w", err)
		}
	} else {
		gw.ConnectStub()
	}

	switches := make(map[string]*relay.Switch, len(cfg.Circles))
	order := make([]string, 0, len(cfg.Circles))

	for _, circle := range cfg.Circles {
		gw.RegisterCircle(circle.Alias, circle.MAC)

		sw := relay.New(circle.Alias, gw)
		switches[circle.Alias] = sw
		order = append(order, circle.Alias)

		switch circle.Default {
		case config.CircleOn:
			sw.ForceState(true)
		case config.CircleOff:
			sw.ForceState(false)
		case config.CircleSchedule:
			for _, toggle := range circle.Toggles {
				sched.AddEvent(toggle.Start, sw, schedule.On)
				sched.AddEvent(toggle.End, sw, schedule.Off)
			}
		}
	}

	tick := ticker.Spawn(cfg.Device.NTPServer, opts.TickInterval, opts.NTPPollInterval, struct{}{})

	slog.Info("supervisor: tracker built", "circles", len(order), "ntp", cfg.Device.NTPServer)

	t := &Tracker{
		schedule:    sched,
		switches:    switches,
		order:       order,
		gw:          gw,
		tick:        tick,
		inbound:     make(chan message, 16),
		forwardDone: make(chan struct{}),
		initial:     true,
	}

	go t.forwardTicks()

	return t, nil
}

// forwardTicks relays every Tick from the ticker onto inbound as a tickMsg,
// so that ticks and external queries share the single channel spec.md §5
// requires: "Ticks and external queries share one channel; they are
// strictly interleaved in FIFO order, so a Get issued after a Tick
// observes the state the tick produced." Selecting directly over two
// channels in Run would let Go's select pick either ready case arbitrarily
// instead of preserving arrival order.
func (t *Tracker) forwardTicks() {
	for {
		select {
		case <-t.forwardDone:
			return
		case tk := <-t.tick.C():
			select {
			case t.inbound <- tickMsg{ts: tk.Timestamp, hasTime: tk.HasTime}:
			case <-t.forwardDone:
				return
			}
		}
	}
}

// Client returns a handle callers use to query and command this Tracker.
// Safe to call any number of times and share across goroutines.
func (t *Tracker) Client() *Client {
	return &Client{inbound: t.inbound}
}

// Run is the Tracker's owning loop. It selects over ctx and the single
// inbound channel that both forwardTicks and every Client method feed,
// until ctx is cancelled or a Teardown message is processed, mirroring
// app.go's Start() select over elChan/ctx.Done().
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-t.inbound:
			if t.handle(m) {
				return
			}
		}
	}
}

func (t *Tracker) handle(m message) (stop bool) {
	switch msg := m.(type) {
	case tickMsg:
		if msg.hasTime {
			t.processTick(msg.ts)
		}

	case listMsg:
		msg.reply <- append([]string(nil), t.order...)

	case getMsg:
		sw, ok := t.switches[msg.alias]
		if !ok {
			msg.reply <- getResult{}
			return false
		}
		msg.reply <- getResult{snapshot: sw.Snapshot(), ok: true}

	case switchMsg:
		sw, ok := t.switches[msg.alias]
		if !ok {
			msg.reply <- relay.StateOff
			return false
		}
		sw.ForceState(msg.on)
		msg.reply <- sw.State()

	case teardownMsg:
		slog.Info("supervisor: tearing down")
		close(t.forwardDone)
		t.gw.Hangup()
		t.tick.Stop()
		close(msg.done)
		return true
	}
	return false
}

// processTick implements spec.md §4.5's 4-step algorithm. initial is only
// cleared, and MakeHot only called, after the first tick it ever observes
// — the ordering DESIGN.md's Open Question decision resolves in favor of
// S4's single-command startup guarantee.
func (t *Tracker) processTick(ts time.Time) {
	if t.initial {
		t.w = startOfUTCDay(ts)
		t.schedule.UpdateSchedule(t.w)
		t.w = t.w.AddDate(0, 0, 1)
		t.schedule.UpdateSchedule(t.w)
		t.w = t.w.AddDate(0, 0, 1)
	}

	if t.w.Sub(ts) <= 24*time.Hour {
		t.schedule.UpdateSchedule(t.w)
		t.w = t.w.AddDate(0, 0, 1)
	}

	t.schedule.KickEvent(ts)

	if t.initial {
		t.initial = false
		for _, alias := range t.order {
			t.switches[alias].MakeHot()
		}
	}
}

func startOfUTCDay(ts time.Time) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
