package supervisor

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwio/circlekeeper/event"
	"github.com/hwio/circlekeeper/gateway"
	"github.com/hwio/circlekeeper/relay"
	"github.com/hwio/circlekeeper/schedule"
	"github.com/hwio/circlekeeper/ticker"
)

type recordingGateway struct {
	onCalls  []string
	offCalls []string
}

func (g *recordingGateway) SwitchOn(alias string) error {
	g.onCalls = append(g.onCalls, alias)
	return nil
}

func (g *recordingGateway) SwitchOff(alias string) error {
	g.offCalls = append(g.offCalls, alias)
	return nil
}

// recordingBackend is a gateway.Backend fake used by the Teardown test,
// where a real *gateway.Client (not just something satisfying
// relay.Gateway) is needed to observe Hangup closing the backend.
type recordingBackend struct {
	closed   bool
	onCalls  []string
	offCalls []string
}

func (b *recordingBackend) Open() error { return nil }

func (b *recordingBackend) RegisterCircle(alias string, mac uint64) error { return nil }

func (b *recordingBackend) SwitchOn(alias string) error {
	b.onCalls = append(b.onCalls, alias)
	return nil
}

func (b *recordingBackend) SwitchOff(alias string) error {
	b.offCalls = append(b.offCalls, alias)
	return nil
}

func (b *recordingBackend) Close() error {
	b.closed = true
	return nil
}

// newTestTracker builds a Tracker directly around a real schedule and real
// switches, bypassing New's gateway/ticker spawning so processTick's
// algorithm can be exercised with synthetic timestamps, per spec.md §9's
// "global wall-clock time always flows through the ticker so tests can
// drive the supervisor deterministically" design note.
func newTestTracker(gw relay.Gateway, start, end event.Event) (*Tracker, *relay.Switch) {
	sched := schedule.New(nil, 0, 0, rand.New(rand.NewPCG(1, 1)))
	sw := relay.New("lamp", gw)

	sched.AddEvent(start, sw, schedule.On)
	sched.AddEvent(end, sw, schedule.Off)

	tr := &Tracker{
		schedule: sched,
		switches: map[string]*relay.Switch{"lamp": sw},
		order:    []string{"lamp"},
		inbound:  make(chan message, 4),
		initial:  true,
	}
	return tr, sw
}

func TestProcessTick_S1_FixedPair(t *testing.T) {
	start, _ := event.NewFixed(20, 0)
	end, _ := event.NewFixed(23, 0)

	gw := &recordingGateway{}
	tr, _ := newTestTracker(gw, start, end)

	// boot before today's on-window opens: make_hot's single startup
	// command asserts the (still-Off) state explicitly.
	tr.processTick(time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC))
	assert.Empty(t, gw.onCalls, "not yet 20:00")
	assert.Equal(t, []string{"lamp"}, gw.offCalls, "make_hot's boot-time assertion of the off state")

	tr.processTick(time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{"lamp"}, gw.onCalls)

	tr.processTick(time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{"lamp", "lamp"}, gw.offCalls)
}

func TestProcessTick_S4_LateStartCollapsesToOneCommand(t *testing.T) {
	start, _ := event.NewFixed(6, 0)
	end, _ := event.NewFixed(22, 0)

	gw := &recordingGateway{}
	tr, sw := newTestTracker(gw, start, end)

	// boot at noon, well inside today's [06:00, 22:00) on-window
	tr.processTick(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, []string{"lamp"}, gw.onCalls, "exactly one switch_on, never an off-then-on flap")
	assert.Empty(t, gw.offCalls)
	assert.Equal(t, relay.StateOn, sw.State())
	assert.False(t, tr.initial)
}

func TestProcessTick_MaintainsWindowInvariant(t *testing.T) {
	start, _ := event.NewFixed(6, 0)
	end, _ := event.NewFixed(22, 0)

	gw := &recordingGateway{}
	tr, _ := newTestTracker(gw, start, end)

	ts := time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)
	tr.processTick(ts)
	require.False(t, tr.initial)

	diff := tr.w.Sub(ts)
	assert.True(t, diff > 0 && diff <= 48*time.Hour)

	// advance several days of ticks and keep the invariant
	for i := 0; i < 5; i++ {
		ts = ts.Add(24 * time.Hour)
		tr.processTick(ts)
		diff = tr.w.Sub(ts)
		assert.True(t, diff > 0 && diff <= 48*time.Hour)
	}
}

func TestTrackerHandle_ListGetSwitch(t *testing.T) {
	start, _ := event.NewFixed(6, 0)
	end, _ := event.NewFixed(22, 0)

	gw := &recordingGateway{}
	tr, sw := newTestTracker(gw, start, end)
	sw.MakeHot()

	listReply := make(chan []string, 1)
	stop := tr.handle(listMsg{reply: listReply})
	assert.False(t, stop)
	assert.Equal(t, []string{"lamp"}, <-listReply)

	getReply := make(chan getResult, 1)
	tr.handle(getMsg{alias: "lamp", reply: getReply})
	res := <-getReply
	assert.True(t, res.ok)
	assert.Equal(t, "lamp", res.snapshot.Alias)

	getReply2 := make(chan getResult, 1)
	tr.handle(getMsg{alias: "missing", reply: getReply2})
	res2 := <-getReply2
	assert.False(t, res2.ok)

	switchReply := make(chan relay.State, 1)
	tr.handle(switchMsg{alias: "lamp", on: true, reply: switchReply})
	assert.Equal(t, relay.StateOn, <-switchReply)
	assert.Equal(t, []string{"lamp"}, gw.onCalls)
}

// TestProcessTick_S5_DefaultOnDispatchesOnce mirrors spec.md §8 scenario S5:
// a circle with default "on" and no toggles must receive exactly one
// switch_on at startup, with no Schedule entries registered at all.
func TestProcessTick_S5_DefaultOnDispatchesOnce(t *testing.T) {
	gw := &recordingGateway{}
	sw := relay.New("lamp", gw)
	sw.ForceState(true) // the New()-time default-"on" assignment, still cold

	tr := &Tracker{
		schedule: schedule.New(nil, 0, 0, rand.New(rand.NewPCG(1, 1))),
		switches: map[string]*relay.Switch{"lamp": sw},
		order:    []string{"lamp"},
		inbound:  make(chan message, 4),
		initial:  true,
	}

	tr.processTick(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, []string{"lamp"}, gw.onCalls, "default on must dispatch exactly one switch_on at startup")
	assert.Empty(t, gw.offCalls)
	assert.Equal(t, relay.StateOn, sw.State())
}

// TestTeardown_StopsLoopAndGateway mirrors spec.md §8 scenario S6: after
// Teardown, no further serial commands are observed and the supervisor
// thread joins promptly.
func TestTeardown_StopsLoopAndGateway(t *testing.T) {
	backend := &recordingBackend{}
	client := gateway.Spawn(backend)
	client.ConnectStub()

	sw := relay.New("lamp", client)
	sw.MakeHot()

	tr := &Tracker{
		schedule:    schedule.New(nil, 0, 0, rand.New(rand.NewPCG(1, 1))),
		switches:    map[string]*relay.Switch{"lamp": sw},
		order:       []string{"lamp"},
		gw:          client,
		tick:        ticker.Spawn("", time.Hour, time.Hour, struct{}{}),
		inbound:     make(chan message, 4),
		forwardDone: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(runDone)
	}()

	tearCtx, tearCancel := context.WithTimeout(context.Background(), time.Second)
	defer tearCancel()
	require.NoError(t, tr.Client().Teardown(tearCtx))

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("supervisor loop did not join after teardown")
	}

	assert.True(t, backend.closed, "gateway backend must be closed on teardown")

	callsBefore := len(backend.onCalls) + len(backend.offCalls)
	switchCtx, switchCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer switchCancel()
	_, err := tr.Client().Switch(switchCtx, "lamp", true)
	assert.Error(t, err, "no further commands are accepted once the loop has exited")
	assert.Equal(t, callsBefore, len(backend.onCalls)+len(backend.offCalls))
}
