// Package gateway owns the physical (or simulated) link to the serial radio
// dongle that actually drives the mains relays. It runs its own goroutine
// and exposes a cloneable Client that serializes commands onto that
// goroutine's inbound channel, mirroring the teacher's mutex-guarded
// connection handle (internal/connect.HAConnection) and the original
// implementation's dedicated serial thread (original_source/src/serial.rs).
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrConnect is returned by Client.ConnectDevice when the underlying
// transport cannot be opened.
var ErrConnect = errors.New("gateway: failed to connect to device")

// Backend is the minimal opaque transport a gateway goroutine drives. The
// wire protocol itself is out of scope for this system (spec.md §6); only
// the lifecycle operations the supervisor relies on are modeled.
type Backend interface {
	// Open establishes the link. Called once, before any circle is
	// registered or switched.
	Open() error
	// RegisterCircle informs the backend that alias maps to mac, so future
	// SwitchOn/SwitchOff calls for alias can be routed.
	RegisterCircle(alias string, mac uint64) error
	SwitchOn(alias string) error
	SwitchOff(alias string) error
	// Close releases the link. Idempotent.
	Close() error
}

type command interface {
	apply(g *gatewayLoop)
}

type connectDeviceCmd struct {
	path  string
	reply chan error
}

func (c connectDeviceCmd) apply(g *gatewayLoop) {
	err := g.backend.Open()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnect, err)
		slog.Error("gateway: failed to open device", "path", c.path, "error", err)
	} else {
		g.connected = true
	}
	if c.reply != nil {
		c.reply <- err
	}
}

type connectStubCmd struct{}

func (c connectStubCmd) apply(g *gatewayLoop) {
	if err := g.backend.Open(); err != nil {
		slog.Error("gateway: failed to open simulator", "error", err)
		return
	}
	g.connected = true
}

type registerCircleCmd struct {
	alias string
	mac   uint64
}

// registerCircleCmd is a no-op, logged, if no backend is connected yet —
// mirroring original_source/src/serial.rs's `if let Some(ref plugwise) =
// plugwise`, which silently drops registrations before ConnectDevice.
func (c registerCircleCmd) apply(g *gatewayLoop) {
	if !g.connected {
		slog.Warn("gateway: register_circle before connect, ignoring", "alias", c.alias)
		return
	}
	if err := g.backend.RegisterCircle(c.alias, c.mac); err != nil {
		slog.Error("gateway: failed to register circle", "alias", c.alias, "error", err)
	}
}

type switchCmd struct {
	alias string
	on    bool
	reply chan error
}

func (c switchCmd) apply(g *gatewayLoop) {
	var err error
	if !g.connected {
		err = fmt.Errorf("gateway: no device connected")
	} else if c.on {
		err = g.backend.SwitchOn(c.alias)
	} else {
		err = g.backend.SwitchOff(c.alias)
	}
	if err != nil {
		slog.Error("gateway: switch command failed", "alias", c.alias, "on", c.on, "error", err)
	}
	if c.reply != nil {
		c.reply <- err
	}
}

type hangupCmd struct {
	done chan struct{}
}

func (c hangupCmd) apply(g *gatewayLoop) {
	if g.connected {
		if err := g.backend.Close(); err != nil {
			slog.Warn("gateway: error closing backend", "error", err)
		}
		g.connected = false
	}
	close(c.done)
}

// gatewayLoop is the state owned exclusively by the gateway's goroutine.
type gatewayLoop struct {
	backend   Backend
	connected bool
}

// Client is a cloneable handle to a running gateway goroutine. Every method
// sends a command over the shared inbound channel and, where a reply is
// meaningful, blocks on a dedicated reply channel — the same FIFO-per-caller
// ordering guarantee spec.md §5 requires.
type Client struct {
	commands chan command
}

// Spawn starts the gateway goroutine backed by backend and returns a Client
// for it. The backend is not opened until ConnectDevice or ConnectStub is
// called.
func Spawn(backend Backend) *Client {
	commands := make(chan command, 16)
	loop := &gatewayLoop{backend: backend}

	go func() {
		for cmd := range commands {
			cmd.apply(loop)
		}
	}()

	return &Client{commands: commands}
}

// ConnectDevice opens the real serial device at path. It blocks on the
// reply, per spec.md §5's note that this is the one operation core callers
// must not issue on a latency-critical path.
func (c *Client) ConnectDevice(path string) error {
	reply := make(chan error, 1)
	c.commands <- connectDeviceCmd{path: path, reply: reply}
	return <-reply
}

// ConnectStub opens the in-memory simulator backend. Fire-and-forget: a
// simulator cannot fail to open.
func (c *Client) ConnectStub() {
	c.commands <- connectStubCmd{}
}

// RegisterCircle associates alias with mac on the gateway. Fire-and-forget;
// failures are logged, not returned, per spec.md §7's transient-I/O model.
func (c *Client) RegisterCircle(alias string, mac uint64) {
	c.commands <- registerCircleCmd{alias: alias, mac: mac}
}

// SwitchOn requests the relay for alias be energized.
func (c *Client) SwitchOn(alias string) error {
	reply := make(chan error, 1)
	c.commands <- switchCmd{alias: alias, on: true, reply: reply}
	return <-reply
}

// SwitchOff requests the relay for alias be de-energized.
func (c *Client) SwitchOff(alias string) error {
	reply := make(chan error, 1)
	c.commands <- switchCmd{alias: alias, on: false, reply: reply}
	return <-reply
}

// Hangup closes the backend and stops the gateway goroutine. It blocks
// until the goroutine has processed the shutdown, then closes the command
// channel, which ends the goroutine's loop.
func (c *Client) Hangup() {
	done := make(chan struct{})
	c.commands <- hangupCmd{done: done}
	<-done
	close(c.commands)
}
