package supervisor

import (
	"context"

	"github.com/hwio/circlekeeper/relay"
)

// Client is a cloneable handle to a running Tracker. Every method enqueues
// one message on the shared inbound channel and, where a reply is
// meaningful, blocks on a dedicated reply channel — mirroring
// connect.HAConnection's mutex-guarded WriteMessage, generalized to a
// request/reply shape since our "connection" is a Go channel, not a
// websocket.
type Client struct {
	inbound chan message
}

// List returns every configured circle alias.
func (c *Client) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := c.send(ctx, listMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case aliases := <-reply:
		return aliases, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the current state and pending valid events for alias. ok is
// false if alias is not a configured circle.
func (c *Client) Get(ctx context.Context, alias string) (relay.Snapshot, bool, error) {
	reply := make(chan getResult, 1)
	if err := c.send(ctx, getMsg{alias: alias, reply: reply}); err != nil {
		return relay.Snapshot{}, false, err
	}
	select {
	case res := <-reply:
		return res.snapshot, res.ok, nil
	case <-ctx.Done():
		return relay.Snapshot{}, false, ctx.Err()
	}
}

// Switch forces alias's local state and returns the resulting state.
// Unknown aliases report StateOff, per spec.md §4.5.
func (c *Client) Switch(ctx context.Context, alias string, on bool) (relay.State, error) {
	reply := make(chan relay.State, 1)
	if err := c.send(ctx, switchMsg{alias: alias, on: on, reply: reply}); err != nil {
		return relay.StateOff, err
	}
	select {
	case state := <-reply:
		return state, nil
	case <-ctx.Done():
		return relay.StateOff, ctx.Err()
	}
}

// Teardown asks the Tracker to hang up the gateway, stop its ticker, and
// exit its loop. It blocks until that has happened.
func (c *Client) Teardown(ctx context.Context) error {
	done := make(chan struct{})
	if err := c.send(ctx, teardownMsg{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) send(ctx context.Context, m message) error {
	select {
	case c.inbound <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
