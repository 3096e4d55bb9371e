// Package ticker produces a monotonically advancing stream of NTP-corrected
// wall-clock timestamps at a fixed cadence, translated from
// original_source/src/ticker.rs's condvar-based NtpFetcher/Ticker pair into
// Go channel idioms.
package ticker

import (
	"sync"
	"time"

	"github.com/beevik/ntp"
)

// Tick is one emission from a Ticker: the caller-supplied opaque event
// value, and the NTP-corrected wall-clock timestamp if a sync has ever
// succeeded.
type Tick[E any] struct {
	Event     E
	Timestamp time.Time
	HasTime   bool
}

// Ticker is a long-lived producer. It polls an NTP server in the
// background and emits one Tick per tick interval on its output channel.
type Ticker[E any] struct {
	out  chan Tick[E]
	done chan struct{}
	wg   sync.WaitGroup

	fetcher *ntpFetcher
}

// Spawn starts a Ticker that queries server, emits event every
// tickInterval, and re-polls NTP at most once per ntpPollInterval (but
// every minute until the first sync succeeds). Call Stop to shut it down.
func Spawn[E any](server string, tickInterval, ntpPollInterval time.Duration, event E) *Ticker[E] {
	t := &Ticker[E]{
		out:     make(chan Tick[E]),
		done:    make(chan struct{}),
		fetcher: newNTPFetcher(server, ntpPollInterval),
	}

	t.wg.Add(1)
	go t.run(tickInterval, event)

	return t
}

func (t *Ticker[E]) run(tickInterval time.Duration, event E) {
	defer t.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			ts, ok := t.fetcher.timestamp()
			tick := Tick[E]{Event: event, HasTime: ok}
			if ok {
				tick.Timestamp = ts
			}
			select {
			case t.out <- tick:
			case <-t.done:
				return
			}
		}
	}
}

// C returns the channel Ticks are emitted on.
func (t *Ticker[E]) C() <-chan Tick[E] {
	return t.out
}

// Stop signals the ticker to shut down and waits for its goroutine (and any
// in-flight NTP worker) to finish. The output channel is left open. No
// further Ticks are emitted after Stop returns. Idempotent.
func (t *Ticker[E]) Stop() {
	select {
	case <-t.done:
		// already stopped
		return
	default:
		close(t.done)
	}
	t.wg.Wait()
	t.fetcher.stop()
}

// ntpQuery is the subset of github.com/beevik/ntp used, abstracted so tests
// can substitute a deterministic stub.
type ntpQuery func(server string) (time.Time, error)

func defaultQuery(server string) (time.Time, error) {
	resp, err := ntp.Query(server)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(resp.ClockOffset), nil
}
