package ticker

import (
	"sync"
	"time"
)

// retryIntervalUntilFirstSync is how often the fetcher retries after the
// very first NTP query fails, per spec.md §4.4: "in which case it retries
// every 1 minute until the first success."
const retryIntervalUntilFirstSync = time.Minute

// ntpFetcher maintains a single NTP sync point and extrapolates the current
// wall-clock time from it using the monotonic clock between queries. It is
// a direct translation of original_source/src/ticker.rs's NtpFetcher, with
// the Rust condvar-signaled worker thread replaced by a goroutine tracked
// by a sync.WaitGroup (so Stop can join it, same as the Rust code's
// implicit join via thread::spawn's JoinHandle being dropped only after
// completion).
type ntpFetcher struct {
	server       string
	pollInterval time.Duration
	query        ntpQuery

	mu           sync.Mutex
	hasSynced    bool
	lastSyncWall time.Time
	lastSyncMono time.Time // a time.Now() reading taken at the same instant as lastSyncWall
	lastPollMono time.Time
	polling      bool

	wg sync.WaitGroup
}

func newNTPFetcher(server string, pollInterval time.Duration) *ntpFetcher {
	f := &ntpFetcher{
		server:       server,
		pollInterval: pollInterval,
		query:        defaultQuery,
	}
	f.considerPoll()
	return f
}

// timestamp returns the current NTP-corrected wall-clock time, if a sync
// has ever succeeded, and triggers a background poll if one is due.
func (f *ntpFetcher) timestamp() (time.Time, bool) {
	f.considerPoll()

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.hasSynced {
		return time.Time{}, false
	}

	elapsed := time.Since(f.lastSyncMono)
	return f.lastSyncWall.Add(elapsed), true
}

// considerPoll spawns at most one background NTP query at a time, gated by
// pollInterval (or the tighter retryIntervalUntilFirstSync before the first
// success).
func (f *ntpFetcher) considerPoll() {
	f.mu.Lock()

	interval := f.pollInterval
	if !f.hasSynced {
		interval = retryIntervalUntilFirstSync
	}

	now := time.Now()
	mustPoll := f.lastPollMono.IsZero() || now.Sub(f.lastPollMono) >= interval
	if !mustPoll || f.polling {
		f.mu.Unlock()
		return
	}

	f.polling = true
	f.lastPollMono = now
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ts, err := f.query(f.server)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.polling = false
		if err == nil {
			f.lastSyncWall = ts
			f.lastSyncMono = time.Now()
			f.hasSynced = true
		}
	}()
}

// stop joins any in-flight NTP worker. At most one is ever running at a
// time, per spec.md §5.
func (f *ntpFetcher) stop() {
	f.wg.Wait()
}
