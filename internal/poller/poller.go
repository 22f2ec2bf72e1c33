// Package poller tracks one running pipeline job by polling its status on a
// fixed interval until the job reaches a terminal state.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/debuglog"
)

// StatusFetcher fetches one status snapshot. *api.Client implements it.
type StatusFetcher interface {
	Status(ctx context.Context, jobID string) (*api.StatusSnapshot, error)
}

// Sink receives applied snapshots. Calls for one handle are serialized and
// arrive in request order. Sink methods must not call Poller.Start.
type Sink interface {
	// OnSnapshot is called for every applied snapshot, terminal ones
	// included.
	OnSnapshot(jobID string, snap *api.StatusSnapshot)
	// OnTerminal is called exactly once, after the OnSnapshot of the first
	// terminal snapshot.
	OnTerminal(jobID string, snap *api.StatusSnapshot)
}

// TimeoutSink is implemented by sinks that want to hear about a loop that
// hit its maximum duration before the job finished.
type TimeoutSink interface {
	OnPollTimeout(jobID string)
}

// DefaultMaxInflight caps the status requests one loop has outstanding.
const DefaultMaxInflight = 4

type Option func(*Poller)

// WithMaxDuration bounds each polling loop. Zero means unbounded.
func WithMaxDuration(d time.Duration) Option {
	return func(p *Poller) { p.maxDuration = d }
}

// WithMaxInflight caps concurrent status requests per loop. A tick that
// finds n requests outstanding is skipped.
func WithMaxInflight(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxInflight = int32(n)
		}
	}
}

// Poller runs at most one polling loop at a time.
type Poller struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxDuration time.Duration
	maxInflight int32

	startMu sync.Mutex
	mu      sync.Mutex
	current *Handle
	live    atomic.Int32
}

func New(fetcher StatusFetcher, interval time.Duration, opts ...Option) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	p := &Poller{fetcher: fetcher, interval: interval, maxInflight: DefaultMaxInflight}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start stops any running loop, waits for it to exit and then starts
// polling jobID. Cancelling ctx stops the loop as well.
func (p *Poller) Start(ctx context.Context, jobID string, sink Sink) *Handle {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	p.mu.Lock()
	prev := p.current
	p.mu.Unlock()
	if prev != nil {
		prev.Stop()
		<-prev.Done()
	}

	var loopCtx context.Context
	var cancel context.CancelFunc
	if p.maxDuration > 0 {
		loopCtx, cancel = context.WithTimeout(ctx, p.maxDuration)
	} else {
		loopCtx, cancel = context.WithCancel(ctx)
	}

	h := &Handle{
		poller: p,
		jobID:  jobID,
		sink:   sink,
		ctx:    loopCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	p.current = h
	p.mu.Unlock()

	p.live.Add(1)
	go h.run()

	debuglog.With("job", jobID, "interval", p.interval).Infof("poller: started")
	return h
}

// Stop cancels the running loop, if any. It does not wait for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	h := p.current
	p.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// Active returns the handle of a loop that is still running.
func (p *Poller) Active() (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, false
	}
	select {
	case <-p.current.done:
		return nil, false
	default:
		return p.current, true
	}
}

// LiveTimers reports how many polling loops are running.
func (p *Poller) LiveTimers() int {
	return int(p.live.Load())
}

// Handle controls one polling loop.
type Handle struct {
	poller *Poller
	jobID  string
	sink   Sink
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	pending  atomic.Int32
	mu       sync.Mutex
	seq      uint64
	lastSeq  uint64
	terminal bool
	final    *api.StatusSnapshot
}

func (h *Handle) JobID() string { return h.jobID }

// Stop cancels the loop. Safe to call more than once.
func (h *Handle) Stop() { h.cancel() }

// Done is closed once the loop and its in-flight requests have finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Final returns the terminal snapshot once one has been applied.
func (h *Handle) Final() (*api.StatusSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.final, h.terminal
}

func (h *Handle) run() {
	var inflight sync.WaitGroup
	defer close(h.done)
	defer h.poller.live.Add(-1)
	defer inflight.Wait()

	ticker := time.NewTicker(h.poller.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.finish()
			return
		case <-ticker.C:
			if h.pending.Load() >= h.poller.maxInflight {
				debuglog.With("job", h.jobID, "pending", h.pending.Load()).Debugf("poller: skipped tick")
				continue
			}
			h.mu.Lock()
			h.seq++
			seq := h.seq
			h.mu.Unlock()

			// Each request runs on its own so a slow reply never delays the
			// next tick. Replies are ordered by seq in apply.
			inflight.Add(1)
			h.pending.Add(1)
			go func() {
				defer inflight.Done()
				defer h.pending.Add(-1)
				h.fetch(seq)
			}()
		}
	}
}

func (h *Handle) finish() {
	h.mu.Lock()
	terminal := h.terminal
	h.mu.Unlock()

	if terminal || !errors.Is(h.ctx.Err(), context.DeadlineExceeded) {
		debuglog.With("job", h.jobID).Debugf("poller: stopped")
		return
	}

	debuglog.With("job", h.jobID, "max", h.poller.maxDuration).Warnf("poller: gave up before the job finished")
	if ts, ok := h.sink.(TimeoutSink); ok {
		ts.OnPollTimeout(h.jobID)
	}
}

func (h *Handle) fetch(seq uint64) {
	snap, err := h.poller.fetcher.Status(h.ctx, h.jobID)
	if err != nil {
		if h.ctx.Err() == nil {
			// One failed tick is not fatal; the next one retries.
			debuglog.With("job", h.jobID, "seq", seq).Warnf("poller: status request failed: %v", err)
		}
		return
	}
	if snap == nil {
		return
	}
	h.apply(seq, snap)
}

func (h *Handle) apply(seq uint64, snap *api.StatusSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.terminal || h.ctx.Err() != nil {
		return
	}
	if seq <= h.lastSeq {
		debuglog.With("job", h.jobID, "seq", seq, "applied", h.lastSeq).Debugf("poller: dropped stale response")
		return
	}
	h.lastSeq = seq

	terminal := snap.Status.Terminal()
	if terminal {
		h.terminal = true
		h.final = snap
		h.cancel()
	}

	if h.sink == nil {
		return
	}
	h.sink.OnSnapshot(h.jobID, snap)
	if terminal {
		debuglog.With("job", h.jobID, "status", snap.Status).Infof("poller: job finished")
		h.sink.OnTerminal(h.jobID, snap)
	}
}
