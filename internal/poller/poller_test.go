package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/api/apitest"
	"github.com/pders01/newsroom/internal/config"
)

const tick = 5 * time.Millisecond

// scriptFetcher serves responses by call number. The last entry repeats.
type scriptFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, ctx context.Context) (*api.StatusSnapshot, error)
}

func (f *scriptFetcher) Status(ctx context.Context, _ string) (*api.StatusSnapshot, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, ctx)
}

func (f *scriptFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []*api.StatusSnapshot
	terminals []*api.StatusSnapshot
	timeouts  int
}

func (s *recordingSink) OnSnapshot(_ string, snap *api.StatusSnapshot) {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

func (s *recordingSink) OnTerminal(_ string, snap *api.StatusSnapshot) {
	s.mu.Lock()
	s.terminals = append(s.terminals, snap)
	s.mu.Unlock()
}

func (s *recordingSink) OnPollTimeout(string) {
	s.mu.Lock()
	s.timeouts++
	s.mu.Unlock()
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots), len(s.terminals)
}

func running(progress int) *api.StatusSnapshot {
	return &api.StatusSnapshot{Status: api.JobRunning, Steps: []api.Step{{Index: 0, Status: api.StepRunning, Progress: progress}}}
}

func TestPollsUntilCompletedThenStops(t *testing.T) {
	f := &scriptFetcher{fn: func(call int, _ context.Context) (*api.StatusSnapshot, error) {
		if call < 3 {
			return running(call * 10), nil
		}
		return &api.StatusSnapshot{Status: api.JobCompleted, SearchHistoryID: api.Int64(42)}, nil
	}}
	sink := &recordingSink{}
	p := New(f, tick)

	h := p.Start(context.Background(), "job", sink)
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after completion")
	}

	snaps, terms := sink.counts()
	assert.Equal(t, 3, snaps)
	assert.Equal(t, 1, terms)

	final, ok := h.Final()
	require.True(t, ok)
	assert.Equal(t, int64(42), *final.SearchHistoryID)

	calls := f.Calls()
	time.Sleep(5 * tick)
	assert.Equal(t, calls, f.Calls(), "no requests after the terminal snapshot")
	assert.Equal(t, 0, p.LiveTimers())
	_, active := p.Active()
	assert.False(t, active)
}

func TestErrorStatusIsTerminal(t *testing.T) {
	f := &scriptFetcher{fn: func(int, context.Context) (*api.StatusSnapshot, error) {
		return &api.StatusSnapshot{Status: api.JobError, ErrorMessage: "feed unreachable"}, nil
	}}
	sink := &recordingSink{}
	h := New(f, tick).Start(context.Background(), "job", sink)
	<-h.Done()

	_, terms := sink.counts()
	require.Equal(t, 1, terms)
	assert.Equal(t, "feed unreachable", sink.terminals[0].ErrorMessage)
}

func TestTransportErrorsAreSwallowed(t *testing.T) {
	f := &scriptFetcher{fn: func(call int, _ context.Context) (*api.StatusSnapshot, error) {
		if call <= 3 {
			return nil, errors.New("connection refused")
		}
		return &api.StatusSnapshot{Status: api.JobCompleted}, nil
	}}
	sink := &recordingSink{}
	h := New(f, tick).Start(context.Background(), "job", sink)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("polling did not continue after errors")
	}
	snaps, terms := sink.counts()
	assert.Equal(t, 1, snaps)
	assert.Equal(t, 1, terms)
	assert.GreaterOrEqual(t, f.Calls(), 4)
}

func TestStaleResponseDiscarded(t *testing.T) {
	releaseFirst := make(chan struct{})
	f := &scriptFetcher{fn: func(call int, ctx context.Context) (*api.StatusSnapshot, error) {
		switch call {
		case 1:
			select {
			case <-releaseFirst:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return running(10), nil
		default:
			return running(60), nil
		}
	}}
	sink := &recordingSink{}
	p := New(f, tick)
	h := p.Start(context.Background(), "job", sink)
	defer h.Stop()

	require.Eventually(t, func() bool {
		n, _ := sink.counts()
		return n >= 1
	}, time.Second, tick)

	close(releaseFirst)
	time.Sleep(4 * tick)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, s := range sink.snapshots {
		assert.Equal(t, 60, s.Steps[0].Progress, "the older reply must not overwrite a newer one")
	}
}

func TestHungRequestDoesNotBlockTicks(t *testing.T) {
	f := &scriptFetcher{fn: func(call int, ctx context.Context) (*api.StatusSnapshot, error) {
		if call == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &api.StatusSnapshot{Status: api.JobCompleted}, nil
	}}
	sink := &recordingSink{}
	h := New(f, tick).Start(context.Background(), "job", sink)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hung request blocked the loop")
	}
	_, terms := sink.counts()
	assert.Equal(t, 1, terms)
}

func TestHungRequestsAreCapped(t *testing.T) {
	var live, peak atomic.Int32
	f := &scriptFetcher{fn: func(_ int, ctx context.Context) (*api.StatusSnapshot, error) {
		n := live.Add(1)
		defer live.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := New(f, tick, WithMaxInflight(2)).Start(context.Background(), "job", &recordingSink{})

	require.Eventually(t, func() bool { return f.Calls() == 2 }, time.Second, tick)
	time.Sleep(10 * tick)
	assert.Equal(t, 2, f.Calls(), "ticks are skipped while the cap is reached")
	assert.Equal(t, int32(2), peak.Load())

	h.Stop()
	<-h.Done()
	assert.Zero(t, live.Load())
}

func TestTerminalHandledOnceWithConcurrentReplies(t *testing.T) {
	var gate sync.WaitGroup
	gate.Add(1)
	f := &scriptFetcher{fn: func(call int, ctx context.Context) (*api.StatusSnapshot, error) {
		if call <= 3 {
			gate.Wait()
		}
		return &api.StatusSnapshot{Status: api.JobCompleted}, nil
	}}
	sink := &recordingSink{}
	h := New(f, tick).Start(context.Background(), "job", sink)

	require.Eventually(t, func() bool { return f.Calls() >= 3 }, time.Second, tick)
	gate.Done()
	<-h.Done()

	snaps, terms := sink.counts()
	assert.Equal(t, 1, snaps)
	assert.Equal(t, 1, terms)
}

func TestRestartKeepsSingleTimer(t *testing.T) {
	f := &scriptFetcher{fn: func(int, context.Context) (*api.StatusSnapshot, error) {
		return running(1), nil
	}}
	p := New(f, tick)
	ctx := context.Background()

	var handles []*Handle
	for i := 0; i < 10; i++ {
		handles = append(handles, p.Start(ctx, "job", &recordingSink{}))
		assert.LessOrEqual(t, p.LiveTimers(), 1)
	}
	assert.Equal(t, 1, p.LiveTimers())

	for _, h := range handles[:9] {
		select {
		case <-h.Done():
		default:
			t.Fatal("a replaced loop is still running")
		}
	}

	active, ok := p.Active()
	require.True(t, ok)
	assert.Same(t, handles[9], active)

	p.Stop()
	<-handles[9].Done()
	assert.Equal(t, 0, p.LiveTimers())
}

func TestConcurrentStartsKeepSingleTimer(t *testing.T) {
	f := &scriptFetcher{fn: func(int, context.Context) (*api.StatusSnapshot, error) {
		return running(1), nil
	}}
	p := New(f, tick)

	var peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Start(context.Background(), "job", &recordingSink{})
			if n := int32(p.LiveTimers()); n > peak.Load() {
				peak.Store(n)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(peak.Load()), 1)
	p.Stop()
	require.Eventually(t, func() bool { return p.LiveTimers() == 0 }, time.Second, tick)
}

func TestStopIsIdempotent(t *testing.T) {
	f := &scriptFetcher{fn: func(int, context.Context) (*api.StatusSnapshot, error) { return running(0), nil }}
	p := New(f, tick)
	h := p.Start(context.Background(), "job", &recordingSink{})

	assert.NotPanics(t, func() {
		h.Stop()
		h.Stop()
		p.Stop()
	})
	<-h.Done()
	assert.Equal(t, "job", h.JobID())
}

func TestParentContextStopsLoop(t *testing.T) {
	f := &scriptFetcher{fn: func(int, context.Context) (*api.StatusSnapshot, error) { return running(0), nil }}
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	h := New(f, tick).Start(ctx, "job", sink)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("parent cancellation ignored")
	}
	_, terms := sink.counts()
	assert.Zero(t, terms)
	assert.Zero(t, sink.timeouts)
}

func TestMaxDuration(t *testing.T) {
	f := &scriptFetcher{fn: func(int, context.Context) (*api.StatusSnapshot, error) { return running(0), nil }}
	sink := &recordingSink{}
	h := New(f, tick, WithMaxDuration(8*tick)).Start(context.Background(), "job", sink)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("max duration not enforced")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 1, sink.timeouts)
	assert.Empty(t, sink.terminals)
}

func TestAgainstFakeBackend(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.QueueStatus("task-1",
		apitest.Snap("task-1", "running", apitest.Step("collect", "running", 20, "")),
		apitest.Snap("task-1", "running", apitest.Step("collect", "completed", 100, ""), apitest.Step("dedup", "running", 50, "")),
		apitest.Snap("task-1", "running").Completed(9, api.RunStatistics{Total: 4, Relevant: 1}),
	)

	cfg := config.TestConfig()
	cfg.Backend.BaseURL = srv.URL
	client, err := api.NewClient(cfg)
	require.NoError(t, err)

	sink := &recordingSink{}
	h := New(client, tick).Start(context.Background(), "task-1", sink)
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("did not finish")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.terminals, 1)
	assert.Equal(t, int64(9), *sink.terminals[0].SearchHistoryID)
	assert.GreaterOrEqual(t, len(sink.snapshots), 1)
}

func TestStopDuringInflightRequest(t *testing.T) {
	started := make(chan struct{}, 1)
	f := &scriptFetcher{fn: func(call int, ctx context.Context) (*api.StatusSnapshot, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return &api.StatusSnapshot{Status: api.JobCompleted}, nil
	}}
	sink := &recordingSink{}
	h := New(f, tick).Start(context.Background(), "job", sink)

	<-started
	h.Stop()
	<-h.Done()

	snaps, terms := sink.counts()
	assert.Zero(t, snaps, "replies arriving after Stop are dropped")
	assert.Zero(t, terms)
}
