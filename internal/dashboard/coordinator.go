package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docpulse/internal/analytics"
	"docpulse/internal/config"
	"docpulse/internal/metrics"
	"docpulse/internal/pkg/async"
)

// Task names of the five slices fetched per cycle.
const (
	sliceDailyStats    = "dailyStats"
	slicePageAttention = "pageAttention"
	sliceGeoStats      = "geoStats"
	sliceDeviceStats   = "deviceStats"
	sliceFunnel        = "funnel"
)

// DefaultFetchTimeout bounds a fetch cycle when no timeout is configured.
const DefaultFetchTimeout = 30 * time.Second

// failedFetchMessage is shown when a failed cycle carries no message.
const failedFetchMessage = "Failed to load analytics data"

// Coordinator runs fetch cycles for one dashboard context.
//
// Every selection change bumps a generation counter. A cycle remembers the
// generation it was started under and its result is committed only if that
// generation is still current, so responses for a superseded selection are
// dropped whatever order they arrive in. At most one cycle per generation is
// in flight; Refresh calls made meanwhile are absorbed by it.
type Coordinator struct {
	gateway analytics.MetricsGateway
	logger  *slog.Logger
	pool    *async.Pool
	now     func() time.Time
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// lifecycleMu serializes subscription changes. It is never taken by
	// change callbacks, which only need mu.
	lifecycleMu sync.Mutex
	subs        []analytics.Subscription

	mu          sync.Mutex
	closed      bool
	selection   analytics.Selection
	generation  uint64
	inFlight    bool
	cycleCancel context.CancelFunc
	lastGood    *analytics.Snapshot
	state       State
	watchers    map[uint64]chan State
	nextWatcher uint64
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithWorkers sets how many slice queries may run at once.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		c.pool = async.NewPool(n)
	}
}

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithFetchTimeout bounds how long a cycle may wait for the gateway. A cycle
// that runs out of time ends in the error state so Refresh can retry it.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCoordinator creates a coordinator in the no-selection state.
func NewCoordinator(gateway analytics.MetricsGateway, logger *slog.Logger, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		gateway:  gateway,
		logger:   logger,
		pool:     async.NewPool(5),
		now:      time.Now,
		timeout:  DefaultFetchTimeout,
		ctx:      ctx,
		cancel:   cancel,
		state:    State{Phase: PhaseNoSelection},
		watchers: make(map[uint64]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Select makes (doc, rangeDays) the active selection. An empty doc clears
// the selection: no fetch is made and subscriptions are released. Selecting
// the current selection again behaves like Refresh.
func (c *Coordinator) Select(doc analytics.DocumentID, rangeDays int) error {
	sel := analytics.Selection{DocumentID: doc, RangeDays: rangeDays}
	if sel.IsNone() {
		sel = analytics.Selection{}
	} else if rangeDays < 1 || rangeDays > config.MaxRangeDays {
		return fmt.Errorf("%w: %d days (allowed 1-%d)", ErrInvalidRange, rangeDays, config.MaxRangeDays)
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	if !sel.IsNone() && sel == c.selection {
		c.startCycleLocked()
		c.mu.Unlock()
		return nil
	}

	c.selection = sel
	c.generation++
	gen := c.generation
	c.supersedeLocked()
	c.lastGood = nil

	if sel.IsNone() {
		c.setStateLocked(State{Phase: PhaseNoSelection})
	} else {
		c.startCycleLocked()
	}
	c.mu.Unlock()

	c.logger.Debug("Dashboard selection changed",
		slog.String("document_id", string(sel.DocumentID)),
		slog.Int("range_days", sel.RangeDays),
		slog.Uint64("generation", gen))

	c.releaseSubscriptions()
	if !sel.IsNone() {
		c.openSubscriptions(gen, sel.DocumentID)
	}
	return nil
}

// Refresh starts a fetch cycle for the current selection unless one is
// already running. It does nothing when nothing is selected.
func (c *Coordinator) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.selection.IsNone() {
		return
	}
	c.startCycleLocked()
}

// Watch streams state changes, starting with the current state. The
// channel holds only the latest state; a slow reader skips intermediate
// ones. Call the returned func to stop watching.
func (c *Coordinator) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.nextWatcher++
	id := c.nextWatcher
	c.watchers[id] = ch
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if w, ok := c.watchers[id]; ok {
				delete(c.watchers, id)
				close(w)
			}
		})
	}
	return ch, stop
}

// Close tears the dashboard down: subscriptions are released, in-flight
// work is cancelled and its result discarded, watchers are closed.
func (c *Coordinator) Close() {
	c.lifecycleMu.Lock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.lifecycleMu.Unlock()
		return
	}
	c.generation++
	c.supersedeLocked()
	c.selection = analytics.Selection{}
	c.lastGood = nil
	c.setStateLocked(State{Phase: PhaseNoSelection})
	c.closed = true
	for id, w := range c.watchers {
		delete(c.watchers, id)
		close(w)
	}
	c.mu.Unlock()

	c.releaseSubscriptions()
	c.lifecycleMu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// supersedeLocked abandons the in-flight cycle, if any.
func (c *Coordinator) supersedeLocked() {
	if c.cycleCancel != nil {
		c.cycleCancel()
		c.cycleCancel = nil
	}
	c.inFlight = false
}

func (c *Coordinator) startCycleLocked() {
	if c.inFlight {
		metrics.RefreshCollapsed.Inc()
		return
	}

	sel := c.selection
	gen := c.generation
	ctx, cancel := context.WithCancel(c.ctx)
	c.inFlight = true
	c.cycleCancel = cancel

	c.setStateLocked(State{
		Phase:     PhaseLoading,
		Selection: sel,
		Snapshot:  c.lastGood,
	})

	c.wg.Add(1)
	go c.runCycle(ctx, cancel, gen, sel)
}

func (c *Coordinator) runCycle(ctx context.Context, cancel context.CancelFunc, gen uint64, sel analytics.Selection) {
	defer c.wg.Done()
	defer cancel()

	started := time.Now()
	slices, err := c.fetchWithDeadline(ctx, sel)
	metrics.FetchCycleDuration.Observe(time.Since(started).Seconds())

	c.commit(gen, sel, slices, err)
}

// fetchWithDeadline waits for fetch until it finishes, the cycle is
// superseded or the timeout elapses. A gateway call that ignores its context
// is left behind; its result is never read.
func (c *Coordinator) fetchWithDeadline(ctx context.Context, sel analytics.Selection) (analytics.Slices, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		slices analytics.Slices
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		slices, err := c.fetch(ctx, sel)
		done <- outcome{slices: slices, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return analytics.Slices{}, c.timeoutError()
		}
		return out.slices, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return analytics.Slices{}, c.timeoutError()
		}
		return analytics.Slices{}, ctx.Err()
	}
}

func (c *Coordinator) timeoutError() error {
	return fmt.Errorf("%w after %s", ErrFetchTimeout, c.timeout)
}

func (c *Coordinator) fetch(ctx context.Context, sel analytics.Selection) (analytics.Slices, error) {
	doc := sel.DocumentID

	tasks := []async.Task{
		{
			Name: sliceDailyStats,
			Execute: func(ctx context.Context) (interface{}, error) {
				return c.gateway.GetDailyStats(ctx, doc, sel.RangeDays)
			},
		},
		{
			Name: slicePageAttention,
			Execute: func(ctx context.Context) (interface{}, error) {
				return c.gateway.GetPageAttention(ctx, doc)
			},
		},
		{
			Name: sliceGeoStats,
			Execute: func(ctx context.Context) (interface{}, error) {
				return c.gateway.GetGeoStats(ctx, doc)
			},
		},
		{
			Name: sliceDeviceStats,
			Execute: func(ctx context.Context) (interface{}, error) {
				return c.gateway.GetDeviceStats(ctx, doc)
			},
		},
		{
			Name: sliceFunnel,
			Execute: func(ctx context.Context) (interface{}, error) {
				return c.gateway.GetConversionFunnel(ctx, doc)
			},
		},
	}

	results, err := c.pool.Execute(ctx, tasks)
	if err != nil {
		return analytics.Slices{}, err
	}

	return analytics.Slices{
		DailyStats:    results[sliceDailyStats].Data.([]analytics.DailyStatRecord),
		PageAttention: results[slicePageAttention].Data.([]analytics.PageAttentionRecord),
		GeoStats:      results[sliceGeoStats].Data.([]analytics.GeoStatRecord),
		DeviceStats:   results[sliceDeviceStats].Data.([]analytics.DeviceStatRecord),
		Funnel:        results[sliceFunnel].Data.([]analytics.FunnelStageRecord),
	}, nil
}

func (c *Coordinator) commit(gen uint64, sel analytics.Selection, slices analytics.Slices, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation {
		metrics.FetchCycles.WithLabelValues("stale").Inc()
		c.logger.Debug("Discarding stale fetch cycle",
			slog.String("document_id", string(sel.DocumentID)),
			slog.Uint64("generation", gen),
			slog.Uint64("current_generation", c.generation))
		return
	}

	c.inFlight = false
	c.cycleCancel = nil

	if err != nil {
		metrics.FetchCycles.WithLabelValues("error").Inc()
		c.logger.Warn("Failed to fetch analytics",
			slog.String("document_id", string(sel.DocumentID)),
			slog.Int("range_days", sel.RangeDays),
			slog.Any("error", err))
		message := err.Error()
		if message == "" {
			message = failedFetchMessage
		}
		c.setStateLocked(State{
			Phase:     PhaseError,
			Selection: sel,
			Snapshot:  c.lastGood,
			Err:       message,
		})
		return
	}

	metrics.FetchCycles.WithLabelValues("success").Inc()
	snapshot := analytics.BuildSnapshot(sel, slices, c.now().UTC())
	c.lastGood = snapshot
	c.setStateLocked(State{
		Phase:     PhaseReady,
		Selection: sel,
		Snapshot:  snapshot,
	})
}

// setStateLocked stores st and hands it to every watcher without blocking.
func (c *Coordinator) setStateLocked(st State) {
	c.state = st
	for _, w := range c.watchers {
		select {
		case w <- st:
		default:
			select {
			case <-w:
			default:
			}
			w <- st
		}
	}
}
