// Package livecache keeps an in-memory list of entities coherent with the
// store: one bulk fetch, then every insert/update/delete from the change
// stream applied in delivery order. Derived views are computed on each call
// from the current list.
package livecache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"medops-bknd/internal/apperr"

	"go.uber.org/zap"
)

type Options[T any] struct {
	// Name labels logs and errors, usually the table name.
	Name string
	// Key identifies an entity; required.
	Key func(T) string
	// Less orders the list. When nil, inserts are prepended (newest first).
	Less func(a, b T) bool
	// Limit caps the list after each insert. Zero means unbounded.
	Limit int
	// FetchAttempts bounds the initial fetch retries. Values below 1 mean 1.
	FetchAttempts int
	// FetchBackoff is the first retry delay; it doubles on every attempt.
	FetchBackoff time.Duration
	// Keep drops rows it rejects, on fetch and on every insert or update.
	// An update that fails Keep removes the row. Nil keeps everything.
	Keep func(T) bool
	// MaxPending caps the events buffered while a fetch is in flight. On
	// overflow the buffer is dropped and the fetch is repeated. Defaults to
	// DefaultMaxPending.
	MaxPending int
	Logger     *zap.Logger
}

const (
	DefaultMaxPending = 4096

	maxRetryDelay = 30 * time.Second
	maxFetchPass  = 3
)

var errBacklog = errors.New("change backlog overflowed while fetching")

// Collection is one consumer's live copy of an entity collection. Instances
// are not shared; each one fetches and subscribes on its own.
type Collection[T any] struct {
	name     string
	src      Source[T]
	key      func(T) string
	less     func(a, b T) bool
	keep     func(T) bool
	limit    int
	maxPend  int
	attempts int
	backoff  time.Duration
	logr     *zap.Logger

	mu      sync.RWMutex
	items   []T
	loading bool
	err     error
	ready   bool
	pending []Event[T]
	dropped bool
	// gen counts (re)subscriptions; a fetch only commits for its own gen.
	gen uint64

	hooksMu sync.Mutex
	hooks   []func()

	streamMu sync.Mutex
	stream   Stream[T]
	cancel   context.CancelFunc
	done     chan struct{}
	disposed bool
}

func New[T any](src Source[T], opts Options[T]) *Collection[T] {
	if opts.Key == nil {
		panic("livecache: Options.Key is required")
	}
	logr := opts.Logger
	if logr == nil {
		logr = zap.NewNop()
	}
	attempts := opts.FetchAttempts
	if attempts < 1 {
		attempts = 1
	}
	maxPend := opts.MaxPending
	if maxPend <= 0 {
		maxPend = DefaultMaxPending
	}
	return &Collection[T]{
		name:     opts.Name,
		src:      src,
		key:      opts.Key,
		less:     opts.Less,
		keep:     opts.Keep,
		limit:    opts.Limit,
		maxPend:  maxPend,
		attempts: attempts,
		backoff:  opts.FetchBackoff,
		logr:     logr.With(zap.String("collection", opts.Name)),
	}
}

// Start subscribes to the change stream and then performs the initial fetch.
// Events delivered while the fetch is in flight are buffered and replayed on
// top of the fetched rows. If the fetch fails the subscription stays open and
// keeps buffering, so the caller may retry with Initialize.
func (c *Collection[T]) Start(ctx context.Context) error {
	c.streamMu.Lock()
	if c.disposed {
		c.streamMu.Unlock()
		return errors.New("livecache: collection disposed")
	}
	if c.stream != nil {
		c.streamMu.Unlock()
		return errors.New("livecache: collection already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := c.src.Subscribe(runCtx)
	if err != nil {
		c.streamMu.Unlock()
		cancel()
		err = &apperr.FetchError{Op: c.name + " subscribe", Err: err}
		c.setErr(err)
		return err
	}

	gen := c.reset()

	c.stream = stream
	c.cancel = cancel
	c.done = make(chan struct{})
	c.streamMu.Unlock()

	go c.run(runCtx, stream)

	_, err = c.initialize(ctx, gen)
	return err
}

// reset marks the list as awaiting a fresh fetch and returns the new
// generation.
func (c *Collection[T]) reset() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	c.pending = nil
	c.dropped = false
	c.gen++
	return c.gen
}

// Initialize fetches the full collection, replacing the current list.
func (c *Collection[T]) Initialize(ctx context.Context) ([]T, error) {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()
	return c.initialize(ctx, gen)
}

func (c *Collection[T]) initialize(ctx context.Context, gen uint64) ([]T, error) {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	for pass := 1; ; pass++ {
		c.mu.Lock()
		c.dropped = false
		c.mu.Unlock()

		rows, err := c.fetch(ctx)

		c.mu.Lock()
		if c.gen != gen {
			// A newer resync owns the list now.
			out := c.copyLocked()
			c.mu.Unlock()
			return out, nil
		}
		if err == nil && c.dropped {
			if pass < maxFetchPass {
				c.mu.Unlock()
				c.logr.Warn("change backlog overflowed during fetch, fetching again", zap.Int("pass", pass))
				continue
			}
			err = &apperr.FetchError{Op: c.name, Err: errBacklog}
		}
		if err != nil {
			c.loading = false
			c.err = err
			c.mu.Unlock()
			return nil, err
		}

		out := c.commitLocked(rows)
		c.mu.Unlock()

		c.notify()
		return out, nil
	}
}

// commitLocked installs fetched rows, replays the buffered events on top and
// marks the list ready.
func (c *Collection[T]) commitLocked(rows []T) []T {
	items := make([]T, 0, len(rows))
	for _, r := range rows {
		if c.keep == nil || c.keep(r) {
			items = append(items, r)
		}
	}
	if c.less != nil {
		sort.SliceStable(items, func(i, j int) bool { return c.less(items[i], items[j]) })
	}
	if c.limit > 0 && len(items) > c.limit {
		items = items[:c.limit]
	}
	c.items = items
	c.err = nil
	c.loading = false

	for _, ev := range c.pending {
		c.apply(ev)
	}
	c.pending = nil
	c.ready = true
	return c.copyLocked()
}

func (c *Collection[T]) fetch(ctx context.Context) ([]T, error) {
	delay := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		rows, err := c.src.Fetch(ctx)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		c.logr.Warn("live collection fetch failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.attempts),
			zap.Error(err))

		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, &apperr.FetchError{Op: c.name, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, &apperr.FetchError{Op: c.name, Err: lastErr}
}

// run applies stream events until the context ends. A stream that closes on
// its own (for example after a subscriber overflow) triggers a resync:
// resubscribe, then refetch, with the same buffering as Start. Both steps are
// retried with backoff until they succeed or ctx ends; Err reports the last
// failure in the meantime.
func (c *Collection[T]) run(ctx context.Context, stream Stream[T]) {
	defer close(c.done)
	for {
		c.consume(ctx, stream)
		if ctx.Err() != nil {
			return
		}

		c.logr.Warn("change stream ended, resyncing")
		next, ok := c.resubscribe(ctx)
		if !ok {
			return
		}

		c.streamMu.Lock()
		if c.disposed {
			c.streamMu.Unlock()
			_ = next.Close()
			return
		}
		c.stream = next
		c.streamMu.Unlock()

		gen := c.reset()
		go c.refetch(ctx, gen)
		stream = next
	}
}

func (c *Collection[T]) resubscribe(ctx context.Context) (Stream[T], bool) {
	delay := c.retryDelay()
	for {
		next, err := c.src.Subscribe(ctx)
		if err == nil {
			return next, true
		}
		c.setErr(&apperr.FetchError{Op: c.name + " resubscribe", Err: err})
		c.logr.Error("live collection resubscribe failed", zap.Error(err), zap.Duration("retry_in", delay))
		if !sleep(ctx, delay) {
			return nil, false
		}
		delay = nextDelay(delay)
	}
}

func (c *Collection[T]) refetch(ctx context.Context, gen uint64) {
	delay := c.retryDelay()
	for {
		_, err := c.initialize(ctx, gen)
		if err == nil || ctx.Err() != nil {
			return
		}
		c.mu.RLock()
		stale := c.gen != gen
		c.mu.RUnlock()
		if stale {
			return
		}
		c.logr.Error("live collection refetch failed", zap.Error(err), zap.Duration("retry_in", delay))
		if !sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (c *Collection[T]) retryDelay() time.Duration {
	if c.backoff > 0 {
		return c.backoff
	}
	return time.Second
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Collection[T]) consume(ctx context.Context, stream Stream[T]) {
	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Apply(ev)
		}
	}
}

// Apply mutates the list with one change event. Before the initial fetch has
// completed the event is buffered instead.
func (c *Collection[T]) Apply(ev Event[T]) {
	c.mu.Lock()
	if !c.ready {
		switch {
		case c.dropped:
			// ignored until the next fetch pass
		case len(c.pending) >= c.maxPend:
			// The fetch in flight is refetched, which supersedes the buffer.
			c.pending = nil
			c.dropped = true
			c.logr.Warn("change backlog overflowed, dropping buffered events", zap.Int("max_pending", c.maxPend))
		default:
			c.pending = append(c.pending, ev)
		}
		c.mu.Unlock()
		return
	}
	changed := c.apply(ev)
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

func (c *Collection[T]) apply(ev Event[T]) bool {
	idx := c.indexOf(c.key(ev.Row))

	if ev.Op != OpDelete && c.keep != nil && !c.keep(ev.Row) {
		if idx < 0 {
			return false
		}
		c.items = append(c.items[:idx], c.items[idx+1:]...)
		return true
	}

	switch ev.Op {
	case OpInsert:
		if idx >= 0 {
			c.items[idx] = ev.Row
			return true
		}
		pos := 0
		if c.less != nil {
			pos = sort.Search(len(c.items), func(i int) bool { return c.less(ev.Row, c.items[i]) })
		}
		c.items = append(c.items, ev.Row)
		copy(c.items[pos+1:], c.items[pos:])
		c.items[pos] = ev.Row
		if c.limit > 0 && len(c.items) > c.limit {
			c.items = c.items[:c.limit]
		}
		return true

	case OpUpdate:
		if idx < 0 {
			return false
		}
		c.items[idx] = ev.Row
		return true

	case OpDelete:
		if idx < 0 {
			return false
		}
		c.items = append(c.items[:idx], c.items[idx+1:]...)
		return true
	}

	c.logr.Warn("ignoring change event with unknown op", zap.String("op", string(ev.Op)))
	return false
}

func (c *Collection[T]) indexOf(key string) int {
	for i := range c.items {
		if c.key(c.items[i]) == key {
			return i
		}
	}
	return -1
}

// Dispose releases the change stream and stops event processing. Calling it
// again has no effect. It must not be called from an OnChange hook.
func (c *Collection[T]) Dispose() {
	c.streamMu.Lock()
	if c.disposed {
		c.streamMu.Unlock()
		return
	}
	c.disposed = true
	stream, cancel, done := c.stream, c.cancel, c.done
	c.streamMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			c.logr.Debug("change stream close", zap.Error(err))
		}
	}
	if done != nil {
		<-done
	}
}

// OnChange registers fn to run after every change to the list.
func (c *Collection[T]) OnChange(fn func()) {
	c.hooksMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hooksMu.Unlock()
}

func (c *Collection[T]) notify() {
	c.hooksMu.Lock()
	hooks := make([]func(), len(c.hooks))
	copy(hooks, c.hooks)
	c.hooksMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// RemoveWhere drops every entity matching pred and reports how many went.
// OnChange hooks do not run, so it is safe to call while holding a lock a
// hook also takes.
func (c *Collection[T]) RemoveWhere(pred func(T) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.items[:0]
	for _, it := range c.items {
		if !pred(it) {
			kept = append(kept, it)
		}
	}
	n := len(c.items) - len(kept)
	var zero T
	for i := len(kept); i < len(c.items); i++ {
		c.items[i] = zero
	}
	c.items = kept
	return n
}

func (c *Collection[T]) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Collection[T]) copyLocked() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Name() string { return c.name }

// Items returns a copy of the current list in collection order.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyLocked()
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection[T]) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Err returns the last fetch or subscribe error, cleared by a successful fetch.
func (c *Collection[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Collection[T]) Find(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := c.indexOf(key); idx >= 0 {
		return c.items[idx], true
	}
	var zero T
	return zero, false
}
