package changefeed

import (
	"context"
	"sync"

	"medops-bknd/internal/livecache"

	"go.uber.org/zap"
)

// TableSource backs a livecache.Collection with a bulk fetch and the hub's
// events for one table, decoded to T.
type TableSource[T any] struct {
	Hub    *Hub
	Table  string
	Filter Filter
	Load   func(ctx context.Context) ([]T, error)
	Logger *zap.Logger
}

func (s TableSource[T]) Fetch(ctx context.Context) ([]T, error) {
	return s.Load(ctx)
}

func (s TableSource[T]) Subscribe(ctx context.Context) (livecache.Stream[T], error) {
	logr := s.Logger
	if logr == nil {
		logr = zap.NewNop()
	}

	sub := s.Hub.Subscribe(s.Table, s.Filter)
	st := &typedStream[T]{
		sub:  sub,
		ch:   make(chan livecache.Event[T]),
		done: make(chan struct{}),
	}
	go st.pump(ctx, logr)
	return st, nil
}

type typedStream[T any] struct {
	sub  *Subscription
	ch   chan livecache.Event[T]
	done chan struct{}
	once sync.Once
}

func (st *typedStream[T]) Events() <-chan livecache.Event[T] { return st.ch }

func (st *typedStream[T]) Close() error {
	st.once.Do(func() {
		close(st.done)
		_ = st.sub.Close()
	})
	return nil
}

// pump ends the typed stream when a row fails to decode. Skipping it would
// let the collection drift, so the consumer resyncs instead.
func (st *typedStream[T]) pump(ctx context.Context, logr *zap.Logger) {
	defer close(st.ch)
	for ev := range st.sub.Events() {
		row, err := Decode[T](ev)
		if err != nil {
			logr.Error("undecodable change event, ending stream", zap.String("table", ev.Table), zap.Error(err))
			_ = st.sub.Close()
			return
		}
		select {
		case st.ch <- livecache.Event[T]{Op: ev.Op, Row: row}:
		case <-st.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
