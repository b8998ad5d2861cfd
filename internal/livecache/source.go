package livecache

import "context"

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Event is one committed change to a row of the collection.
type Event[T any] struct {
	Op  Op
	Row T
}

// Stream delivers change events in commit order until closed.
type Stream[T any] interface {
	Events() <-chan Event[T]
	Close() error
}

// Source is the authoritative store behind a Collection.
type Source[T any] interface {
	// Fetch returns the current rows, possibly capped to the most recent N.
	Fetch(ctx context.Context) ([]T, error)
	// Subscribe opens a change stream for the same rows Fetch returns.
	Subscribe(ctx context.Context) (Stream[T], error)
}

// SourceFuncs adapts a pair of functions to Source.
type SourceFuncs[T any] struct {
	FetchFunc     func(ctx context.Context) ([]T, error)
	SubscribeFunc func(ctx context.Context) (Stream[T], error)
}

func (s SourceFuncs[T]) Fetch(ctx context.Context) ([]T, error) {
	return s.FetchFunc(ctx)
}

func (s SourceFuncs[T]) Subscribe(ctx context.Context) (Stream[T], error) {
	return s.SubscribeFunc(ctx)
}
