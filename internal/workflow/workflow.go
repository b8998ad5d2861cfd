// Package workflow holds the status transition graphs for dispatches and
// transfers.
package workflow

import (
	"errors"
	"fmt"
	"sort"

	"medops-bknd/internal/models"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError reports a rejected move. It unwraps to ErrInvalidTransition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Machine is a transition graph keyed by from-state.
type Machine[S ~string] struct {
	entity string
	graph  map[S]map[S]bool
}

func NewMachine[S ~string](entity string, graph map[S]map[S]bool) Machine[S] {
	return Machine[S]{entity: entity, graph: graph}
}

func (m Machine[S]) CanTransition(from, to S) bool {
	return m.graph[from][to]
}

// Transition returns nil when from -> to is an edge of the graph.
func (m Machine[S]) Transition(from, to S) error {
	if m.CanTransition(from, to) {
		return nil
	}
	return &TransitionError{Entity: m.entity, From: string(from), To: string(to)}
}

// Allowed lists the next states from s in lexical order.
func (m Machine[S]) Allowed(from S) []S {
	out := make([]S, 0, len(m.graph[from]))
	for s, ok := range m.graph[from] {
		if ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m Machine[S]) IsTerminal(s S) bool {
	return len(m.graph[s]) == 0
}

func (m Machine[S]) IsKnown(s S) bool {
	if _, ok := m.graph[s]; ok {
		return true
	}
	for _, next := range m.graph {
		if next[s] {
			return true
		}
	}
	return false
}

var Dispatch = NewMachine("dispatch", map[models.DispatchStatus]map[models.DispatchStatus]bool{
	models.DispatchPending:    {models.DispatchDispatched: true, models.DispatchCancelled: true},
	models.DispatchDispatched: {models.DispatchEnRoute: true, models.DispatchCancelled: true},
	models.DispatchEnRoute:    {models.DispatchArrived: true, models.DispatchCancelled: true},
	models.DispatchArrived:    {models.DispatchCompleted: true, models.DispatchCancelled: true},
	models.DispatchCompleted:  {},
	models.DispatchCancelled:  {},
})

var Transfer = NewMachine("transfer", map[models.TransferStatus]map[models.TransferStatus]bool{
	models.TransferPending:   {models.TransferAccepted: true, models.TransferRejected: true, models.TransferCancelled: true},
	models.TransferAccepted:  {models.TransferInTransit: true, models.TransferCancelled: true},
	models.TransferInTransit: {models.TransferCompleted: true},
	models.TransferRejected:  {},
	models.TransferCompleted: {},
	models.TransferCancelled: {},
})
