// Package persistence implements the optional PersistenceSink
// collaborator: storage for orders (upserted by order ID) and
// executions (appended by execution ID), called
// from the book-mutation thread after the book's lock has already
// been released.
package persistence

import "github.com/Demiserular/crucible-exchange/internal/matching"

// Sink is the narrow interface the order book's hooks satisfy. Both
// operations are idempotent upserts keyed on their respective IDs —
// SaveOrder may be called many times for the same order as it
// transitions through its lifecycle.
type Sink interface {
	SaveOrder(order matching.Order)
	SaveExecution(exec matching.Execution)
	Close() error
}

// NoopSink discards everything. The core must behave identically with
// this attached as with any other sink — it is the default.
type NoopSink struct{}

func (NoopSink) SaveOrder(matching.Order)         {}
func (NoopSink) SaveExecution(matching.Execution) {}
func (NoopSink) Close() error                     { return nil }

var _ Sink = NoopSink{}
