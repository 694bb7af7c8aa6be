// Package broadcast implements the optional BroadcastSink
// collaborator: best-effort, unordered push of book and execution
// events to external observers.
package broadcast

// Sink is the interface the order book's hooks call. eventType is one
// of new_order, cancel_order, execution, orderbook. Delivery is
// best-effort: a slow or absent observer never blocks the caller.
type Sink interface {
	Emit(eventType string, payload interface{})
}

// NoopSink discards every event. The core must behave identically with
// this attached as with any other sink — it is the default.
type NoopSink struct{}

func (NoopSink) Emit(string, interface{}) {}

var _ Sink = NoopSink{}
