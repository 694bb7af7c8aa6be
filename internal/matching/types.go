// Package matching implements the per-symbol continuous limit order
// book and its price-time priority matching algorithm. It is pure
// business logic: no I/O, no wire format, no session concept beyond
// the SessionID tag used to scope cancel lookups.
package matching

import (
	"math"
	"time"
)

// Side is the aggressing direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// OrderType distinguishes priced orders from at-market orders.
type OrderType int

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
)

// Status is an order's position in its state machine. Terminal states
// (Filled, Canceled, Rejected) admit no further transition.
type Status int

const (
	StatusNew Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCanceled:
		return "canceled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further fills or cancellation can
// apply to an order in this status.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// Order is created on admission and mutated only while the book's lock
// is held. It is retained after reaching a terminal state so later
// cancel requests can still resolve it to NotCancellable rather than
// Unknown.
type Order struct {
	OrderID    uint64
	ClOrdID    string
	SessionID  string
	Symbol     string
	Side       Side
	OrderType  OrderType
	Price      float64
	OrderQty   int64
	FilledQty  int64
	Status     Status
	EnqueueSeq uint64
}

// RemainingQty is the quantity still eligible to trade.
func (o *Order) RemainingQty() int64 {
	return o.OrderQty - o.FilledQty
}

// EffectivePrice is the price used for sort and crossing purposes.
// Market orders sort ahead of every limit on their side: +infinity for
// a buy, 0 for a sell.
func (o *Order) EffectivePrice() float64 {
	if o.OrderType != OrderTypeMarket {
		return o.Price
	}
	if o.Side == SideBuy {
		return math.Inf(1)
	}
	return 0
}

// Execution is emitted once per matched quantity slice.
type Execution struct {
	ExecID          uint64
	Symbol          string
	BuyOrderID      uint64
	SellOrderID     uint64
	LastQty         int64
	LastPx          float64
	Timestamp       time.Time
	BuyStatusAfter  Status
	SellStatusAfter Status
}

// AdmissionOutcome is admit's result: the admitted order (possibly
// already terminal) and every execution produced by the match cycle it
// triggered.
type AdmissionOutcome struct {
	Order        *Order
	Executions   []*Execution
	Rejected     bool
	RejectReason string
}

// CancelResult classifies cancel's outcome.
type CancelResult int

const (
	CancelResultCanceled CancelResult = iota
	CancelResultUnknown
	CancelResultNotCancellable
)

// CancelOutcome is cancel's result.
type CancelOutcome struct {
	Result CancelResult
	Order  *Order
}

// BookSnapshot is an immutable view of one symbol's resting orders and
// recent executions, safe to read without the book's lock.
type BookSnapshot struct {
	Symbol     string
	Bids       []Order
	Asks       []Order
	Executions []Execution
}
