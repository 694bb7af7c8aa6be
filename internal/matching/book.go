package matching

import (
	"fmt"
	"sort"
	"sync"
)

// maxMatchIterations bounds a single admission's matching cycle, per
// the book's safety cap — no single admit can loop forever even if the
// sort and crossing logic somehow disagreed.
const maxMatchIterations = 1000

// executionRingSize is the number of most recent executions retained
// per symbol.
const executionRingSize = 100

type cancelKey struct {
	sessionID string
	clOrdID   string
}

type symbolBook struct {
	symbol string
	bids   []*Order
	asks   []*Order
	ring   []*Execution
}

// OrderBook is the single cross-session shared structure. One mutex
// covers every symbol's maps, queues, counters, and execution ring —
// admit, cancel, and snapshot all serialize through it, matching runs
// under the same lock that inserted the order.
type OrderBook struct {
	mu sync.Mutex

	validSymbols map[string]bool
	symbols      map[string]*symbolBook
	ordersByID   map[uint64]*Order
	cancelIndex  map[cancelKey]uint64
	lastTradePx  map[string]float64

	nextOrderID    uint64
	nextEnqueueSeq uint64
	nextExecID     uint64
	nextReportID   uint64

	// Clock is overridable in tests; defaults to RealClock.
	Clock Clock

	// PersistOrder and PersistExecution, if set, are invoked after the
	// book's lock is released — never while holding it — so a slow or
	// blocking sink cannot stall matching. Left nil, nothing is called.
	PersistOrder     func(Order)
	PersistExecution func(Execution)

	// Broadcast, if set, is invoked after the lock is released for
	// every order admitted, canceled, or matched.
	Broadcast func(eventType string, payload interface{})
}

// New builds an OrderBook restricted to the given symbol whitelist.
func New(symbols []string) *OrderBook {
	valid := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		valid[s] = true
	}
	return &OrderBook{
		validSymbols: valid,
		symbols:      make(map[string]*symbolBook),
		ordersByID:   make(map[uint64]*Order),
		cancelIndex:  make(map[cancelKey]uint64),
		lastTradePx:  make(map[string]float64),
		Clock:        RealClock{},
	}
}

func (b *OrderBook) bookFor(symbol string) *symbolBook {
	sb, ok := b.symbols[symbol]
	if !ok {
		sb = &symbolBook{symbol: symbol}
		b.symbols[symbol] = sb
	}
	return sb
}

// Admit validates, assigns order_id and enqueue_seq, inserts the order
// into the right side's queue, and runs the matching loop for that
// symbol. It returns the New-ack descriptor plus every execution the
// admission produced.
func (b *OrderBook) Admit(order *Order) AdmissionOutcome {
	b.mu.Lock()
	outcome := b.admitLocked(order)
	b.mu.Unlock()

	b.notifyAdmission(outcome)
	return outcome
}

func (b *OrderBook) admitLocked(order *Order) AdmissionOutcome {
	if reason, ok := validate(order, b.validSymbols); !ok {
		order.Status = StatusRejected
		return AdmissionOutcome{Order: order, Rejected: true, RejectReason: reason}
	}

	b.nextOrderID++
	order.OrderID = b.nextOrderID
	b.nextEnqueueSeq++
	order.EnqueueSeq = b.nextEnqueueSeq
	order.Status = StatusNew

	b.ordersByID[order.OrderID] = order
	if order.ClOrdID != "" {
		b.cancelIndex[cancelKey{order.SessionID, order.ClOrdID}] = order.OrderID
	}

	sb := b.bookFor(order.Symbol)
	if order.Side == SideBuy {
		sb.bids = append(sb.bids, order)
	} else {
		sb.asks = append(sb.asks, order)
	}

	executions := b.matchSymbol(sb)

	if order.OrderType == OrderTypeMarket && !order.Status.IsTerminal() {
		b.removeFromSide(sb, order)
		if order.FilledQty == 0 {
			order.Status = StatusRejected
			return AdmissionOutcome{Order: order, Executions: executions, Rejected: true, RejectReason: "no resting opposite side for market order"}
		}
		order.Status = StatusCanceled
	}

	return AdmissionOutcome{Order: order, Executions: executions}
}

// validate runs admission-time checks. A failing order is never
// inserted into the book.
func validate(order *Order, validSymbols map[string]bool) (string, bool) {
	if !validSymbols[order.Symbol] {
		return fmt.Sprintf("Invalid symbol: %s", order.Symbol), false
	}
	if order.OrderQty <= 0 {
		return fmt.Sprintf("Invalid quantity: %d", order.OrderQty), false
	}
	if order.OrderType == OrderTypeLimit && order.Price <= 0 {
		return fmt.Sprintf("Invalid price: %v", order.Price), false
	}
	return "", true
}

// matchSymbol runs the price-time priority loop for one symbol until
// the top of book no longer crosses, the safety cap is hit, or either
// side empties.
func (b *OrderBook) matchSymbol(sb *symbolBook) []*Execution {
	var executions []*Execution

	for i := 0; i < maxMatchIterations; i++ {
		if len(sb.bids) == 0 || len(sb.asks) == 0 {
			break
		}
		sortBids(sb.bids)
		sortAsks(sb.asks)

		bid := sb.bids[0]
		ask := sb.asks[0]

		crossed, tradePx := crossingTest(bid, ask, b.lastTradePx[sb.symbol])
		if !crossed {
			break
		}

		tradeQty := bid.RemainingQty()
		if ask.RemainingQty() < tradeQty {
			tradeQty = ask.RemainingQty()
		}

		bid.FilledQty += tradeQty
		ask.FilledQty += tradeQty
		bid.Status = statusAfterFill(bid)
		ask.Status = statusAfterFill(ask)

		b.nextExecID++
		exec := &Execution{
			ExecID:          b.nextExecID,
			Symbol:          sb.symbol,
			BuyOrderID:      bid.OrderID,
			SellOrderID:     ask.OrderID,
			LastQty:         tradeQty,
			LastPx:          tradePx,
			Timestamp:       b.Clock.Now(),
			BuyStatusAfter:  bid.Status,
			SellStatusAfter: ask.Status,
		}
		executions = append(executions, exec)
		b.pushExecution(sb, exec)
		b.lastTradePx[sb.symbol] = tradePx

		if bid.Status == StatusFilled {
			sb.bids = sb.bids[1:]
		}
		if ask.Status == StatusFilled {
			sb.asks = sb.asks[1:]
		}
	}

	return executions
}

func statusAfterFill(o *Order) Status {
	if o.FilledQty >= o.OrderQty {
		return StatusFilled
	}
	return StatusPartiallyFilled
}

// crossingTest decides whether the resting top-of-book pair trades,
// and at what price. A Market order always crosses; the resting
// Limit's price sets the trade price. Two Limits cross only if the
// bid meets or exceeds the ask, pricing at the ask (the resting side
// sets the price, improving the aggressor). Two Markets meeting — an
// edge case with no priced counterparty on either side — cross at the
// last traded price for the symbol, or 0 if none has traded yet.
func crossingTest(bid, ask *Order, lastPx float64) (bool, float64) {
	bidMarket := bid.OrderType == OrderTypeMarket
	askMarket := ask.OrderType == OrderTypeMarket

	switch {
	case bidMarket && askMarket:
		return true, lastPx
	case bidMarket:
		return true, ask.Price
	case askMarket:
		return true, bid.Price
	default:
		if bid.Price >= ask.Price {
			return true, ask.Price
		}
		return false, 0
	}
}

func sortBids(bids []*Order) {
	sort.SliceStable(bids, func(i, j int) bool {
		pi, pj := bids[i].EffectivePrice(), bids[j].EffectivePrice()
		if pi != pj {
			return pi > pj
		}
		return bids[i].EnqueueSeq < bids[j].EnqueueSeq
	})
}

func sortAsks(asks []*Order) {
	sort.SliceStable(asks, func(i, j int) bool {
		pi, pj := asks[i].EffectivePrice(), asks[j].EffectivePrice()
		if pi != pj {
			return pi < pj
		}
		return asks[i].EnqueueSeq < asks[j].EnqueueSeq
	})
}

func (b *OrderBook) pushExecution(sb *symbolBook, exec *Execution) {
	sb.ring = append(sb.ring, exec)
	if len(sb.ring) > executionRingSize {
		sb.ring = sb.ring[len(sb.ring)-executionRingSize:]
	}
}

func (b *OrderBook) removeFromSide(sb *symbolBook, order *Order) {
	var side *[]*Order
	if order.Side == SideBuy {
		side = &sb.bids
	} else {
		side = &sb.asks
	}
	for i, o := range *side {
		if o.OrderID == order.OrderID {
			*side = append((*side)[:i], (*side)[i+1:]...)
			return
		}
	}
}

// CancelByClOrdID resolves the target order by (sessionID, clOrdID) —
// the lookup key a cancel request carries, since ClOrdID alone is not
// guaranteed unique across clients.
func (b *OrderBook) CancelByClOrdID(sessionID, clOrdID string) CancelOutcome {
	b.mu.Lock()
	orderID, ok := b.cancelIndex[cancelKey{sessionID, clOrdID}]
	if !ok {
		b.mu.Unlock()
		return CancelOutcome{Result: CancelResultUnknown}
	}
	outcome := b.cancelLocked(orderID)
	b.mu.Unlock()

	b.notifyCancel(outcome)
	return outcome
}

// CancelByOrderID cancels by the exchange-assigned order ID directly,
// without the (sessionID, clOrdID) lookup.
func (b *OrderBook) CancelByOrderID(orderID uint64) CancelOutcome {
	b.mu.Lock()
	outcome := b.cancelLocked(orderID)
	b.mu.Unlock()

	b.notifyCancel(outcome)
	return outcome
}

func (b *OrderBook) cancelLocked(orderID uint64) CancelOutcome {
	order, ok := b.ordersByID[orderID]
	if !ok {
		return CancelOutcome{Result: CancelResultUnknown}
	}
	if order.Status.IsTerminal() {
		return CancelOutcome{Result: CancelResultNotCancellable, Order: order}
	}

	order.Status = StatusCanceled
	sb := b.bookFor(order.Symbol)
	b.removeFromSide(sb, order)

	return CancelOutcome{Result: CancelResultCanceled, Order: order}
}

// NextReportID returns the next book-scoped monotone identifier for an
// outbound execution report — every report the dispatcher emits, not
// only ones that carry a trade, consumes this sequence.
func (b *OrderBook) NextReportID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextReportID++
	return b.nextReportID
}

// Snapshot returns an immutable view of one symbol's resting orders
// and recent executions, read under the same lock writers use.
func (b *OrderBook) Snapshot(symbol string) BookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	sb, ok := b.symbols[symbol]
	if !ok {
		return BookSnapshot{Symbol: symbol}
	}

	bids := make([]Order, len(sb.bids))
	for i, o := range sb.bids {
		bids[i] = *o
	}
	asks := make([]Order, len(sb.asks))
	for i, o := range sb.asks {
		asks[i] = *o
	}
	execs := make([]Execution, len(sb.ring))
	for i, e := range sb.ring {
		execs[i] = *e
	}

	return BookSnapshot{Symbol: symbol, Bids: bids, Asks: asks, Executions: execs}
}

func (b *OrderBook) notifyAdmission(outcome AdmissionOutcome) {
	if b.PersistOrder != nil {
		b.PersistOrder(*outcome.Order)
	}
	if b.Broadcast != nil {
		eventType := "new_order"
		if outcome.Rejected {
			eventType = "order_rejected"
		}
		b.Broadcast(eventType, *outcome.Order)
	}
	for _, exec := range outcome.Executions {
		if b.PersistExecution != nil {
			b.PersistExecution(*exec)
		}
		if b.Broadcast != nil {
			b.Broadcast("execution", *exec)
		}
	}
}

func (b *OrderBook) notifyCancel(outcome CancelOutcome) {
	if outcome.Order == nil {
		return
	}
	if b.PersistOrder != nil {
		b.PersistOrder(*outcome.Order)
	}
	if b.Broadcast != nil {
		b.Broadcast("cancel_order", *outcome.Order)
	}
}
