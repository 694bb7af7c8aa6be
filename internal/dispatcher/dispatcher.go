// Package dispatcher owns the mapping from decoded message types to
// business handlers (component C4): validating new orders, calling
// into the order book, and building every outbound execution report.
// It is the only component that constructs ExecutionReport bytes.
package dispatcher

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Demiserular/crucible-exchange/internal/fixcodec"
	"github.com/Demiserular/crucible-exchange/internal/matching"
	"github.com/Demiserular/crucible-exchange/internal/session"
)

// Now is overridable in tests; defaults to time.Now.
var Now = time.Now

// Logger is the narrow slice of structured logging the dispatcher
// needs, satisfied by *zap.SugaredLogger.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infow(string, ...interface{}) {}
func (noopLogger) Warnw(string, ...interface{}) {}

// Handlers implements session.OrderHandler against a shared order
// book. One instance is wired into every session the acceptor spawns.
type Handlers struct {
	Book *matching.OrderBook
	Log  Logger
}

// New builds a Handlers bound to book. A nil logger installs a no-op.
func New(book *matching.OrderBook, log Logger) *Handlers {
	if log == nil {
		log = noopLogger{}
	}
	return &Handlers{Book: book, Log: log}
}

var _ session.OrderHandler = (*Handlers)(nil)

// HandleNewOrder validates the incoming NewOrderSingle, admits it into
// the book, and returns the New ack followed by one ExecutionReport
// per fill the admitted order participated in.
func (h *Handlers) HandleNewOrder(sess *session.Session, msg *fixcodec.Message) [][]byte {
	clOrdID := msg.GetString(fixcodec.TagClOrdID)
	symbol := msg.GetString(fixcodec.TagSymbol)
	side := parseSide(msg.GetString(fixcodec.TagSide))
	orderType := parseOrdType(msg.GetString(fixcodec.TagOrdType))
	qty := parseInt(msg.GetString(fixcodec.TagOrderQty))
	price := parseFloat(msg.GetString(fixcodec.TagPrice))

	order := &matching.Order{
		ClOrdID:   clOrdID,
		SessionID: sess.PeerAddr,
		Symbol:    symbol,
		Side:      side,
		OrderType: orderType,
		Price:     price,
		OrderQty:  qty,
	}

	outcome := h.Book.Admit(order)

	if outcome.Rejected {
		h.Log.Warnw("order rejected", "cl_ord_id", clOrdID, "reason", outcome.RejectReason)
		return [][]byte{h.buildReject(sess, outcome.Order, outcome.RejectReason)}
	}

	out := [][]byte{h.buildNewAck(sess, outcome.Order)}

	var cumQty int64
	for _, exec := range outcome.Executions {
		isBuy := exec.BuyOrderID == outcome.Order.OrderID
		var statusAfter matching.Status
		if isBuy {
			statusAfter = exec.BuyStatusAfter
		} else {
			statusAfter = exec.SellStatusAfter
		}
		cumQty += exec.LastQty
		out = append(out, h.buildFillReport(sess, outcome.Order, exec, statusAfter, cumQty))
	}

	return out
}

// HandleCancel resolves the target by OrigClOrdID and emits either a
// cancel confirmation or a cancel-reject.
func (h *Handlers) HandleCancel(sess *session.Session, msg *fixcodec.Message) [][]byte {
	origClOrdID := msg.GetString(fixcodec.TagOrigClOrdID)
	outcome := h.Book.CancelByClOrdID(sess.PeerAddr, origClOrdID)

	switch outcome.Result {
	case matching.CancelResultCanceled:
		return [][]byte{h.buildCancelAck(sess, outcome.Order)}
	case matching.CancelResultNotCancellable:
		return [][]byte{h.buildCancelReject(sess, origClOrdID, "Order not found")}
	default:
		return [][]byte{h.buildCancelReject(sess, origClOrdID, "Order not found")}
	}
}

func (h *Handlers) buildNewAck(sess *session.Session, order *matching.Order) []byte {
	fields := h.baseExecFields(order, fixcodec.ExecNew, matching.StatusNew, 0, 0, 0)
	return sess.Encode(fixcodec.MsgTypeExecutionReport, fields)
}

func (h *Handlers) buildFillReport(sess *session.Session, order *matching.Order, exec *matching.Execution, statusAfter matching.Status, cumQty int64) []byte {
	execType := fixcodec.ExecPartialFill
	if statusAfter == matching.StatusFilled {
		execType = fixcodec.ExecFill
	}
	fields := h.baseExecFields(order, execType, statusAfter, exec.LastQty, exec.LastPx, cumQty)
	return sess.Encode(fixcodec.MsgTypeExecutionReport, fields)
}

func (h *Handlers) buildReject(sess *session.Session, order *matching.Order, reason string) []byte {
	fields := h.baseExecFields(order, fixcodec.ExecRejected, matching.StatusRejected, 0, 0, 0)
	fields = append(fields, fixcodec.Field{Tag: fixcodec.TagText, Value: reason})
	return sess.Encode(fixcodec.MsgTypeExecutionReport, fields)
}

func (h *Handlers) buildCancelAck(sess *session.Session, order *matching.Order) []byte {
	fields := h.baseExecFields(order, fixcodec.ExecCanceled, matching.StatusCanceled, 0, 0, order.FilledQty)
	return sess.Encode(fixcodec.MsgTypeExecutionReport, fields)
}

func (h *Handlers) buildCancelReject(sess *session.Session, origClOrdID, reason string) []byte {
	fields := []fixcodec.Field{
		{Tag: fixcodec.TagClOrdID, Value: origClOrdID},
		{Tag: fixcodec.TagExecID, Value: strconv.FormatUint(h.Book.NextReportID(), 10)},
		{Tag: fixcodec.TagExecType, Value: fixcodec.ExecRejected},
		{Tag: fixcodec.TagOrdStatus, Value: fixcodec.ExecRejected},
		{Tag: fixcodec.TagTransactTime, Value: fixcodec.FormatTime(Now())},
		{Tag: fixcodec.TagText, Value: reason},
	}
	return sess.Encode(fixcodec.MsgTypeExecutionReport, fields)
}

// baseExecFields builds the exhaustive execution-report tag set the
// dispatcher emits: 37, 11, 17, 150, 39, 55, 54, 38, 32, 31, 14, 6, 60.
// AvgPx is, in this dialect, the last fill's price rather than a
// quantity-weighted average; a report with no fill carries the order's
// own price as AvgPx.
func (h *Handlers) baseExecFields(order *matching.Order, execType string, status matching.Status, lastQty int64, lastPx float64, cumQty int64) []fixcodec.Field {
	avgPx := lastPx
	if avgPx == 0 {
		avgPx = order.Price
	}
	return []fixcodec.Field{
		{Tag: fixcodec.TagOrderID, Value: strconv.FormatUint(order.OrderID, 10)},
		{Tag: fixcodec.TagClOrdID, Value: order.ClOrdID},
		{Tag: fixcodec.TagExecID, Value: strconv.FormatUint(h.Book.NextReportID(), 10)},
		{Tag: fixcodec.TagExecType, Value: execType},
		{Tag: fixcodec.TagOrdStatus, Value: ordStatusCode(status)},
		{Tag: fixcodec.TagSymbol, Value: order.Symbol},
		{Tag: fixcodec.TagSide, Value: sideCode(order.Side)},
		{Tag: fixcodec.TagOrderQty, Value: strconv.FormatInt(order.OrderQty, 10)},
		{Tag: fixcodec.TagLastQty, Value: strconv.FormatInt(lastQty, 10)},
		{Tag: fixcodec.TagLastPx, Value: fmt.Sprintf("%.2f", lastPx)},
		{Tag: fixcodec.TagCumQty, Value: strconv.FormatInt(cumQty, 10)},
		{Tag: fixcodec.TagAvgPx, Value: fmt.Sprintf("%.2f", avgPx)},
		{Tag: fixcodec.TagTransactTime, Value: fixcodec.FormatTime(Now())},
	}
}

// ordStatusCode maps the book's Status to the dialect's OrdStatus wire
// value. New reuses ExecNew's code; the dialect shares a code space
// between ExecType and OrdStatus.
func ordStatusCode(status matching.Status) string {
	switch status {
	case matching.StatusNew:
		return fixcodec.ExecNew
	case matching.StatusPartiallyFilled:
		return fixcodec.ExecPartialFill
	case matching.StatusFilled:
		return fixcodec.ExecFill
	case matching.StatusCanceled:
		return fixcodec.ExecCanceled
	case matching.StatusRejected:
		return fixcodec.ExecRejected
	default:
		return fixcodec.ExecRejected
	}
}

func sideCode(side matching.Side) string {
	if side == matching.SideBuy {
		return fixcodec.SideBuy
	}
	return fixcodec.SideSell
}

func parseSide(v string) matching.Side {
	if v == fixcodec.SideSell {
		return matching.SideSell
	}
	return matching.SideBuy
}

func parseOrdType(v string) matching.OrderType {
	if v == fixcodec.OrdTypeMarket {
		return matching.OrderTypeMarket
	}
	return matching.OrderTypeLimit
}

func parseInt(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
