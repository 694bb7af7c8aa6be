package dispatcher

import (
	"testing"
	"time"

	"github.com/Demiserular/crucible-exchange/internal/fixcodec"
	"github.com/Demiserular/crucible-exchange/internal/matching"
	"github.com/Demiserular/crucible-exchange/internal/session"
)

func newTestSession(handler session.OrderHandler) *session.Session {
	sess := session.New("127.0.0.1:5555", "EXCHANGE", handler)
	sess.Now = func() time.Time { return time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC) }
	return sess
}

func newOrderMsg(clOrdID, symbol, side, ordType, qty, price string) *fixcodec.Message {
	fields := []fixcodec.Field{
		{Tag: fixcodec.TagClOrdID, Value: clOrdID},
		{Tag: fixcodec.TagSymbol, Value: symbol},
		{Tag: fixcodec.TagSide, Value: side},
		{Tag: fixcodec.TagOrdType, Value: ordType},
		{Tag: fixcodec.TagOrderQty, Value: qty},
	}
	if price != "" {
		fields = append(fields, fixcodec.Field{Tag: fixcodec.TagPrice, Value: price})
	}
	raw := fixcodec.Encode(fixcodec.MsgTypeNewOrderSingle, 1, "CLIENT1", "EXCHANGE", time.Now(), fields)
	return fixcodec.Decode(raw)
}

func TestHandleNewOrderEmitsNewAck(t *testing.T) {
	book := matching.New([]string{"AAPL"})
	h := New(book, nil)
	sess := newTestSession(h)

	out := h.HandleNewOrder(sess, newOrderMsg("ord1", "AAPL", fixcodec.SideBuy, fixcodec.OrdTypeLimit, "100", "150.00"))
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1 (New ack only, no cross)", len(out))
	}
	reply := fixcodec.Decode(out[0])
	if v := reply.GetString(fixcodec.TagOrdStatus); v != fixcodec.ExecNew {
		t.Fatalf("OrdStatus = %q, want New", v)
	}
}

func TestHandleNewOrderEmitsFillAfterCross(t *testing.T) {
	book := matching.New([]string{"AAPL"})
	h := New(book, nil)
	sess := newTestSession(h)

	h.HandleNewOrder(sess, newOrderMsg("buy1", "AAPL", fixcodec.SideBuy, fixcodec.OrdTypeLimit, "100", "150.00"))
	out := h.HandleNewOrder(sess, newOrderMsg("sell1", "AAPL", fixcodec.SideSell, fixcodec.OrdTypeLimit, "100", "150.00"))

	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (New ack + Fill)", len(out))
	}
	fillReport := fixcodec.Decode(out[1])
	if v := fillReport.GetString(fixcodec.TagExecType); v != fixcodec.ExecFill {
		t.Fatalf("ExecType = %q, want Fill", v)
	}
	if v := fillReport.GetString(fixcodec.TagLastPx); v != "150.00" {
		t.Fatalf("LastPx = %q, want 150.00", v)
	}
}

func TestHandleNewOrderInvalidSymbolRejected(t *testing.T) {
	book := matching.New([]string{"AAPL"})
	h := New(book, nil)
	sess := newTestSession(h)

	out := h.HandleNewOrder(sess, newOrderMsg("ord1", "FOO", fixcodec.SideBuy, fixcodec.OrdTypeLimit, "10", "10.00"))
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	reply := fixcodec.Decode(out[0])
	if v := reply.GetString(fixcodec.TagOrdStatus); v != fixcodec.ExecRejected {
		t.Fatalf("OrdStatus = %q, want Rejected", v)
	}
	text := reply.GetString(fixcodec.TagText)
	if text == "" {
		t.Fatalf("Text field empty, want a reason mentioning the invalid symbol")
	}
}

func TestHandleCancelUnknownTarget(t *testing.T) {
	book := matching.New([]string{"AAPL"})
	h := New(book, nil)
	sess := newTestSession(h)

	fields := []fixcodec.Field{{Tag: fixcodec.TagOrigClOrdID, Value: "ghost"}}
	raw := fixcodec.Encode(fixcodec.MsgTypeOrderCancelReq, 1, "CLIENT1", "EXCHANGE", time.Now(), fields)
	out := h.HandleCancel(sess, fixcodec.Decode(raw))

	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	reply := fixcodec.Decode(out[0])
	if v := reply.GetString(fixcodec.TagOrdStatus); v != fixcodec.ExecRejected {
		t.Fatalf("OrdStatus = %q, want Rejected", v)
	}
}

func TestHandleCancelSuccess(t *testing.T) {
	book := matching.New([]string{"AAPL"})
	h := New(book, nil)
	sess := newTestSession(h)

	h.HandleNewOrder(sess, newOrderMsg("buy1", "AAPL", fixcodec.SideBuy, fixcodec.OrdTypeLimit, "100", "150.00"))

	fields := []fixcodec.Field{{Tag: fixcodec.TagOrigClOrdID, Value: "buy1"}}
	raw := fixcodec.Encode(fixcodec.MsgTypeOrderCancelReq, 2, "CLIENT1", "EXCHANGE", time.Now(), fields)
	out := h.HandleCancel(sess, fixcodec.Decode(raw))

	reply := fixcodec.Decode(out[0])
	if v := reply.GetString(fixcodec.TagExecType); v != fixcodec.ExecCanceled {
		t.Fatalf("ExecType = %q, want Canceled", v)
	}
}
