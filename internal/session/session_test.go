package session

import (
	"testing"
	"time"

	"github.com/Demiserular/crucible-exchange/internal/fixcodec"
)

type nullHandler struct {
	newOrderCalls int
	cancelCalls   int
}

func (h *nullHandler) HandleNewOrder(sess *Session, msg *fixcodec.Message) [][]byte {
	h.newOrderCalls++
	return nil
}

func (h *nullHandler) HandleCancel(sess *Session, msg *fixcodec.Message) [][]byte {
	h.cancelCalls++
	return nil
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
}

func logonBytes(seq int, senderCompID string) []byte {
	return fixcodec.Encode(fixcodec.MsgTypeLogon, seq, senderCompID, "EXCHANGE", fixedClock(), []fixcodec.Field{
		{Tag: fixcodec.TagHeartBtInt, Value: "30"},
	})
}

func TestOpenStateOnlyAcceptsLogon(t *testing.T) {
	s := New("127.0.0.1:5555", "EXCHANGE", &nullHandler{})
	s.Now = fixedClock

	heartbeat := fixcodec.Encode(fixcodec.MsgTypeHeartbeat, 1, "CLIENT1", "EXCHANGE", fixedClock(), nil)
	out, closeNow := s.Feed(heartbeat)
	if len(out) != 0 || closeNow {
		t.Fatalf("Feed() = (%v, %v), want no reply and no close for pre-logon heartbeat", out, closeNow)
	}
	if s.State() != StateOpen {
		t.Fatalf("state = %v, want Open", s.State())
	}
}

func TestLogonTransitionsToLoggedInAndEchoesHeartBtInt(t *testing.T) {
	s := New("127.0.0.1:5555", "EXCHANGE", &nullHandler{})
	s.Now = fixedClock

	out, closeNow := s.Feed(logonBytes(1, "CLIENT1"))
	if closeNow {
		t.Fatalf("Feed() closeNow = true, want false")
	}
	if s.State() != StateLoggedIn {
		t.Fatalf("state = %v, want LoggedIn", s.State())
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	reply := fixcodec.Decode(out[0])
	if reply.MsgType() != fixcodec.MsgTypeLogon {
		t.Fatalf("reply MsgType = %q, want %q", reply.MsgType(), fixcodec.MsgTypeLogon)
	}
	if v := reply.GetString(fixcodec.TagHeartBtInt); v != "30" {
		t.Fatalf("reply HeartBtInt = %q, want 30", v)
	}
}

func TestHeartbeatEchoesTestReqID(t *testing.T) {
	s := New("127.0.0.1:5555", "EXCHANGE", &nullHandler{})
	s.Now = fixedClock
	s.Feed(logonBytes(1, "CLIENT1"))

	hb := fixcodec.Encode(fixcodec.MsgTypeHeartbeat, 2, "CLIENT1", "EXCHANGE", fixedClock(), []fixcodec.Field{
		{Tag: fixcodec.TagTestReqID, Value: "TEST-1"},
	})
	out, closeNow := s.Feed(hb)
	if closeNow {
		t.Fatalf("closeNow = true, want false")
	}
	reply := fixcodec.Decode(out[0])
	if v := reply.GetString(fixcodec.TagTestReqID); v != "TEST-1" {
		t.Fatalf("reply TestReqID = %q, want TEST-1", v)
	}
}

func TestLogoutTransitionsToClosing(t *testing.T) {
	s := New("127.0.0.1:5555", "EXCHANGE", &nullHandler{})
	s.Now = fixedClock
	s.Feed(logonBytes(1, "CLIENT1"))

	logout := fixcodec.Encode(fixcodec.MsgTypeLogout, 2, "CLIENT1", "EXCHANGE", fixedClock(), nil)
	out, closeNow := s.Feed(logout)
	if !closeNow {
		t.Fatalf("closeNow = false, want true after Logout")
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if s.State() != StateClosing {
		t.Fatalf("state = %v, want Closing", s.State())
	}
}

func TestChecksumMismatchIsSilentlyDropped(t *testing.T) {
	s := New("127.0.0.1:5555", "EXCHANGE", &nullHandler{})
	s.Now = fixedClock
	s.Feed(logonBytes(1, "CLIENT1"))

	good := fixcodec.Encode(fixcodec.MsgTypeHeartbeat, 2, "CLIENT1", "EXCHANGE", fixedClock(), nil)
	tampered := append([]byte(nil), good...)
	tampered[len(tampered)-4] = '9'
	tampered[len(tampered)-3] = '9'
	tampered[len(tampered)-2] = '9'

	out, closeNow := s.Feed(tampered)
	if closeNow {
		t.Fatalf("closeNow = true, want false (checksum mismatch is silent, not a framing error)")
	}
	if len(out) != 0 {
		t.Fatalf("len(out) = %d, want 0 for checksum-mismatched message", len(out))
	}

	// subsequent valid messages on the same session still work (S6).
	out2, _ := s.Feed(fixcodec.Encode(fixcodec.MsgTypeHeartbeat, 3, "CLIENT1", "EXCHANGE", fixedClock(), nil))
	if len(out2) != 1 {
		t.Fatalf("len(out2) = %d, want 1 for a valid follow-up message", len(out2))
	}
}

func TestMalformedFramingClosesSession(t *testing.T) {
	s := New("127.0.0.1:5555", "EXCHANGE", &nullHandler{})
	out, closeNow := s.Feed([]byte("not a fix message at all"))
	if !closeNow {
		t.Fatalf("closeNow = false, want true for malformed framing")
	}
	if len(out) != 0 {
		t.Fatalf("len(out) = %d, want 0", len(out))
	}
}

func TestIncompleteMessageWaitsForMoreBytes(t *testing.T) {
	s := New("127.0.0.1:5555", "EXCHANGE", &nullHandler{})
	s.Now = fixedClock
	full := logonBytes(1, "CLIENT1")

	out, closeNow := s.Feed(full[:len(full)-3])
	if closeNow || len(out) != 0 {
		t.Fatalf("Feed(partial) = (%v, %v), want no reply, no close", out, closeNow)
	}

	out, closeNow = s.Feed(full[len(full)-3:])
	if closeNow || len(out) != 1 {
		t.Fatalf("Feed(rest) = (%v, %v), want one reply", out, closeNow)
	}
}

func TestNewOrderDispatchesToHandler(t *testing.T) {
	handler := &nullHandler{}
	s := New("127.0.0.1:5555", "EXCHANGE", handler)
	s.Now = fixedClock
	s.Feed(logonBytes(1, "CLIENT1"))

	order := fixcodec.Encode(fixcodec.MsgTypeNewOrderSingle, 2, "CLIENT1", "EXCHANGE", fixedClock(), []fixcodec.Field{
		{Tag: fixcodec.TagClOrdID, Value: "ord1"},
		{Tag: fixcodec.TagSymbol, Value: "AAPL"},
	})
	s.Feed(order)

	if handler.newOrderCalls != 1 {
		t.Fatalf("newOrderCalls = %d, want 1", handler.newOrderCalls)
	}
}
