// Package session implements the per-connection state machine and
// buffered decoder (component C3): logon/heartbeat/logout handshake
// sitting on top of the codec, one instance per accepted connection.
// Feed is pure of I/O — it returns the bytes to write, the caller owns
// the socket.
package session

import (
	"time"

	"github.com/Demiserular/crucible-exchange/internal/fixcodec"
)

// State is the session's position in its Open → LoggedIn → Closing
// lifecycle.
type State int

const (
	StateOpen State = iota
	StateLoggedIn
	StateClosing
)

// OrderHandler is the business-layer callback for the two message
// types a session cannot answer by itself: new orders and cancels. The
// dispatcher (C4) implements this; session (C3) only knows the shape.
type OrderHandler interface {
	HandleNewOrder(sess *Session, msg *fixcodec.Message) [][]byte
	HandleCancel(sess *Session, msg *fixcodec.Message) [][]byte
}

// Logger is the narrow slice of structured logging session needs,
// satisfied by *zap.SugaredLogger.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Warnw(string, ...interface{})  {}

// Session holds everything the spec's Data Model assigns to a
// connection: peer address, logged-in state, decode buffer, outbound
// sequence.
type Session struct {
	PeerAddr string

	state       State
	buf         []byte
	outboundSeq int

	// LocalCompID is this exchange's own SenderCompID on outbound
	// messages. PeerCompID is the client's, captured from tag 49 on
	// Logon and echoed back as our outbound TargetCompID.
	LocalCompID string
	PeerCompID  string

	Handler OrderHandler
	Log     Logger

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// New creates a session in the Open state for a freshly accepted
// connection.
func New(peerAddr, localCompID string, handler OrderHandler) *Session {
	return &Session{
		PeerAddr:    peerAddr,
		state:       StateOpen,
		outboundSeq: 1,
		LocalCompID: localCompID,
		Handler:     handler,
		Log:         noopLogger{},
		Now:         time.Now,
	}
}

// State reports the session's current lifecycle position.
func (s *Session) State() State { return s.state }

// Feed appends newly read bytes to the decode buffer, frames and
// decodes every complete message it can, and returns the bytes to
// write back plus whether the caller should now close the socket.
func (s *Session) Feed(data []byte) (outbound [][]byte, shouldClose bool) {
	s.buf = append(s.buf, data...)

	for {
		frame, consumed, err := fixcodec.FrameNext(s.buf)
		if err != nil {
			s.Log.Warnw("malformed framing, closing session", "peer", s.PeerAddr, "err", err)
			return outbound, true
		}
		if frame == nil {
			break
		}
		s.buf = s.buf[consumed:]

		out, closeNow := s.handleFrame(frame)
		outbound = append(outbound, out...)
		if closeNow {
			return outbound, true
		}
	}

	return outbound, false
}

func (s *Session) handleFrame(frame []byte) (out [][]byte, shouldClose bool) {
	msg := fixcodec.Decode(frame)

	if err := fixcodec.Validate(msg); err != nil {
		s.Log.Debugw("dropping invalid message", "peer", s.PeerAddr, "err", err)
		return nil, false
	}

	msgType := msg.MsgType()

	switch s.state {
	case StateOpen:
		if msgType != fixcodec.MsgTypeLogon {
			s.Log.Debugw("dropping non-logon message before logon", "peer", s.PeerAddr, "msg_type", msgType)
			return nil, false
		}
		return s.handleLogon(msg), false

	case StateLoggedIn:
		switch msgType {
		case fixcodec.MsgTypeHeartbeat:
			return s.handleHeartbeat(msg), false
		case fixcodec.MsgTypeNewOrderSingle:
			if s.Handler == nil {
				return nil, false
			}
			return s.Handler.HandleNewOrder(s, msg), false
		case fixcodec.MsgTypeOrderCancelReq:
			if s.Handler == nil {
				return nil, false
			}
			return s.Handler.HandleCancel(s, msg), false
		case fixcodec.MsgTypeLogout:
			reply := s.handleLogout(msg)
			s.state = StateClosing
			return reply, true
		default:
			s.Log.Debugw("dropping unknown message type", "peer", s.PeerAddr, "msg_type", msgType)
			return nil, false
		}

	default: // StateClosing
		return nil, false
	}
}

func (s *Session) handleLogon(msg *fixcodec.Message) [][]byte {
	s.PeerCompID = msg.GetString(fixcodec.TagSenderCompID)
	s.state = StateLoggedIn

	body := []fixcodec.Field{}
	if hb, ok := msg.Get(fixcodec.TagHeartBtInt); ok {
		body = append(body, fixcodec.Field{Tag: fixcodec.TagHeartBtInt, Value: hb})
	}

	return [][]byte{s.encode(fixcodec.MsgTypeLogon, body)}
}

func (s *Session) handleHeartbeat(msg *fixcodec.Message) [][]byte {
	body := []fixcodec.Field{}
	if testReqID, ok := msg.Get(fixcodec.TagTestReqID); ok {
		body = append(body, fixcodec.Field{Tag: fixcodec.TagTestReqID, Value: testReqID})
	}
	return [][]byte{s.encode(fixcodec.MsgTypeHeartbeat, body)}
}

func (s *Session) handleLogout(msg *fixcodec.Message) [][]byte {
	return [][]byte{s.encode(fixcodec.MsgTypeLogout, nil)}
}

// Encode builds one outbound message stamped with this session's
// SenderCompID/TargetCompID pairing and the next outbound sequence
// number. Exported so the dispatcher can build execution reports
// through the same session that will carry them.
func (s *Session) Encode(msgType string, body []fixcodec.Field) []byte {
	return s.encode(msgType, body)
}

func (s *Session) encode(msgType string, body []fixcodec.Field) []byte {
	raw := fixcodec.Encode(msgType, s.outboundSeq, s.LocalCompID, s.PeerCompID, s.Now(), body)
	s.outboundSeq++
	return raw
}
