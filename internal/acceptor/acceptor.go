// Package acceptor implements component C5: a single listening socket
// that spawns one session worker per accepted connection and then
// forgets it. The acceptor never blocks on session duration, and
// session workers never call back into the acceptor.
package acceptor

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/Demiserular/crucible-exchange/internal/session"
)

// Logger is the narrow slice of structured logging the acceptor needs,
// satisfied by *zap.SugaredLogger.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infow(string, ...interface{})  {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}

// SessionFactory builds a fresh Session for an accepted connection's
// remote address. One is produced per connection so the dispatcher's
// handlers stay bound to this one socket.
type SessionFactory func(peerAddr string) *session.Session

// Acceptor owns the listening socket.
type Acceptor struct {
	ListenAddr  string
	ReadTimeout time.Duration
	NewSession  SessionFactory
	Log         Logger
}

// New builds an Acceptor. A nil logger installs a no-op.
func New(listenAddr string, readTimeout time.Duration, factory SessionFactory, log Logger) *Acceptor {
	if log == nil {
		log = noopLogger{}
	}
	return &Acceptor{ListenAddr: listenAddr, ReadTimeout: readTimeout, NewSession: factory, Log: log}
}

// listenConfig enables SO_REUSEADDR so a restarted exchange can rebind
// the port immediately, without waiting out TIME_WAIT.
var listenConfig = net.ListenConfig{
	Control: func(network, address string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	},
}

// Run listens on ListenAddr and accepts connections until ctx is
// canceled. Each accepted connection gets its own goroutine; Run
// itself returns only on listen failure or context cancellation.
func (a *Acceptor) Run(ctx context.Context) error {
	lc := listenConfig
	listener, err := lc.Listen(ctx, "tcp", a.ListenAddr)
	if err != nil {
		return err
	}
	a.Log.Infow("listening", "addr", a.ListenAddr)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				a.Log.Errorw("accept failed", "err", err)
				return err
			}
		}
		go a.serve(conn)
	}
}

func (a *Acceptor) serve(conn net.Conn) {
	defer conn.Close()

	peerAddr := conn.RemoteAddr().String()
	sess := a.NewSession(peerAddr)
	a.Log.Infow("session accepted", "peer", peerAddr)

	buf := make([]byte, 4096)
	for {
		if a.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(a.ReadTimeout))
		}

		n, err := conn.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			a.Log.Infow("session disconnected", "peer", peerAddr, "err", err)
			return
		}

		outbound, shouldClose := sess.Feed(buf[:n])
		for _, msg := range outbound {
			if _, err := conn.Write(msg); err != nil {
				a.Log.Warnw("write failed", "peer", peerAddr, "err", err)
				return
			}
		}
		if shouldClose {
			return
		}
	}
}
