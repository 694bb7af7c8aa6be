package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/Demiserular/crucible-exchange/internal/matching"
)

// Logger is the narrow slice of structured logging the sink needs,
// satisfied by *zap.SugaredLogger.
type Logger interface {
	Warnw(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warnw(string, ...interface{}) {}

// queueDepth bounds how far the sink's writer goroutine can lag behind
// the book-mutation thread before a save is dropped rather than block
// matching.
const queueDepth = 4096

type saveJob struct {
	order *matching.Order
	exec  *matching.Execution
}

// PebbleSink persists orders and executions to an embedded pebble
// store, keyed so repeated saves of the same order upsert in place.
// Writes happen off a single background goroutine so SaveOrder and
// SaveExecution never block the caller; a full queue drops the write
// and logs it — a PersistFailure is never client-visible.
type PebbleSink struct {
	db    *pebble.DB
	queue chan saveJob
	done  chan struct{}
	log   Logger
}

// NewPebbleSink opens (or creates) the pebble store at path.
func NewPebbleSink(path string, log Logger) (*PebbleSink, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	if log == nil {
		log = noopLogger{}
	}

	s := &PebbleSink{
		db:    db,
		queue: make(chan saveJob, queueDepth),
		done:  make(chan struct{}),
		log:   log,
	}
	go s.run()
	return s, nil
}

func orderKey(orderID uint64) []byte {
	return []byte(fmt.Sprintf("o:%020d", orderID))
}

func executionKey(execID uint64) []byte {
	return []byte(fmt.Sprintf("e:%020d", execID))
}

// SaveOrder enqueues an idempotent upsert keyed on order_id. Never
// blocks: a full queue drops the write.
func (s *PebbleSink) SaveOrder(order matching.Order) {
	select {
	case s.queue <- saveJob{order: &order}:
	default:
		s.log.Warnw("persistence queue full, dropping order save", "order_id", order.OrderID)
	}
}

// SaveExecution enqueues an append-only write keyed on exec_id.
func (s *PebbleSink) SaveExecution(exec matching.Execution) {
	select {
	case s.queue <- saveJob{exec: &exec}:
	default:
		s.log.Warnw("persistence queue full, dropping execution save", "exec_id", exec.ExecID)
	}
}

func (s *PebbleSink) run() {
	defer close(s.done)
	for job := range s.queue {
		if job.order != nil {
			s.writeOrder(*job.order)
		}
		if job.exec != nil {
			s.writeExecution(*job.exec)
		}
	}
}

func (s *PebbleSink) writeOrder(order matching.Order) {
	data, err := json.Marshal(order)
	if err != nil {
		s.log.Warnw("marshal order failed", "order_id", order.OrderID, "err", err)
		return
	}
	if err := s.db.Set(orderKey(order.OrderID), data, pebble.NoSync); err != nil {
		s.log.Warnw("persist order failed", "order_id", order.OrderID, "err", err)
	}
}

func (s *PebbleSink) writeExecution(exec matching.Execution) {
	data, err := json.Marshal(exec)
	if err != nil {
		s.log.Warnw("marshal execution failed", "exec_id", exec.ExecID, "err", err)
		return
	}
	if err := s.db.Set(executionKey(exec.ExecID), data, pebble.NoSync); err != nil {
		s.log.Warnw("persist execution failed", "exec_id", exec.ExecID, "err", err)
	}
}

// Close drains the queue and closes the underlying store.
func (s *PebbleSink) Close() error {
	close(s.queue)
	<-s.done
	return s.db.Close()
}

var _ Sink = (*PebbleSink)(nil)
