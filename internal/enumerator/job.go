package enumerator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftkv/driftkv/internal/stream"
)

// terminalDeliveryTimeout bounds how long a finished job waits for the
// session to drain its terminal message before giving up. A session that
// stopped consuming has already cancelled or failed.
const terminalDeliveryTimeout = 30 * time.Second

// job tracks one running enumeration: its token, its delivery channel, and
// the single-permit flow-control gate shared by all engines.
type job struct {
	token stream.Token
	sink  chan<- stream.Msg
	acks  chan struct{}
}

func newJob(token stream.Token, sink chan<- stream.Msg) *job {
	return &job{
		token: token,
		sink:  sink,
		acks:  make(chan struct{}, 1),
	}
}

// emitBatch delivers one page of items and blocks until the session releases
// the attached ack handle. Returns false when ctx ends first.
func (j *job) emitBatch(ctx context.Context, items []string) bool {
	ack := stream.NewAckHandle(func() {
		select {
		case j.acks <- struct{}{}:
		default:
		}
	})

	select {
	case j.sink <- stream.Batch{Token: j.token, Items: items, Ack: ack}:
	case <-ctx.Done():
		return false
	}

	select {
	case <-j.acks:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish delivers the Done terminal.
func (j *job) finish() {
	j.deliverTerminal(stream.Done{Token: j.token})
}

// fail delivers an Err terminal.
func (j *job) fail(reason string) {
	j.deliverTerminal(stream.Err{Token: j.token, Reason: reason})
}

func (j *job) deliverTerminal(msg stream.Msg) {
	select {
	case j.sink <- msg:
	case <-time.After(terminalDeliveryTimeout):
		logrus.WithField("token", string(j.token)).
			Debug("Terminal message dropped; session stopped consuming")
	}
}

// registry maps tokens of running jobs to their cancel functions, backing the
// best-effort Cancel surface of every engine.
type registry struct {
	mu      sync.Mutex
	cancels map[stream.Token]context.CancelFunc
}

func newRegistry() *registry {
	return &registry{cancels: make(map[stream.Token]context.CancelFunc)}
}

func (r *registry) add(token stream.Token, cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancels[token] = cancel
	r.mu.Unlock()
}

func (r *registry) remove(token stream.Token) {
	r.mu.Lock()
	cancel, ok := r.cancels[token]
	delete(r.cancels, token)
	r.mu.Unlock()
	if ok {
		cancel() // release the deadline timer
	}
}

func (r *registry) cancel(token stream.Token) {
	r.mu.Lock()
	cancel, ok := r.cancels[token]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}
