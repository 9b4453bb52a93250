package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/driftkv/driftkv/internal/metrics"
)

// State is the lifecycle position of a session.
type State int

const (
	// Idle: created, no enumeration started.
	Idle State = iota
	// Streaming: token assigned, consuming enumerator messages.
	Streaming
	// Completed: closed by a Done message. Absorbing.
	Completed
	// Failed: closed by an error, malformed message, or cancellation. Absorbing.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrAlreadyStarted is returned by Start on a session that left Idle.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNotStarted is returned by Run on a session that never started.
	ErrNotStarted = errors.New("session not started")
)

// Session owns one enumeration: the token, the immutable request, and the
// mapping from inbound enumerator messages to transport actions. A session is
// confined to the connection handler that created it and needs no locking.
type Session struct {
	enum Enumerator
	mtr  *metrics.Streaming

	token Token
	req   Request
	state State
	msgs  chan Msg
}

// NewSession creates an idle session bound to an enumerator. mtr may be nil
// (no instrumentation).
func NewSession(enum Enumerator, mtr *metrics.Streaming) *Session {
	return &Session{
		enum:  enum,
		mtr:   mtr,
		state: Idle,
		// One buffered slot: the ack-gated producer has at most one message
		// in flight beyond the one being handled.
		msgs: make(chan Msg, 1),
	}
}

// Token returns the correlation token, or "" before Start.
func (s *Session) Token() Token { return s.token }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Closed reports whether a terminal action has been produced.
func (s *Session) Closed() bool {
	return s.state == Completed || s.state == Failed
}

// Start begins the enumeration and moves the session to Streaming. It is
// valid only from Idle. On success the returned action is the StreamHandle
// the transport answers the client with.
func (s *Session) Start(ctx context.Context, req Request) (Action, error) {
	if s.state != Idle {
		return NoOp{}, ErrAlreadyStarted
	}

	token, err := s.enum.Start(ctx, req, s.msgs)
	if err != nil {
		return NoOp{}, fmt.Errorf("failed to start enumeration: %w", err)
	}

	s.token = token
	s.req = req
	s.state = Streaming

	if s.mtr != nil {
		s.mtr.SessionsStarted.WithLabelValues(req.Kind.String()).Inc()
		s.mtr.ActiveSessions.Inc()
	}

	logrus.WithFields(logrus.Fields{
		"token":   string(token),
		"kind":    req.Kind.String(),
		"ref":     req.Ref.String(),
		"timeout": req.Timeout,
	}).Debug("Listing session started")

	return StreamHandle{Token: token}, nil
}

// Handle applies one inbound message and returns the transport action.
//
// Classification, in order: messages for a foreign token or a closed session
// are dropped (NoOp); Done closes the session successfully; a batch first
// releases its ack handle (even when empty, since the ack is the producer's
// only permission to advance) and then emits its items, if any; an error or an
// unrecognized message type closes the session as failed. Terminal states are
// absorbing: at most one terminal action is ever produced.
func (s *Session) Handle(msg Msg) Action {
	if s.state != Streaming || msg.MsgToken() != s.token {
		if s.mtr != nil {
			s.mtr.StaleDropped.Inc()
		}
		return NoOp{}
	}

	switch m := msg.(type) {
	case Done:
		s.close(Completed)
		return TerminalSuccess{}

	case Batch:
		if m.Ack != nil {
			s.enum.Ack(m.Ack)
			if s.mtr != nil {
				s.mtr.AcksIssued.Inc()
			}
		}
		if len(m.Items) == 0 {
			return NoOp{}
		}
		if s.mtr != nil {
			kind := s.req.Kind.String()
			s.mtr.BatchesEmitted.WithLabelValues(kind).Inc()
			s.mtr.ItemsEmitted.WithLabelValues(kind).Add(float64(len(m.Items)))
		}
		return BatchFrame{Items: m.Items}

	case Err:
		logrus.WithFields(logrus.Fields{
			"token":  string(s.token),
			"reason": m.Reason,
		}).Warn("Listing session failed")
		s.close(Failed)
		if s.mtr != nil {
			s.mtr.TerminalErrors.WithLabelValues(s.req.Kind.String()).Inc()
		}
		return TerminalError{Reason: m.Reason}

	default:
		// Unrecognized message under the current token: unrecoverable.
		s.close(Failed)
		if s.mtr != nil {
			s.mtr.TerminalErrors.WithLabelValues(s.req.Kind.String()).Inc()
		}
		return TerminalError{Reason: fmt.Sprintf("unexpected enumerator message %T", msg)}
	}
}

// Run pumps enumerator messages through Handle until a terminal action has
// been emitted, forwarding every non-NoOp action to emit in arrival order.
// If ctx is canceled first, the session stops consuming, cancels the
// enumeration, and emits nothing further. A failed emit (client gone) cancels
// the same way.
func (s *Session) Run(ctx context.Context, emit func(Action) error) error {
	if s.state != Streaming {
		return ErrNotStarted
	}

	for {
		select {
		case <-ctx.Done():
			s.close(Failed)
			s.enum.Cancel(s.token)
			return ctx.Err()

		case msg := <-s.msgs:
			act := s.Handle(msg)
			if _, ok := act.(NoOp); ok {
				continue
			}
			if err := s.emit(emit, act); err != nil {
				return err
			}
			if s.Closed() {
				return nil
			}
		}
	}
}

func (s *Session) emit(emit func(Action) error, act Action) error {
	if err := emit(act); err != nil {
		if !s.Closed() {
			s.close(Failed)
			s.enum.Cancel(s.token)
		}
		return fmt.Errorf("failed to forward action: %w", err)
	}
	return nil
}

func (s *Session) close(terminal State) {
	if s.Closed() {
		return
	}
	s.state = terminal
	if s.mtr != nil {
		s.mtr.ActiveSessions.Dec()
	}
}
