package stream

import (
	"sync"

	"github.com/google/uuid"
)

// Token is an opaque, process-unique identifier correlating enumerator
// messages with the session that minted it.
type Token string

// NewToken mints a fresh session token.
func NewToken() Token {
	return Token(uuid.NewString())
}

// Msg is a message from an enumerator, tagged with a session token. Messages
// bearing a token that matches no open session are dropped without effect.
type Msg interface {
	MsgToken() Token
}

// Done signals that the enumeration finished successfully. Terminal.
type Done struct {
	Token Token
}

// Batch carries a page of result items (keys or bucket names). Items may be
// empty; Ack, when non-nil, must be released even for an empty batch or the
// producer stalls.
type Batch struct {
	Token Token
	Items []string
	Ack   *AckHandle
}

// Err signals that the enumeration failed. Terminal.
type Err struct {
	Token  Token
	Reason string
}

func (m Done) MsgToken() Token  { return m.Token }
func (m Batch) MsgToken() Token { return m.Token }
func (m Err) MsgToken() Token   { return m.Token }

// AckHandle releases one unit of producer flow control. The release fires at
// most once; duplicate Ack calls are no-ops, so a handle can be passed around
// without double-release hazards.
type AckHandle struct {
	once    sync.Once
	release func()
}

// NewAckHandle wraps an enumerator-owned release function.
func NewAckHandle(release func()) *AckHandle {
	return &AckHandle{release: release}
}

// Ack fires the release exactly once.
func (h *AckHandle) Ack() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}
