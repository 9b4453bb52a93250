package stream

// Action is what a session instructs the transport to do next. Each transport
// adapter renders actions into its own wire form (HTTP chunk, binary frame);
// the session is agnostic to framing and encoding.
type Action interface {
	isAction()
}

// StreamHandle acknowledges a successful start; the transport replies with a
// streaming response bound to the token.
type StreamHandle struct {
	Token Token
}

// BatchFrame forwards a non-empty page of items to the client.
type BatchFrame struct {
	Items []string
}

// TerminalSuccess ends the stream with a done marker.
type TerminalSuccess struct{}

// TerminalError ends the stream with an error.
type TerminalError struct {
	Reason string
}

// NoOp emits nothing. Produced for empty batches and ignored messages.
type NoOp struct{}

func (StreamHandle) isAction()    {}
func (BatchFrame) isAction()      {}
func (TerminalSuccess) isAction() {}
func (TerminalError) isAction()   {}
func (NoOp) isAction()            {}
