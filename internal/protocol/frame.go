package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire format: a 4-byte big-endian length followed by that many bytes, the
// first of which is the message code and the rest a JSON body. The length
// covers the code byte, so an empty body frames as length 1.
const (
	MsgListKeysReq    byte = 0x11
	MsgListBucketsReq byte = 0x12

	MsgKeysResp    byte = 0x21
	MsgBucketsResp byte = 0x22
	MsgDoneResp    byte = 0x23
	MsgErrorResp   byte = 0x2F
)

// maxFrameSize bounds inbound and outbound frames. Batches are already capped
// by the enumeration page size, so this is a sanity limit, not a tuning knob.
const maxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ListKeysRequest asks for the keys of one bucket. Type empty or "default"
// addresses the untyped namespace.
type ListKeysRequest struct {
	Type      string `json:"type,omitempty"`
	Bucket    string `json:"bucket"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

// ListBucketsRequest asks for the bucket names under one type. Stream selects
// the streaming session; otherwise the full set comes back in one frame.
type ListBucketsRequest struct {
	Type      string `json:"type,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

// KeysResponse carries one batch of keys.
type KeysResponse struct {
	Keys []string `json:"keys"`
}

// BucketsResponse carries one batch of bucket names.
type BucketsResponse struct {
	Buckets []string `json:"buckets"`
}

// DoneResponse closes a stream successfully.
type DoneResponse struct {
	Done bool `json:"done"`
}

// ErrorResponse closes a stream (or rejects a request) with a reason.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteFrame writes one frame: length, code, body.
func WriteFrame(w io.Writer, code byte, body []byte) error {
	if len(body)+1 > maxFrameSize {
		return ErrFrameTooLarge
	}

	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(body)+1))
	header[4] = code

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("failed to write frame body: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one frame and returns its code and body.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return 0, nil, errors.New("zero-length frame")
	}
	if length > maxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("failed to read frame payload: %w", err)
	}
	return payload[0], payload[1:], nil
}
