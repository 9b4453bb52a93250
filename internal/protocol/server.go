package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftkv/driftkv/internal/audit"
	"github.com/driftkv/driftkv/internal/buckettype"
	"github.com/driftkv/driftkv/internal/stream"
)

// Server speaks the binary listing protocol: length-prefixed frames over TCP,
// one request per stream, batches delivered as they are acked. Requests on a
// connection are handled sequentially, so a slow consumer backpressures its
// own connection and nothing else.
type Server struct {
	manager        *stream.Manager
	audit          *audit.Manager
	defaultTimeout time.Duration
}

// NewServer creates a protocol server. auditManager may be nil.
func NewServer(manager *stream.Manager, auditManager *audit.Manager, defaultTimeout time.Duration) *Server {
	return &Server{
		manager:        manager,
		audit:          auditManager,
		defaultTimeout: defaultTimeout,
	}
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go s.HandleConn(ctx, conn)
	}
}

// HandleConn serves one connection: read a request frame, run it to its
// terminal frame, repeat. Exported so tests can drive it over a pipe.
func (s *Server) HandleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := logrus.WithField("remote", conn.RemoteAddr())
	log.Debug("Protocol connection opened")

	for {
		code, body, err := ReadFrame(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.WithError(err).Debug("Protocol read failed")
			}
			return
		}

		switch code {
		case MsgListKeysReq:
			err = s.serveListKeys(ctx, conn, body)
		case MsgListBucketsReq:
			err = s.serveListBuckets(ctx, conn, body)
		default:
			err = writeErrorFrame(conn, fmt.Sprintf("unknown message code 0x%02x", code))
		}
		if err != nil {
			log.WithError(err).Debug("Protocol connection failed")
			return
		}
	}
}

func (s *Server) timeout(ms int64) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return s.defaultTimeout
}

func writeErrorFrame(conn net.Conn, reason string) error {
	body, err := json.Marshal(ErrorResponse{Error: reason})
	if err != nil {
		return err
	}
	return WriteFrame(conn, MsgErrorResp, body)
}

func (s *Server) serveListKeys(ctx context.Context, conn net.Conn, body []byte) error {
	var req ListKeysRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return writeErrorFrame(conn, "malformed list-keys request")
	}

	sess, _, err := s.manager.OpenKeyStream(ctx, req.Type, req.Bucket, s.timeout(req.TimeoutMs))
	if err != nil {
		return s.writeOpenError(conn, err)
	}

	started := time.Now()
	s.audit.SessionStarted(ctx, string(sess.Token()), "keys", req.Type, req.Bucket,
		audit.TransportProtocol, conn.RemoteAddr().String())

	items, reason, err := s.runStream(ctx, conn, sess, MsgKeysResp)
	s.audit.SessionFinished(context.WithoutCancel(ctx), string(sess.Token()), "keys",
		req.Type, req.Bucket, audit.TransportProtocol, items, started, reason)
	return err
}

func (s *Server) serveListBuckets(ctx context.Context, conn net.Conn, body []byte) error {
	var req ListBucketsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return writeErrorFrame(conn, "malformed list-buckets request")
	}

	started := time.Now()

	if !req.Stream {
		names, err := s.manager.CollectBuckets(ctx, req.Type, s.timeout(req.TimeoutMs))
		if err != nil {
			return s.writeOpenError(conn, err)
		}
		s.audit.SessionFinished(ctx, "", "buckets", req.Type, "",
			audit.TransportProtocol, int64(len(names)), started, "")

		respBody, err := json.Marshal(BucketsResponse{Buckets: names})
		if err != nil {
			return err
		}
		if err := WriteFrame(conn, MsgBucketsResp, respBody); err != nil {
			return err
		}
		doneBody, _ := json.Marshal(DoneResponse{Done: true})
		return WriteFrame(conn, MsgDoneResp, doneBody)
	}

	sess, _, err := s.manager.OpenBucketStream(ctx, req.Type, s.timeout(req.TimeoutMs))
	if err != nil {
		return s.writeOpenError(conn, err)
	}

	s.audit.SessionStarted(ctx, string(sess.Token()), "buckets", req.Type, "",
		audit.TransportProtocol, conn.RemoteAddr().String())

	items, reason, err := s.runStream(ctx, conn, sess, MsgBucketsResp)
	s.audit.SessionFinished(context.WithoutCancel(ctx), string(sess.Token()), "buckets",
		req.Type, "", audit.TransportProtocol, items, started, reason)
	return err
}

// writeOpenError answers a request that failed validation or startup. The
// connection stays usable; only transport failures propagate.
func (s *Server) writeOpenError(conn net.Conn, err error) error {
	if errors.Is(err, buckettype.ErrUnknownBucketType) {
		return writeErrorFrame(conn, err.Error())
	}
	return writeErrorFrame(conn, "internal error: "+err.Error())
}

// runStream pumps a session onto the connection, one frame per action.
func (s *Server) runStream(ctx context.Context, conn net.Conn, sess *stream.Session, batchCode byte) (int64, string, error) {
	var items int64
	reason := ""

	err := sess.Run(ctx, func(act stream.Action) error {
		switch a := act.(type) {
		case stream.BatchFrame:
			items += int64(len(a.Items))
			var body []byte
			var err error
			if batchCode == MsgKeysResp {
				body, err = json.Marshal(KeysResponse{Keys: a.Items})
			} else {
				body, err = json.Marshal(BucketsResponse{Buckets: a.Items})
			}
			if err != nil {
				return err
			}
			return WriteFrame(conn, batchCode, body)

		case stream.TerminalSuccess:
			body, err := json.Marshal(DoneResponse{Done: true})
			if err != nil {
				return err
			}
			return WriteFrame(conn, MsgDoneResp, body)

		case stream.TerminalError:
			reason = a.Reason
			return writeErrorFrame(conn, a.Reason)
		}
		return nil
	})
	if err != nil && reason == "" {
		reason = "connection lost"
	}
	return items, reason, err
}
