package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/driftkv/driftkv/internal/audit"
	"github.com/driftkv/driftkv/internal/buckettype"
	"github.com/driftkv/driftkv/internal/stream"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestTimeout reads the ?timeout= query parameter (seconds) and falls back
// to the configured default.
func (s *Server) requestTimeout(r *http.Request) time.Duration {
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return s.defaultTimeout()
}

// handleListKeys serves GET /types/{type}/buckets/{bucket}/keys and the
// legacy untyped GET /buckets/{bucket}/keys.
//
// keys=stream (default) delivers results as chunked JSON lines; keys=true
// aggregates the whole listing into a single document. Both forms are driven
// by the same session, so flow control and terminal semantics are identical.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	typeName := vars["type"]
	bucket := vars["bucket"]
	timeout := s.requestTimeout(r)

	sess, act, err := s.sessionManager.OpenKeyStream(r.Context(), typeName, bucket, timeout)
	if err != nil {
		s.writeOpenError(w, err)
		return
	}
	handle := act.(stream.StreamHandle)

	started := time.Now()
	s.auditManager.SessionStarted(r.Context(), string(handle.Token), "keys", typeName, bucket,
		audit.TransportHTTP, r.RemoteAddr)

	if r.URL.Query().Get("keys") == "true" {
		s.aggregateListing(w, r, sess, "keys", typeName, bucket, started)
		return
	}
	s.streamListing(w, r, sess, "keys", typeName, bucket, started)
}

// handleListBuckets serves GET /types/{type}/buckets and the legacy untyped
// GET /buckets.
//
// buckets=stream opens a streaming session; any other form takes the
// non-streaming fast path and returns the full name set in one document.
func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	typeName := vars["type"]
	timeout := s.requestTimeout(r)

	if r.URL.Query().Get("buckets") != "stream" {
		started := time.Now()
		names, err := s.sessionManager.CollectBuckets(r.Context(), typeName, timeout)
		if err != nil {
			s.writeOpenError(w, err)
			return
		}
		s.auditManager.SessionFinished(r.Context(), "", "buckets", typeName, "",
			audit.TransportHTTP, int64(len(names)), started, "")
		writeJSON(w, http.StatusOK, map[string][]string{"buckets": names})
		return
	}

	sess, act, err := s.sessionManager.OpenBucketStream(r.Context(), typeName, timeout)
	if err != nil {
		s.writeOpenError(w, err)
		return
	}
	handle := act.(stream.StreamHandle)

	started := time.Now()
	s.auditManager.SessionStarted(r.Context(), string(handle.Token), "buckets", typeName, "",
		audit.TransportHTTP, r.RemoteAddr)

	s.streamListing(w, r, sess, "buckets", typeName, "", started)
}

func (s *Server) writeOpenError(w http.ResponseWriter, err error) {
	if errors.Is(err, buckettype.ErrUnknownBucketType) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// streamListing drives a session over a chunked HTTP response. Each batch is
// one JSON line ({"keys":[...]} or {"buckets":[...]}), followed by exactly one
// terminal line: {"done":true} on success or {"error":"..."} on failure.
func (s *Server) streamListing(w http.ResponseWriter, r *http.Request, sess *stream.Session, field, typeName, bucket string, started time.Time) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	var items int64
	reason := ""

	err := sess.Run(r.Context(), func(act stream.Action) error {
		var chunk interface{}
		switch a := act.(type) {
		case stream.BatchFrame:
			items += int64(len(a.Items))
			chunk = map[string][]string{field: a.Items}
		case stream.TerminalSuccess:
			chunk = map[string]bool{"done": true}
		case stream.TerminalError:
			reason = a.Reason
			chunk = map[string]string{"error": a.Reason}
		default:
			return nil
		}
		if err := enc.Encode(chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		// Client gone or request context canceled; nothing more to send.
		logrus.WithError(err).Debug("Listing stream ended early")
		if reason == "" {
			reason = "client disconnected"
		}
	}

	// The request context may already be canceled here; the audit write must
	// still land.
	s.auditManager.SessionFinished(context.WithoutCancel(r.Context()), string(sess.Token()),
		field, typeName, bucket, audit.TransportHTTP, items, started, reason)
}

// aggregateListing drives a session to completion and answers with a single
// JSON document. A terminal error surfaces as a 500 since nothing has been
// written yet.
func (s *Server) aggregateListing(w http.ResponseWriter, r *http.Request, sess *stream.Session, field, typeName, bucket string, started time.Time) {
	all := []string{}
	reason := ""

	err := sess.Run(r.Context(), func(act stream.Action) error {
		switch a := act.(type) {
		case stream.BatchFrame:
			all = append(all, a.Items...)
		case stream.TerminalError:
			reason = a.Reason
		}
		return nil
	})

	s.auditManager.SessionFinished(context.WithoutCancel(r.Context()), string(sess.Token()),
		field, typeName, bucket, audit.TransportHTTP, int64(len(all)), started, reason)

	switch {
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case reason != "":
		writeError(w, http.StatusInternalServerError, reason)
	default:
		writeJSON(w, http.StatusOK, map[string][]string{field: all})
	}
}
