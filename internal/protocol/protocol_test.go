package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkv/driftkv/internal/buckettype"
	"github.com/driftkv/driftkv/internal/enumerator"
	"github.com/driftkv/driftkv/internal/metadata"
	"github.com/driftkv/driftkv/internal/stream"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	body, err := json.Marshal(ListKeysRequest{Bucket: "logs"})
	require.NoError(t, err)
	require.NoError(t, WriteFrame(&buf, MsgListKeysReq, body))

	code, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgListKeysReq, code)
	assert.Equal(t, body, payload)
}

func TestFrameEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, MsgDoneResp, nil))

	code, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgDoneResp, code)
	assert.Empty(t, payload)
}

func TestFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, MsgKeysResp, make([]byte, maxFrameSize))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	// Oversized length prefix on read
	buf.Reset()
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, _, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrameRejectsZeroLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
	_, _, err := ReadFrame(buf)
	assert.Error(t, err)
}

func newTestProtocolServer(t *testing.T) (*Server, metadata.RawKV) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := metadata.NewBadgerStore(metadata.BadgerOptions{
		DataDir: t.TempDir(),
		Logger:  logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	resolver := buckettype.NewResolver(store)
	local := enumerator.NewLocal(store, 10, logger)
	manager := stream.NewManager(resolver, local, nil)

	return NewServer(manager, nil, 30*time.Second), store
}

func seedKeys(t *testing.T, kv metadata.RawKV, ref buckettype.BucketRef, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%03d", i)
		require.NoError(t, enumerator.Seed(context.Background(), kv, ref, key, []byte("v")))
	}
}

// dial runs the server side of a pipe and returns the client conn.
func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go s.HandleConn(ctx, server)
	t.Cleanup(func() {
		cancel()
		client.Close()
	})
	return client
}

func sendRequest(t *testing.T, conn net.Conn, code byte, req interface{}) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, WriteFrame(conn, code, body))
}

// readStream reads frames until a terminal frame and returns the collected
// items with the terminal code and error reason.
func readStream(t *testing.T, conn net.Conn) ([]string, byte, string) {
	t.Helper()

	var items []string
	for {
		code, body, err := ReadFrame(conn)
		require.NoError(t, err)

		switch code {
		case MsgKeysResp:
			var resp KeysResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			items = append(items, resp.Keys...)
		case MsgBucketsResp:
			var resp BucketsResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			items = append(items, resp.Buckets...)
		case MsgDoneResp:
			return items, code, ""
		case MsgErrorResp:
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			return items, code, resp.Error
		default:
			t.Fatalf("unexpected frame code 0x%02x", code)
		}
	}
}

func TestProtocolListKeys(t *testing.T) {
	s, kv := newTestProtocolServer(t)
	seedKeys(t, kv, buckettype.BucketRef{Type: "default", Bucket: "logs"}, 25)

	conn := dial(t, s)
	sendRequest(t, conn, MsgListKeysReq, ListKeysRequest{Bucket: "logs"})

	keys, terminal, _ := readStream(t, conn)
	assert.Equal(t, MsgDoneResp, terminal)
	assert.Len(t, keys, 25)
	assert.Equal(t, "key-000", keys[0])
	assert.Equal(t, "key-024", keys[24])
}

func TestProtocolUnknownTypeKeepsConnection(t *testing.T) {
	s, kv := newTestProtocolServer(t)
	seedKeys(t, kv, buckettype.BucketRef{Type: "default", Bucket: "logs"}, 3)

	conn := dial(t, s)

	sendRequest(t, conn, MsgListKeysReq, ListKeysRequest{Type: "missing", Bucket: "logs"})
	_, terminal, reason := readStream(t, conn)
	assert.Equal(t, MsgErrorResp, terminal)
	assert.Contains(t, reason, "no such bucket type")

	// The rejection did not poison the connection
	sendRequest(t, conn, MsgListKeysReq, ListKeysRequest{Bucket: "logs"})
	keys, terminal, _ := readStream(t, conn)
	assert.Equal(t, MsgDoneResp, terminal)
	assert.Len(t, keys, 3)
}

func TestProtocolListBucketsFastPath(t *testing.T) {
	s, kv := newTestProtocolServer(t)
	seedKeys(t, kv, buckettype.BucketRef{Type: "default", Bucket: "alpha"}, 1)
	seedKeys(t, kv, buckettype.BucketRef{Type: "default", Bucket: "beta"}, 1)

	conn := dial(t, s)
	sendRequest(t, conn, MsgListBucketsReq, ListBucketsRequest{})

	buckets, terminal, _ := readStream(t, conn)
	assert.Equal(t, MsgDoneResp, terminal)
	assert.Equal(t, []string{"alpha", "beta"}, buckets)
}

func TestProtocolListBucketsStreaming(t *testing.T) {
	s, kv := newTestProtocolServer(t)
	seedKeys(t, kv, buckettype.BucketRef{Type: "default", Bucket: "alpha"}, 1)
	seedKeys(t, kv, buckettype.BucketRef{Type: "default", Bucket: "beta"}, 1)

	conn := dial(t, s)
	sendRequest(t, conn, MsgListBucketsReq, ListBucketsRequest{Stream: true})

	buckets, terminal, _ := readStream(t, conn)
	assert.Equal(t, MsgDoneResp, terminal)
	assert.Equal(t, []string{"alpha", "beta"}, buckets)
}

func TestProtocolUnknownCode(t *testing.T) {
	s, _ := newTestProtocolServer(t)

	conn := dial(t, s)
	require.NoError(t, WriteFrame(conn, 0x7E, nil))

	code, body, err := ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, MsgErrorResp, code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Contains(t, resp.Error, "unknown message code")
}

func TestProtocolMalformedRequest(t *testing.T) {
	s, _ := newTestProtocolServer(t)

	conn := dial(t, s)
	require.NoError(t, WriteFrame(conn, MsgListKeysReq, []byte("{not json")))

	_, _, reason := readStream(t, conn)
	assert.Contains(t, reason, "malformed")
}
