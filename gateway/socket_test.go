package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/inference"
	"github.com/papercomputeco/chatgate/pkg/reply"
	"github.com/papercomputeco/chatgate/pkg/storage/inmemory"
	"github.com/papercomputeco/chatgate/pkg/thread"
)

// startServer runs a gateway on a random port and returns its address.
func startServer(t *testing.T, resolver Resolver) (*Server, string) {
	t.Helper()
	s, err := NewServer(Config{UploadDir: t.TempDir()}, inmemory.NewDriver(), resolver, zap.NewNop())
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = s.RunWithListener(listener)
	}()
	t.Cleanup(func() {
		_ = s.Shutdown()
		_ = s.Close()
	})
	return s, listener.Addr().String()
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/chat", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, frame any) map[string]string {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out map[string]string
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestSocketRoundTrip(t *testing.T) {
	s, addr := startServer(t, &echoResolver{})
	conn := dial(t, addr)

	out := exchange(t, conn, Inbound{ThreadID: "a", Content: "first"})
	assert.Equal(t, map[string]string{"threadId": "a", "reply": "re: first"}, out)

	out = exchange(t, conn, Inbound{ThreadID: "b", Content: "other thread"})
	assert.Equal(t, "b", out["threadId"])

	out = exchange(t, conn, Inbound{ThreadID: "a", Content: "second"})
	assert.Equal(t, "re: second", out["reply"])

	got, err := s.store.Get(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "first", got.Messages[0].Content)
	assert.Equal(t, "second", got.Messages[2].Content)

	resp, err := http.Get("http://" + addr + "/api/thread")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []thread.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ThreadID)
}

func TestSocketMissingThreadIDKeepsConnection(t *testing.T) {
	s, addr := startServer(t, &echoResolver{})
	conn := dial(t, addr)

	out := exchange(t, conn, map[string]string{"content": "no thread"})
	assert.Equal(t, map[string]string{"error": "Missing threadId"}, out)

	list, err := s.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	out = exchange(t, conn, Inbound{ThreadID: "t", Content: "now with one"})
	assert.Equal(t, "t", out["threadId"])
}

func TestSocketMalformedFrameKeepsConnection(t *testing.T) {
	_, addr := startServer(t, &echoResolver{})
	conn := dial(t, addr)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("[]")))

	out := exchange(t, conn, Inbound{ThreadID: "t", Content: "still open"})
	assert.Equal(t, "re: still open", out["reply"])
}

func TestSocketPhraseAndInferenceFailure(t *testing.T) {
	resolver := reply.NewResolver(
		reply.NewPhrases(reply.Phrase{Key: "Hello", Reply: "Hi from the table"}),
		inference.Unconfigured{Reason: "no backend in tests"},
		zap.NewNop(),
	)
	_, addr := startServer(t, resolver)
	conn := dial(t, addr)

	out := exchange(t, conn, Inbound{ThreadID: "t", Content: "  hELLo "})
	assert.Equal(t, "Hi from the table", out["reply"])

	out = exchange(t, conn, Inbound{ThreadID: "t", Content: "tell me a joke"})
	assert.Contains(t, out["reply"], "Sorry, I encountered an error contacting the AI service")
	assert.Contains(t, out["reply"], "no backend in tests")

	out = exchange(t, conn, Inbound{ThreadID: "t", Content: "hello"})
	assert.Equal(t, "Hi from the table", out["reply"])
}

func TestSocketDeregistersOnClose(t *testing.T) {
	s, addr := startServer(t, &echoResolver{})
	conn := dial(t, addr)
	exchange(t, conn, Inbound{ThreadID: "t", Content: "hi"})
	assert.Equal(t, 1, s.Registry().Count())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return s.Registry().Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSocketConcurrentConnectionsSameThread(t *testing.T) {
	s, addr := startServer(t, &echoResolver{})
	const (
		clients = 3
		each    = 10
	)

	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		conn := dial(t, addr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if !assert.NoError(t, conn.WriteJSON(Inbound{ThreadID: "shared", Content: "msg"})) {
					return
				}
				var out map[string]string
				_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
				if !assert.NoError(t, conn.ReadJSON(&out)) {
					return
				}
				assert.Equal(t, "shared", out["threadId"])
			}
		}()
	}
	wg.Wait()

	got, err := s.store.Get(context.Background(), "shared")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2*clients*each)
}
