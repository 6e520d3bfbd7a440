package collabchannel

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaakkos/synapse/internal/crdt"
	"github.com/jaakkos/synapse/internal/docsession"
)

func newTestHub(t *testing.T) (*docsession.Manager, string) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	mgr := docsession.NewManager(func() time.Duration { return time.Minute }, logger)
	h := NewHandler(mgr, logger)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return mgr, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readEnvelope reads text frames until one arrives (skipping binary).
func readEnvelope(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		kind, data, err := ws.ReadMessage()
		require.NoError(t, err)
		if kind != websocket.TextMessage {
			continue
		}
		var env map[string]any
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	}
}

func readBinary(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		kind, data, err := ws.ReadMessage()
		require.NoError(t, err)
		if kind == websocket.BinaryMessage {
			return data
		}
	}
}

func sendJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

func snapshotBytes(t *testing.T, env map[string]any) []byte {
	t.Helper()
	raw, ok := env["snapshot"].([]any)
	require.True(t, ok, "sync envelope missing snapshot")
	data := make([]byte, len(raw))
	for i, v := range raw {
		data[i] = byte(v.(float64))
	}
	return data
}

func TestJoinUnknownDocEmitsError(t *testing.T) {
	_, url := newTestHub(t)
	ws := dial(t, url)

	sendJSON(t, ws, map[string]any{"type": "join", "path": "missing.ts", "agentId": "a1"})
	env := readEnvelope(t, ws)
	assert.Equal(t, "error", env["type"])
	assert.Contains(t, env["message"], "missing.ts")
}

func TestJoinWithoutPathEmitsError(t *testing.T) {
	_, url := newTestHub(t)
	ws := dial(t, url)

	sendJSON(t, ws, map[string]any{"type": "join"})
	env := readEnvelope(t, ws)
	assert.Equal(t, "error", env["type"])
}

func TestUnknownTypeEmitsError(t *testing.T) {
	_, url := newTestHub(t)
	ws := dial(t, url)

	sendJSON(t, ws, map[string]any{"type": "bogus"})
	env := readEnvelope(t, ws)
	assert.Equal(t, "error", env["type"])
	assert.Contains(t, env["message"], "Unknown message type: bogus")
}

func TestJoinSyncAndAwareness(t *testing.T) {
	mgr, url := newTestHub(t)
	mgr.Create("hello.ts", "init")

	ws1 := dial(t, url)
	sendJSON(t, ws1, map[string]any{"type": "join", "path": "hello.ts", "agentId": "a1", "name": "Alice", "role": "backend"})

	sync1 := readEnvelope(t, ws1)
	require.Equal(t, "sync", sync1["type"])

	// Snapshot reconstructs the initial text on a fresh replica.
	update, err := crdt.DecodeUpdate(snapshotBytes(t, sync1))
	require.NoError(t, err)
	replica := crdt.NewDoc("a1")
	require.NoError(t, replica.Apply(update))
	assert.Equal(t, "init", replica.Text())

	aw1 := readEnvelope(t, ws1)
	assert.Equal(t, "awareness", aw1["type"])

	ws2 := dial(t, url)
	sendJSON(t, ws2, map[string]any{"type": "join", "path": "hello.ts", "agentId": "a2", "name": "Bob", "role": "frontend"})
	sync2 := readEnvelope(t, ws2)
	require.Equal(t, "sync", sync2["type"])

	aw2 := readEnvelope(t, ws2)
	require.Equal(t, "awareness", aw2["type"])
	assert.Len(t, aw2["editors"], 2, "second joiner sees both editors")
}

func TestBinaryUpdateRelayedToPeer(t *testing.T) {
	mgr, url := newTestHub(t)
	mgr.Create("hello.ts", "init")

	ws1 := dial(t, url)
	sendJSON(t, ws1, map[string]any{"type": "join", "path": "hello.ts", "agentId": "a1"})
	sync1 := readEnvelope(t, ws1)
	require.Equal(t, "sync", sync1["type"])
	readEnvelope(t, ws1) // own awareness

	ws2 := dial(t, url)
	sendJSON(t, ws2, map[string]any{"type": "join", "path": "hello.ts", "agentId": "a2"})
	sync2 := readEnvelope(t, ws2)
	require.Equal(t, "sync", sync2["type"])

	// a1 builds a replica from its snapshot and inserts "X" at index 0.
	replica1 := crdt.NewDoc("a1")
	u, err := crdt.DecodeUpdate(snapshotBytes(t, sync1))
	require.NoError(t, err)
	require.NoError(t, replica1.Apply(u))
	edit := replica1.InsertAt(0, "X").Encode()
	require.NoError(t, ws1.WriteMessage(websocket.BinaryMessage, edit))

	// a2 receives exactly that frame and converges to "Xinit".
	frame := readBinary(t, ws2)
	assert.Equal(t, edit, frame)

	replica2 := crdt.NewDoc("a2")
	base, err := crdt.DecodeUpdate(snapshotBytes(t, sync2))
	require.NoError(t, err)
	require.NoError(t, replica2.Apply(base))
	applied, err := crdt.DecodeUpdate(frame)
	require.NoError(t, err)
	require.NoError(t, replica2.Apply(applied))
	assert.Equal(t, "Xinit", replica2.Text())

	// The hub's own document moved too.
	text, ok := mgr.TextContent("hello.ts")
	require.True(t, ok)
	assert.Equal(t, "Xinit", text)
}

func TestLeaveArmsSessionGC(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	mgr := docsession.NewManager(func() time.Duration { return 30 * time.Millisecond }, logger)
	h := NewHandler(mgr, logger)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	mgr.Create("gc.ts", "x")
	ws := dial(t, url)
	sendJSON(t, ws, map[string]any{"type": "join", "path": "gc.ts", "agentId": "a1"})
	require.Equal(t, "sync", readEnvelope(t, ws)["type"])

	sendJSON(t, ws, map[string]any{"type": "leave"})

	assert.Eventually(t, func() bool { return mgr.Count() == 0 },
		time.Second, 10*time.Millisecond, "session must be GCed after the last editor leaves")
}

func TestRejoinOtherDocLeavesFirstSession(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	mgr := docsession.NewManager(func() time.Duration { return 30 * time.Millisecond }, logger)
	h := NewHandler(mgr, logger)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	mgr.Create("a.ts", "x")
	mgr.Create("b.ts", "y")

	ws := dial(t, url)
	sendJSON(t, ws, map[string]any{"type": "join", "path": "a.ts", "agentId": "a1"})
	require.Equal(t, "sync", readEnvelope(t, ws)["type"])
	require.Equal(t, "awareness", readEnvelope(t, ws)["type"])

	// Same socket switches docs; a.ts must not keep a phantom editor.
	sendJSON(t, ws, map[string]any{"type": "join", "path": "b.ts", "agentId": "a1"})
	require.Equal(t, "sync", readEnvelope(t, ws)["type"])

	assert.Eventually(t, func() bool { return mgr.Count() == 1 },
		time.Second, 10*time.Millisecond, "a.ts must GC once the channel rebinds to b.ts")

	ws.Close()

	assert.Eventually(t, func() bool { return mgr.Count() == 0 },
		time.Second, 10*time.Millisecond, "b.ts must GC after the socket closes")
}

func TestDisconnectLeavesSession(t *testing.T) {
	mgr, url := newTestHub(t)
	mgr.Create("drop.ts", "x")

	ws := dial(t, url)
	sendJSON(t, ws, map[string]any{"type": "join", "path": "drop.ts", "agentId": "a1"})
	require.Equal(t, "sync", readEnvelope(t, ws)["type"])

	ws.Close()

	assert.Eventually(t, func() bool {
		for _, meta := range mgr.ListSessions() {
			if meta.Path == "drop.ts" {
				return meta.Editors == 0
			}
		}
		return false
	}, time.Second, 10*time.Millisecond, "closing the socket must leave the session")
}
