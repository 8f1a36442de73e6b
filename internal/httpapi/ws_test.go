package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crierhq/crier/internal/protocol"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// readEnvelope reads one message and returns its decoded form plus the type.
func readEnvelope(t *testing.T, conn *websocket.Conn) (protocol.MessageType, map[string]any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	typ, _ := payload["type"].(string)
	return protocol.MessageType(typ), payload
}

// readUntil drains messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		typ, payload := readEnvelope(t, conn)
		if typ == want {
			return payload
		}
	}
	t.Fatalf("no %s message within 10 reads", want)
	return nil
}

func TestOverlayWebSocketFlow(t *testing.T) {
	env := newTestEnv(t, "httpapi_test_wsflow", nil)
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if typ, _ := readEnvelope(t, conn); typ != protocol.TypeConnected {
		t.Fatalf("first message type = %s, want %s", typ, protocol.TypeConnected)
	}
	if typ, _ := readEnvelope(t, conn); typ != protocol.TypeQueueUpdate {
		t.Fatalf("second message type = %s, want %s", typ, protocol.TypeQueueUpdate)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ready"}); err != nil {
		t.Fatalf("WriteJSON(ready) error = %v", err)
	}

	res, err := http.Post(ts.URL+"/api/test", "application/json", strings.NewReader(`{"type":"twitch_bits"}`))
	if err != nil {
		t.Fatalf("POST /api/test error = %v", err)
	}
	res.Body.Close()

	ready := readUntil(t, conn, protocol.TypeTTSReady)
	text, _ := ready["text"].(string)
	if !strings.Contains(text, "cheered") {
		t.Fatalf("tts_ready text = %q", text)
	}
	audioID, _ := ready["audio_id"].(string)
	if audioID == "" {
		t.Fatalf("tts_ready missing audio_id: %+v", ready)
	}

	audioRes, err := http.Get(ts.URL + "/audio/" + audioID)
	if err != nil {
		t.Fatalf("GET /audio error = %v", err)
	}
	audioRes.Body.Close()
	if audioRes.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d, want %d", audioRes.StatusCode, http.StatusOK)
	}

	id, _ := ready["id"].(string)
	if err := conn.WriteJSON(map[string]string{"type": "play_complete", "id": id}); err != nil {
		t.Fatalf("WriteJSON(play_complete) error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return env.dispatcher.Status().Current == nil
	})
}

func TestOverlayWebSocketResendsCurrentOnReady(t *testing.T) {
	env := newTestEnv(t, "httpapi_test_wsresume", nil)
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	// Queue an alert with no overlay connected; it stays current and unacked.
	res, err := http.Post(ts.URL+"/api/test", "application/json", strings.NewReader(`{"type":"twitch_bits"}`))
	if err != nil {
		t.Fatalf("POST /api/test error = %v", err)
	}
	res.Body.Close()
	if env.dispatcher.Status().Current == nil {
		t.Fatal("no current message after injection")
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "ready"}); err != nil {
		t.Fatalf("WriteJSON(ready) error = %v", err)
	}

	ready := readUntil(t, conn, protocol.TypeTTSReady)
	if id, _ := ready["id"].(string); id != env.dispatcher.Status().Current.ID {
		t.Fatalf("resent ready id = %q, want current %q", id, env.dispatcher.Status().Current.ID)
	}
}

func TestOverlayWebSocketRejectsCrossOrigin(t *testing.T) {
	env := newTestEnv(t, "httpapi_test_wsorigin", nil)
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	header := http.Header{"Origin": []string{"http://attacker.example"}}
	conn, res, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err == nil {
		conn.Close()
		t.Fatal("cross-origin dial succeeded")
	}
	if res != nil && res.StatusCode != http.StatusForbidden {
		t.Fatalf("handshake status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
}
