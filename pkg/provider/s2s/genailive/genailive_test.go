package genailive_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s/genailive"
)

// startLiveServer runs a WebSocket endpoint that stands in for the Live API.
// The handler receives the raw setup frame first.
func startLiveServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request, setup []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_, setup, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Errorf("read setup: %v", err)
			return
		}
		handler(conn, r, setup)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("send: %v (may be expected on close)", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("recv: %v", err)
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("recv unmarshal: %v", err)
	}
	return m
}

func next(t *testing.T, conn s2s.Conn) s2s.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-conn.Messages():
		if !ok {
			t.Fatalf("Messages closed (err: %v)", conn.Err())
		}
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for message")
	}
	return s2s.ServerMessage{}
}

func TestConnect_MissingAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := genailive.New("").Connect(context.Background(), s2s.SessionConfig{}); !errors.Is(err, genailive.ErrMissingAPIKey) {
		t.Fatalf("Connect err = %v, want ErrMissingAPIKey", err)
	}
}

func TestConnect_SetupAndAuth(t *testing.T) {
	t.Parallel()

	type seen struct {
		key   string
		path  string
		setup string
	}
	got := make(chan seen, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request, setup []byte) {
		got <- seen{key: r.Header.Get("x-goog-api-key"), path: r.URL.Path, setup: string(setup)}
		<-conn.CloseRead(context.Background()).Done()
	})

	tr := genailive.New("key-1", genailive.WithBaseURL(wsURL(srv)), genailive.WithModel("test-model"))
	conn, err := tr.Connect(context.Background(), s2s.SessionConfig{
		Voice:        "Kore",
		Instructions: "Be kind.",
		Tools:        []s2s.ToolDefinition{{Name: "logCallback", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	select {
	case s := <-got:
		if s.key != "key-1" {
			t.Errorf("x-goog-api-key = %q, want key-1", s.key)
		}
		if !strings.HasSuffix(s.path, "BidiGenerateContent") {
			t.Errorf("path = %q, want the BidiGenerateContent endpoint", s.path)
		}
		for _, want := range []string{"models/test-model", "Kore", "Be kind.", "logCallback", "inputAudioTranscription", "outputAudioTranscription"} {
			if !strings.Contains(s.setup, want) {
				t.Errorf("setup %s does not contain %q", s.setup, want)
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for setup")
	}
}

func TestConn_RoundTrip(t *testing.T) {
	t.Parallel()

	inbound := make(chan map[string]any, 2)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request, _ []byte) {
		send(t, conn, map[string]any{"setupComplete": map[string]any{}})
		send(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": "AQIDBA=="}},
					},
				},
				"outputTranscription": map[string]any{"text": "Hello"},
			},
		})
		send(t, conn, map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []map[string]any{
					{"id": "c1", "name": "logCallback", "args": map[string]any{"name": "Ann"}},
				},
			},
		})
		inbound <- recv(t, conn)
		inbound <- recv(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	conn, err := genailive.New("k", genailive.WithBaseURL(wsURL(srv))).Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if msg := next(t, conn); !msg.SetupComplete {
		t.Errorf("first message = %+v, want setupComplete", msg)
	}
	msg := next(t, conn)
	if len(msg.Audio) != 1 || msg.Audio[0].Data != "AQIDBA==" {
		t.Errorf("audio = %+v, want one chunk re-encoded as AQIDBA==", msg.Audio)
	}
	if msg.OutputTranscript != "Hello" {
		t.Errorf("OutputTranscript = %q", msg.OutputTranscript)
	}
	msg = next(t, conn)
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "c1" || msg.ToolCalls[0].Args["name"] != "Ann" {
		t.Errorf("tool calls = %+v", msg.ToolCalls)
	}

	if err := conn.SendAudio(context.Background(), s2s.MediaChunk{MIMEType: "audio/pcm;rate=24000", Data: "BQY="}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := conn.SendToolResult(context.Background(), s2s.ToolResult{ID: "c1", Name: "logCallback", Response: map[string]any{"result": "ok"}}); err != nil {
		t.Fatalf("SendToolResult: %v", err)
	}

	for _, key := range []string{"realtimeInput", "toolResponse"} {
		select {
		case m := <-inbound:
			if _, ok := m[key]; !ok {
				t.Errorf("client frame %v, want a %s message", m, key)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for %s", key)
		}
	}
}

func TestConn_SendAudioRejectsMalformedBase64(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request, _ []byte) {
		<-conn.CloseRead(context.Background()).Done()
	})
	conn, err := genailive.New("k", genailive.WithBaseURL(wsURL(srv))).Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if err := conn.SendAudio(context.Background(), s2s.MediaChunk{Data: "%%%"}); err == nil {
		t.Error("SendAudio with malformed base64 should fail")
	}
}

func TestConn_ServerErrorEndsSession(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request, _ []byte) {
		send(t, conn, map[string]any{"error": map[string]any{"code": 400, "message": "bad setup"}})
		<-conn.CloseRead(context.Background()).Done()
	})
	conn, err := genailive.New("k", genailive.WithBaseURL(wsURL(srv))).Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	select {
	case _, ok := <-conn.Messages():
		if ok {
			t.Fatal("unexpected message before close")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Messages to close")
	}
	if err := conn.Err(); err == nil || !strings.Contains(err.Error(), "bad setup") {
		t.Errorf("Err() = %v, want the server error", err)
	}
}

func TestConn_CloseIsCleanAndIdempotent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request, _ []byte) {
		<-conn.CloseRead(context.Background()).Done()
	})
	conn, err := genailive.New("k", genailive.WithBaseURL(wsURL(srv))).Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, ok := <-conn.Messages():
		if ok {
			t.Fatal("unexpected message after Close")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Messages to close")
	}
	if err := conn.Err(); err != nil {
		t.Errorf("Err() = %v, want nil after local Close", err)
	}
	if err := conn.SendAudio(context.Background(), s2s.MediaChunk{Data: "AA=="}); err == nil {
		t.Error("SendAudio after Close should fail")
	}
}
