// Package gemini implements the s2s.Transport interface for Google's Gemini
// Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Audio travels as base64-encoded PCM chunks in both directions;
// tool calls arrive inside server messages and are answered with
// toolResponse messages.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

var (
	_ s2s.Transport = (*Transport)(nil)
	_ s2s.Conn      = (*session)(nil)
)

const (
	// DefaultModel is the native-audio Live model the agents were tuned on.
	DefaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	bidiPath       = "google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	inboundBuffer = 64
)

var (
	// ErrMissingAPIKey is returned by Connect when no credential is available.
	ErrMissingAPIKey = errors.New("gemini: missing API key")

	// ErrClosed is returned by sends on a closed session.
	ErrClosed = errors.New("gemini: session closed")
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Transport.
type Option func(*Transport)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(t *Transport) { t.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(t *Transport) { t.baseURL = url }
}

// WithLogger sets the logger used for protocol diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.log = l }
}

// ── Transport ──────────────────────────────────────────────────────────────────

// Transport implements s2s.Transport for Google's Gemini Live API.
type Transport struct {
	apiKey  string
	model   string
	baseURL string
	log     *slog.Logger
}

// New creates a Gemini Live Transport. apiKey is used when the session config
// does not carry its own credential.
func New(apiKey string, opts ...Option) *Transport {
	t := &Transport{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: defaultBaseURL,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Connect dials Gemini Live and sends the setup message. The returned Conn
// accepts audio immediately; the server's setupComplete acknowledgement is
// delivered as a regular message.
func (t *Transport) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.Conn, error) {
	key := cfg.APIKey
	if key == "" {
		key = t.apiKey
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = t.model
	}

	wsURL, err := endpoint(t.baseURL, key)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	// Model turns carry whole audio chunks; the 32KiB default is too small.
	conn.SetReadLimit(16 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:     conn,
		messages: make(chan s2s.ServerMessage, inboundBuffer),
		ctx:      sessCtx,
		cancel:   sessCancel,
		log:      t.log,
	}

	if err := sess.writeJSON(ctx, buildSetup(model, cfg)); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// endpoint builds the BidiGenerateContent URL under base.
func endpoint(base, key string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("gemini: base url: %w", err)
	}
	u = u.JoinPath(bidiPath)
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// buildSetup assembles the BidiGenerateContent setup message.
func buildSetup(model string, cfg s2s.SessionConfig) setupMessage {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"audio"},
			},
			InputAudioTranscription:  &struct{}{},
			OutputAudioTranscription: &struct{}{},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		msg.Setup.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return msg
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn     *websocket.Conn
	messages chan s2s.ServerMessage
	log      *slog.Logger

	mu     sync.Mutex
	errVal error
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// writeJSON marshals v and writes it as a text WebSocket message. Writes are
// bounded by both ctx and the session lifetime.
func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-s.ctx.Done():
			stop()
		case <-ctx.Done():
		}
	}()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and forwards them in order.
// It owns the messages channel and closes it when it exits.
func (s *session) receiveLoop() {
	defer close(s.messages)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// A cancelled session or a normal close frame is a clean end.
			if s.ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			s.setErr(fmt.Errorf("gemini: read: %w", err))
			return
		}

		var raw serverMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			s.log.Warn("gemini: skipping malformed server message", "err", err)
			continue
		}

		if raw.Error != nil {
			msg := raw.Error.Message
			if msg == "" {
				msg = "unknown error"
			}
			s.setErr(fmt.Errorf("gemini: server error %d: %s", raw.Error.Code, msg))
			s.conn.Close(websocket.StatusNormalClosure, "server error")
			return
		}

		msg, ok := translate(&raw)
		if !ok {
			continue
		}
		select {
		case s.messages <- msg:
		case <-s.ctx.Done():
			return
		}
	}
}

// translate maps a wire message onto the transport-neutral form. It reports
// false for messages that carry nothing the session consumes.
func translate(raw *serverMessage) (s2s.ServerMessage, bool) {
	var msg s2s.ServerMessage
	useful := false

	if raw.SetupComplete != nil {
		msg.SetupComplete = true
		useful = true
	}

	if sc := raw.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					msg.Audio = append(msg.Audio, s2s.AudioChunk{
						MIMEType: p.InlineData.MIMEType,
						Data:     p.InlineData.Data,
					})
				}
			}
		}
		if sc.InputTranscription != nil {
			msg.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			msg.OutputTranscript = sc.OutputTranscription.Text
		}
		msg.TurnComplete = sc.TurnComplete
		msg.Interrupted = sc.Interrupted
		useful = true
	}

	if raw.ToolCall != nil {
		for _, fc := range raw.ToolCall.FunctionCalls {
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, s2s.ToolCall{ID: fc.ID, Name: fc.Name, Args: args})
		}
		useful = true
	}

	return msg, useful
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			if err := s.conn.Ping(pingCtx); err != nil && s.ctx.Err() == nil {
				s.log.Debug("gemini: keepalive ping failed", "err", err)
			}
			cancel()
		}
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ── Conn methods ───────────────────────────────────────────────────────────────

// Messages returns the inbound message stream.
func (s *session) Messages() <-chan s2s.ServerMessage { return s.messages }

// Err returns the first error that terminated the session.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// SendAudio sends one realtime-input media chunk.
func (s *session) SendAudio(ctx context.Context, chunk s2s.MediaChunk) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.writeJSON(ctx, realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{MIMEType: chunk.MIMEType, Data: chunk.Data}},
		},
	})
}

// SendToolResult answers one function call.
func (s *session) SendToolResult(ctx context.Context, result s2s.ToolResult) error {
	if s.isClosed() {
		return ErrClosed
	}
	resp := result.Response
	if resp == nil {
		resp = map[string]any{}
	}
	return s.writeJSON(ctx, toolResponseMessage{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{
				{ID: result.ID, Name: result.Name, Response: resp},
			},
		},
	})
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
