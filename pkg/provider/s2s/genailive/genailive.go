// Package genailive implements s2s.Transport on top of the official
// google.golang.org/genai SDK's Live client.
//
// It is an alternative to the hand-rolled gemini transport: the SDK owns the
// wire format and this package only maps between the SDK types and the
// transport-neutral s2s types. The SDK session is not safe for concurrent
// writes, so sends are serialised here.
package genailive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

var _ s2s.Transport = (*Transport)(nil)
var _ s2s.Conn = (*conn)(nil)

const (
	// DefaultModel matches the gemini transport's default.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	defaultAPIVersion = "v1beta"
	inboundBuffer     = 64
)

// ErrMissingAPIKey is returned by Connect when no credential is available.
var ErrMissingAPIKey = errors.New("genailive: missing API key")

// Option configures a Transport.
type Option func(*Transport)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(t *Transport) { t.model = model }
}

// WithBaseURL overrides the API base URL. A ws:// or wss:// scheme is kept
// as is, which lets tests point the client at a local server.
func WithBaseURL(url string) Option {
	return func(t *Transport) { t.baseURL = url }
}

// WithLogger sets the logger used for protocol diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.log = l }
}

// Transport opens Live sessions through the genai SDK.
type Transport struct {
	apiKey  string
	model   string
	baseURL string
	log     *slog.Logger
}

// New creates a Transport. apiKey is used when the session config does not
// carry its own credential.
func New(apiKey string, opts ...Option) *Transport {
	t := &Transport{
		apiKey: apiKey,
		model:  DefaultModel,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Connect creates an SDK client for the credential and opens a Live session.
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

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    t.baseURL,
			APIVersion: defaultAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("genailive: new client: %w", err)
	}

	// The SDK dialer does not observe ctx, so race it here and discard a
	// session that arrives after the caller gave up.
	type result struct {
		sess *genai.Session
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		sess, err := client.Live.Connect(ctx, model, connectConfig(cfg))
		ch <- result{sess, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.sess != nil {
				r.sess.Close()
			}
		}()
		return nil, fmt.Errorf("genailive: connect: %w", ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("genailive: connect: %w", res.err)
	}

	c := &conn{
		sess:     res.sess,
		messages: make(chan s2s.ServerMessage, inboundBuffer),
		done:     make(chan struct{}),
		log:      t.log,
	}
	go c.receiveLoop()
	return c, nil
}

// connectConfig maps the neutral session config onto the SDK's.
func connectConfig(cfg s2s.SessionConfig) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.Instructions != "" {
		lc.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.Instructions}},
		}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(cfg.Tools))
		for i, td := range cfg.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 td.Name,
				Description:          td.Description,
				ParametersJsonSchema: td.Parameters,
			}
		}
		lc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return lc
}

// ── conn ──────────────────────────────────────────────────────────────────────

type conn struct {
	sess     *genai.Session
	messages chan s2s.ServerMessage
	log      *slog.Logger

	writeMu sync.Mutex
	done    chan struct{}

	mu     sync.Mutex
	errVal error
	closed bool
}

func (c *conn) receiveLoop() {
	defer close(c.messages)
	for {
		msg, err := c.sess.Receive()
		if err != nil {
			if c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			c.setErr(fmt.Errorf("genailive: receive: %w", err))
			c.sess.Close()
			return
		}
		out, ok := translate(msg)
		if !ok {
			continue
		}
		select {
		case c.messages <- out:
		case <-c.done:
			return
		}
	}
}

// translate maps an SDK server message onto the neutral form.
func translate(msg *genai.LiveServerMessage) (s2s.ServerMessage, bool) {
	var out s2s.ServerMessage
	useful := false

	if msg.SetupComplete != nil {
		out.SetupComplete = true
		useful = true
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
					continue
				}
				out.Audio = append(out.Audio, s2s.AudioChunk{
					MIMEType: p.InlineData.MIMEType,
					Data:     audio.BinaryToBase64(p.InlineData.Data),
				})
			}
		}
		if sc.InputTranscription != nil {
			out.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscript = sc.OutputTranscription.Text
		}
		out.TurnComplete = sc.TurnComplete
		out.Interrupted = sc.Interrupted
		useful = true
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, s2s.ToolCall{ID: fc.ID, Name: fc.Name, Args: args})
		}
		useful = true
	}
	return out, useful
}

func (c *conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil {
		c.errVal = err
	}
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) Messages() <-chan s2s.ServerMessage { return c.messages }

func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// SendAudio decodes the chunk and sends it as realtime audio input.
func (c *conn) SendAudio(_ context.Context, chunk s2s.MediaChunk) error {
	if c.isClosed() {
		return fmt.Errorf("genailive: session closed")
	}
	data, err := audio.Base64ToBinary(chunk.Data)
	if err != nil {
		return fmt.Errorf("genailive: send audio: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: chunk.MIMEType},
	})
}

// SendToolResult answers one function call.
func (c *conn) SendToolResult(_ context.Context, result s2s.ToolResult) error {
	if c.isClosed() {
		return fmt.Errorf("genailive: session closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sess.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{
			{ID: result.ID, Name: result.Name, Response: result.Response},
		},
	})
}

// Close ends the session. Idempotent.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	if err := c.sess.Close(); err != nil {
		c.log.Debug("genailive: close session", "err", err)
	}
	return nil
}
