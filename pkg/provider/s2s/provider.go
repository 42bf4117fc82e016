// Package s2s defines the realtime transport contract between the voice
// session manager and a speech-to-speech model backend such as Gemini Live.
//
// A [Transport] opens a [Conn]: one bidirectional streaming session. Inbound
// traffic arrives as [ServerMessage] values on a single channel in the order
// the backend produced them. Outbound traffic is realtime audio
// ([MediaChunk]) and tool results ([ToolResult]).
//
// Conn implementations must allow Close to be called concurrently with any
// other method. Send methods are called from a single writer goroutine by
// the session manager, so implementations need not serialise them further.
package s2s

import "context"

// ToolDefinition declares a function the model may call during the session.
type ToolDefinition struct {
	// Name is the function name the model uses in tool calls.
	Name string

	// Description explains to the model when to call the function.
	Description string

	// Parameters is the JSON Schema object describing the arguments.
	Parameters map[string]any
}

// SessionConfig is the setup sent when the session opens.
type SessionConfig struct {
	// APIKey is the credential presented to the backend.
	APIKey string

	// Model overrides the transport's default model when non-empty.
	Model string

	// Voice is the backend's prebuilt voice name (e.g. "Zephyr").
	Voice string

	// Instructions is the system instruction text.
	Instructions string

	// Tools is the fixed set of functions offered to the model.
	Tools []ToolDefinition
}

// MediaChunk is one outbound realtime-input payload.
type MediaChunk struct {
	// MIMEType tags the encoding, e.g. "audio/pcm;rate=16000".
	MIMEType string

	// Data is the base64-encoded payload.
	Data string
}

// AudioChunk is one inline audio part of a model turn.
type AudioChunk struct {
	MIMEType string

	// Data is base64-encoded 16-bit little-endian mono PCM.
	Data string
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers exactly one [ToolCall], correlated by ID.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// ServerMessage is one inbound message. Any combination of fields may be set.
type ServerMessage struct {
	// SetupComplete is set on the backend's acknowledgement of the setup.
	SetupComplete bool

	// Audio holds inline audio parts in playback order.
	Audio []AudioChunk

	// InputTranscript is the caller's speech as recognised so far.
	InputTranscript string

	// OutputTranscript is the text of the model's spoken output so far.
	OutputTranscript string

	// ToolCalls lists function invocations requested in this message.
	ToolCalls []ToolCall

	// TurnComplete and Interrupted mirror the backend's turn signals.
	TurnComplete bool
	Interrupted  bool
}

// Conn is an open realtime session.
type Conn interface {
	// Messages returns the inbound stream. It is closed when the session ends
	// for any reason; call Err afterwards to tell a normal close from a
	// failure.
	Messages() <-chan ServerMessage

	// Err returns the error that ended the session, or nil for a normal close
	// (including one initiated by Close).
	Err() error

	// SendAudio sends one realtime-input chunk.
	SendAudio(ctx context.Context, chunk MediaChunk) error

	// SendToolResult sends the response to one tool call.
	SendToolResult(ctx context.Context, result ToolResult) error

	// Close ends the session. Idempotent.
	Close() error
}

// Transport opens realtime sessions.
type Transport interface {
	// Connect dials the backend and sends the setup. The returned Conn is
	// ready to accept audio. The caller owns the Conn and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (Conn, error)
}
