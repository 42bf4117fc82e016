package live

import (
	"time"

	"github.com/MrWong99/frontdesk/internal/transcript"
)

// State is the lifecycle state of a [Session].
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateClosed
	StateErrored
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is closed or errored. Neither has a way out.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateIdle:       {StateConnecting, StateClosed, StateErrored},
	StateConnecting: {StateActive, StateClosing, StateErrored},
	StateActive:     {StateClosing, StateErrored},
	StateClosing:    {StateClosed},
}

// Role is the speaker of a transcript fragment.
type Role = transcript.Role

// Transcript roles as reported by [Callbacks.OnTranscript].
const (
	RoleUser  = transcript.RoleUser
	RoleModel = transcript.RoleModel
)

// ToolPhase marks the start or end of a tool call.
type ToolPhase string

const (
	ToolStarted  ToolPhase = "started"
	ToolFinished ToolPhase = "finished"
)

// LogType classifies a [LogEntry].
type LogType string

const (
	LogInfo         LogType = "info"
	LogToolRequest  LogType = "tool_req"
	LogToolResponse LogType = "tool_res"
	LogError        LogType = "error"
	LogWebhook      LogType = "webhook"
)

// LogEntry is one line of the session's debug log.
type LogEntry struct {
	Time    time.Time
	Type    LogType
	Message string

	// Data is the structured payload, e.g. tool arguments or a tool result.
	Data any
}

// Callbacks is the surface a presentation layer observes. Every field is
// optional. Callbacks run on the session's event loop, or on the caller's
// goroutine during Connect and Disconnect, and must not block for long.
type Callbacks struct {
	// OnAudioChunkDecoded receives every decoded inbound chunk before it is
	// scheduled for playback.
	OnAudioChunkDecoded func(samples []float32)

	// OnTranscript receives each cumulative transcript fragment.
	OnTranscript func(role Role, text string)

	// OnToolUse fires when a tool call starts and again when it finishes.
	// result is nil for [ToolStarted].
	OnToolUse func(name string, phase ToolPhase, result map[string]any)

	OnLog func(entry LogEntry)

	// OnError receives precondition and transport failures.
	OnError func(message string)

	// OnTurnComplete fires when the model ends its turn. interrupted is
	// true when the caller spoke over it.
	OnTurnComplete func(interrupted bool)

	OnStateChange func(state State)
}

func (c Callbacks) audio(samples []float32) {
	if c.OnAudioChunkDecoded != nil {
		c.OnAudioChunkDecoded(samples)
	}
}

func (c Callbacks) transcript(role Role, text string) {
	if c.OnTranscript != nil {
		c.OnTranscript(role, text)
	}
}

func (c Callbacks) toolUse(name string, phase ToolPhase, result map[string]any) {
	if c.OnToolUse != nil {
		c.OnToolUse(name, phase, result)
	}
}

func (c Callbacks) log(e LogEntry) {
	if c.OnLog != nil {
		c.OnLog(e)
	}
}

func (c Callbacks) error(msg string) {
	if c.OnError != nil {
		c.OnError(msg)
	}
}

func (c Callbacks) turnComplete(interrupted bool) {
	if c.OnTurnComplete != nil {
		c.OnTurnComplete(interrupted)
	}
}

func (c Callbacks) stateChange(s State) {
	if c.OnStateChange != nil {
		c.OnStateChange(s)
	}
}
