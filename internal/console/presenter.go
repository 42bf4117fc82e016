// Package console renders a live voice session to a terminal.
//
// A [Presenter] implements the session's callbacks: it coalesces transcript
// fragments into lines, marks tool calls, prints state changes and errors
// and, in debug mode, the session's log entries. [RenderDashboard] prints the
// activity summary at the end of a call.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/frontdesk/internal/live"
	"github.com/MrWong99/frontdesk/internal/persona"
	"github.com/MrWong99/frontdesk/internal/transcript"
)

// Palette.
const (
	colorUser   = "#60A5FA"
	colorAgent  = "#34D399"
	colorSystem = "#A78BFA"
	colorTool   = "#FBBF24"
	colorError  = "#F87171"
	colorMuted  = "#9CA3AF"
)

// maxDataWidth truncates debug payloads.
const maxDataWidth = 160

type styles struct {
	user, agent, system lipgloss.Style
	tool, ok, err       lipgloss.Style
	muted, state        lipgloss.Style
	title, label, value lipgloss.Style
	box                 lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		user:   r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorUser)),
		agent:  r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAgent)),
		system: r.NewStyle().Italic(true).Foreground(lipgloss.Color(colorSystem)),
		tool:   r.NewStyle().Foreground(lipgloss.Color(colorTool)),
		ok:     r.NewStyle().Foreground(lipgloss.Color(colorAgent)),
		err:    r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorError)),
		muted:  r.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		state:  r.NewStyle().Foreground(lipgloss.Color(colorMuted)).Italic(true),
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAgent)),
		label:  r.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		value:  r.NewStyle().Bold(true),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorMuted)).
			Padding(0, 1),
	}
}

// Option configures a [Presenter].
type Option func(*Presenter)

// WithDebug prints every session log entry.
func WithDebug(on bool) Option {
	return func(p *Presenter) { p.debug = on }
}

// WithClock sets the clock used for transcript timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Presenter) { p.transcript.Now = now }
}

// Presenter renders session events to a writer. Safe for concurrent use.
type Presenter struct {
	mu         sync.Mutex
	w          io.Writer
	agent      string
	debug      bool
	transcript *transcript.Log
	printed    int
	st         styles
}

// NewPresenter returns a Presenter writing to w for the agent p.
func NewPresenter(w io.Writer, p persona.Persona, opts ...Option) *Presenter {
	pr := &Presenter{
		w:          w,
		agent:      p.Name,
		transcript: &transcript.Log{},
		st:         newStyles(lipgloss.NewRenderer(w)),
	}
	if pr.agent == "" {
		pr.agent = "Agent"
	}
	for _, o := range opts {
		o(pr)
	}
	return pr
}

// Callbacks returns the session callbacks backed by p.
func (p *Presenter) Callbacks() live.Callbacks {
	return live.Callbacks{
		OnTranscript:   p.Transcript,
		OnToolUse:      p.ToolUse,
		OnLog:          p.Log,
		OnError:        p.Error,
		OnTurnComplete: p.TurnComplete,
		OnStateChange:  p.StateChange,
	}
}

// Transcript records a cumulative fragment. A line is printed once the next
// message starts, so each utterance is shown once in its final form.
func (p *Presenter) Transcript(role live.Role, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transcript.Append(role, text) {
		p.printFinalLocked()
	}
}

// ToolUse prints tool badges. A finished tool with a non-empty result adds
// a system line to the transcript.
func (p *Presenter) ToolUse(name string, phase live.ToolPhase, result map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch phase {
	case live.ToolStarted:
		p.printFinalLocked()
		p.printf("  %s\n", p.st.tool.Render("⚙ "+name+" …"))
	case live.ToolFinished:
		p.printf("  %s\n", p.st.ok.Render("✓ "+name))
		if len(result) > 0 {
			if p.transcript.Append(transcript.RoleSystem, fmt.Sprintf("Tool %s completed", name)) {
				p.printFinalLocked()
			}
		}
	}
}

// Log prints a session log entry in debug mode.
func (p *Presenter) Log(e live.LogEntry) {
	if !p.debug {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("%s %-8s %s", e.Time.Format("15:04:05"), e.Type, e.Message)
	if e.Data != nil {
		if b, err := json.Marshal(e.Data); err == nil {
			line += " " + truncate(string(b), maxDataWidth)
		}
	}
	style := p.st.muted
	if e.Type == live.LogError {
		style = p.st.err
	}
	p.printf("  %s\n", style.Render(line))
}

// Error prints a session error.
func (p *Presenter) Error(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printf("%s\n", p.st.err.Render("✗ "+msg))
}

// TurnComplete prints the model's finished utterance without waiting for
// the next message.
func (p *Presenter) TurnComplete(bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked()
}

// StateChange prints the new session state.
func (p *Presenter) StateChange(s live.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Terminal() || s == live.StateClosing {
		p.flushLocked()
	}
	p.printf("%s\n", p.st.state.Render("● "+s.String()))
}

// Flush prints the transcript lines not yet shown, including the last one.
func (p *Presenter) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked()
}

// Messages returns the coalesced transcript.
func (p *Presenter) Messages() []transcript.Message {
	return p.transcript.Messages()
}

// printFinalLocked prints every message except the last, which may still grow.
func (p *Presenter) printFinalLocked() {
	if p.printed >= p.transcript.Len()-1 {
		return
	}
	msgs := p.transcript.Messages()
	for ; p.printed < len(msgs)-1; p.printed++ {
		p.printMessageLocked(msgs[p.printed])
	}
}

func (p *Presenter) flushLocked() {
	if p.printed >= p.transcript.Len() {
		return
	}
	msgs := p.transcript.Messages()
	for ; p.printed < len(msgs); p.printed++ {
		p.printMessageLocked(msgs[p.printed])
	}
}

func (p *Presenter) printMessageLocked(m transcript.Message) {
	switch m.Role {
	case transcript.RoleUser:
		p.printf("%s %s\n", p.st.user.Render("You ›"), m.Text)
	case transcript.RoleModel:
		p.printf("%s %s\n", p.st.agent.Render(p.agent+" ›"), m.Text)
	default:
		p.printf("  %s\n", p.st.system.Render(m.Text))
	}
}

func (p *Presenter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "…"
}
