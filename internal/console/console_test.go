package console_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/frontdesk/internal/backend"
	"github.com/MrWong99/frontdesk/internal/console"
	"github.com/MrWong99/frontdesk/internal/diagnostics"
	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/live"
	"github.com/MrWong99/frontdesk/internal/persona"
	"github.com/MrWong99/frontdesk/internal/scheduling"
	"github.com/MrWong99/frontdesk/internal/transcript"
)

func testPersona() persona.Persona {
	return persona.Persona{Name: "Front Desk Agent"}
}

func TestPresenter_CoalescesTranscript(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := console.NewPresenter(&buf, testPersona())
	cb := p.Callbacks()

	cb.OnTranscript(live.RoleUser, "I need")
	cb.OnTranscript(live.RoleUser, "I need winter tires")
	if buf.Len() != 0 {
		t.Fatalf("growing utterance printed early: %q", buf.String())
	}

	cb.OnTranscript(live.RoleModel, "Sure")
	cb.OnTranscript(live.RoleModel, "Sure, what date?")

	out := buf.String()
	if strings.Count(out, "You ›") != 1 || !strings.Contains(out, "You › I need winter tires\n") {
		t.Errorf("user line not coalesced:\n%s", out)
	}
	if strings.Contains(out, "Front Desk Agent ›") {
		t.Errorf("agent line printed before it was final:\n%s", out)
	}

	p.Flush()
	if !strings.Contains(buf.String(), "Front Desk Agent › Sure, what date?\n") {
		t.Errorf("Flush did not print last line:\n%s", buf.String())
	}

	msgs := p.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != transcript.RoleUser || msgs[1].Role != transcript.RoleModel {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestPresenter_TurnCompletePrintsLastLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := console.NewPresenter(&buf, testPersona())
	cb := p.Callbacks()

	cb.OnTranscript(live.RoleModel, "Booked for Monday.")
	if buf.Len() != 0 {
		t.Fatalf("line printed before the turn ended: %q", buf.String())
	}
	cb.OnTurnComplete(false)
	if !strings.Contains(buf.String(), "Front Desk Agent › Booked for Monday.\n") {
		t.Fatalf("turn end did not print the line:\n%s", buf.String())
	}

	// Nothing new: neither the next turn end nor a later message repeats it.
	cb.OnTurnComplete(true)
	cb.OnTranscript(live.RoleUser, "Thanks")
	p.Flush()
	if n := strings.Count(buf.String(), "Booked for Monday."); n != 1 {
		t.Errorf("line printed %d times:\n%s", n, buf.String())
	}
}

func TestPresenter_ToolUse(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := console.NewPresenter(&buf, testPersona())
	cb := p.Callbacks()

	cb.OnToolUse("scheduleAppointment", live.ToolStarted, nil)
	cb.OnToolUse("scheduleAppointment", live.ToolFinished, map[string]any{"result": "Confirmed"})
	cb.OnToolUse("noop", live.ToolStarted, nil)
	cb.OnToolUse("noop", live.ToolFinished, map[string]any{})
	p.Flush()

	out := buf.String()
	for _, want := range []string{"⚙ scheduleAppointment", "✓ scheduleAppointment", "Tool scheduleAppointment completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Tool noop completed") {
		t.Errorf("empty result produced a system line:\n%s", out)
	}

	msgs := p.Messages()
	if len(msgs) != 1 || msgs[0].Role != transcript.RoleSystem {
		t.Errorf("messages = %+v, want one system message", msgs)
	}
}

func TestPresenter_DebugLog(t *testing.T) {
	t.Parallel()

	entry := live.LogEntry{
		Time:    time.Date(2025, 3, 3, 14, 5, 9, 0, time.UTC),
		Type:    live.LogToolRequest,
		Message: "INVOKING TOOL: logCallback",
		Data:    map[string]any{"name": "Ann"},
	}

	var quiet bytes.Buffer
	console.NewPresenter(&quiet, testPersona()).Log(entry)
	if quiet.Len() != 0 {
		t.Errorf("log printed without debug: %q", quiet.String())
	}

	var buf bytes.Buffer
	console.NewPresenter(&buf, testPersona(), console.WithDebug(true)).Log(entry)
	out := buf.String()
	for _, want := range []string{"14:05:09", "tool_req", "INVOKING TOOL: logCallback", `{"name":"Ann"}`} {
		if !strings.Contains(out, want) {
			t.Errorf("debug line lacks %q: %q", want, out)
		}
	}
}

func TestPresenter_StateAndErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := console.NewPresenter(&buf, testPersona())
	cb := p.Callbacks()

	cb.OnTranscript(live.RoleUser, "hello")
	cb.OnError("live: transport: socket reset")
	cb.OnStateChange(live.StateErrored)

	out := buf.String()
	if !strings.Contains(out, "✗ live: transport: socket reset") {
		t.Errorf("error not printed:\n%s", out)
	}
	if !strings.Contains(out, "● errored") {
		t.Errorf("state not printed:\n%s", out)
	}
	if !strings.Contains(out, "You › hello") {
		t.Errorf("terminal state did not flush transcript:\n%s", out)
	}
	if strings.Index(out, "You › hello") > strings.Index(out, "● errored") {
		t.Errorf("transcript printed after final state:\n%s", out)
	}
}

func TestRenderDashboard(t *testing.T) {
	t.Parallel()

	labels, err := persona.Resolve("rapidtire", persona.AgentBooking, persona.LanguageEnglish)
	if err != nil {
		t.Fatal(err)
	}

	store := backend.NewStore()
	store.LogCallStart()
	store.LogCallStart()
	store.AddBooking(backend.Booking{CustomerName: "Ann Nowak", Date: "2025-03-04", Time: "10:00", Status: "Confirmed"})
	if _, err := store.LogCallback(backend.Callback{Name: "Bob", Phone: "555", Reason: "Blowout", Priority: backend.PriorityUrgent}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := console.RenderDashboard(&buf, store.Stats(), labels.Labels); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Live Shop Activity", "Total Calls Processed", "Confirmed Bookings",
		"Ann Nowak", "2025-03-04 10:00", "URGENT", "Bob", "Blowout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, labels.Labels.NoData) {
		t.Errorf("dashboard shows no-data caption with data present:\n%s", out)
	}
}

func TestRenderDashboard_Empty(t *testing.T) {
	t.Parallel()

	p, err := persona.Resolve("safeguard", persona.AgentOverflow, persona.LanguagePolish)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := console.RenderDashboard(&buf, backend.NewStore().Stats(), p.Labels); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Count(out, "Brak danych polis.") != 2 {
		t.Errorf("want no-data caption in both lists:\n%s", out)
	}
	if !strings.Contains(out, "Metryki Agencji") {
		t.Errorf("missing Polish title:\n%s", out)
	}
}

func TestRenderReport(t *testing.T) {
	t.Parallel()

	rep := diagnostics.Report{
		Connectivity: []health.Result{
			{Name: diagnostics.CheckAuth, Latency: 2 * time.Millisecond},
			{Name: diagnostics.CheckMicrophone, Err: errors.New("audio: microphone access denied")},
			{Name: diagnostics.CheckSocket, Skipped: true},
		},
		Webhook:         health.Result{Name: diagnostics.CheckWebhook, Latency: 120 * time.Millisecond},
		WebhookRequest:  diagnostics.TestRequest(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)),
		WebhookResponse: scheduling.Response{Status: "confirmed"},
	}

	var buf bytes.Buffer
	if err := console.RenderReport(&buf, rep, "http://hooks.test/rapidtire"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"✓ API Authorization",
		"✗ Microphone Hardware",
		"microphone access denied",
		"○ Gemini Live Connection  skipped",
		"http://hooks.test/rapidtire",
		`"name": "Alex Driver"`,
		"✓ Scheduling Webhook",
		"status: confirmed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report lacks %q:\n%s", want, out)
		}
	}
}
