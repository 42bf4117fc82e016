package console

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/frontdesk/internal/diagnostics"
	"github.com/MrWong99/frontdesk/internal/health"
)

var checkLabels = map[string]string{
	diagnostics.CheckAuth:       "API Authorization",
	diagnostics.CheckMicrophone: "Microphone Hardware",
	diagnostics.CheckSocket:     "Gemini Live Connection",
	diagnostics.CheckWebhook:    "Scheduling Webhook",
}

// RenderReport writes a diagnostics report, one line per check.
func RenderReport(w io.Writer, rep diagnostics.Report, webhookURL string) error {
	st := newStyles(lipgloss.NewRenderer(w))

	line := func(r health.Result) string {
		label := checkLabels[r.Name]
		if label == "" {
			label = r.Name
		}
		switch {
		case r.Skipped:
			return st.muted.Render("○ " + label + "  skipped")
		case r.Err != nil:
			return st.err.Render("✗ "+label) + "  " + r.Err.Error()
		default:
			return st.ok.Render("✓ "+label) + "  " + st.muted.Render(r.Latency.Round(time.Millisecond).String())
		}
	}

	out := []string{st.title.Render("System Diagnostics")}
	for _, r := range rep.Connectivity {
		out = append(out, line(r))
	}
	out = append(out, "", st.value.Render("Webhook")+" "+st.muted.Render(webhookURL))
	if payload, err := json.MarshalIndent(rep.WebhookRequest, "", "  "); err == nil {
		out = append(out, st.muted.Render(string(payload)))
	}
	out = append(out, line(rep.Webhook))
	if rep.Webhook.OK() {
		out = append(out, "  status: "+rep.WebhookResponse.Status)
	}

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, out...))
	return err
}
