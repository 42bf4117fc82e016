package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/frontdesk/internal/backend"
	"github.com/MrWong99/frontdesk/internal/persona"
)

// RenderDashboard writes the activity summary for stats, captioned with the
// persona's labels.
func RenderDashboard(w io.Writer, stats backend.Stats, labels persona.Labels) error {
	st := newStyles(lipgloss.NewRenderer(w))

	counter := func(label string, n int) string {
		return st.label.Render(label) + "\n" + st.value.Render(strconv.Itoa(n))
	}
	counters := lipgloss.JoinHorizontal(lipgloss.Top,
		st.box.Render(counter(labels.TotalCalls, stats.TotalCalls)),
		st.box.Render(counter(labels.Bookings, stats.BookingsCount)),
		st.box.Render(counter(labels.Callbacks, stats.CallbacksCount)),
	)

	var bookings []string
	for _, b := range stats.RecentBookings {
		bookings = append(bookings, fmt.Sprintf("%s  %s %s  %s", b.CustomerName, b.Date, b.Time, st.muted.Render(b.Status)))
	}
	var callbacks []string
	for _, c := range stats.RecentCallbacks {
		line := fmt.Sprintf("%s  %s  %s", c.Name, c.Phone, st.muted.Render(c.Reason))
		if c.Priority == backend.PriorityUrgent {
			line = st.err.Render(string(c.Priority)) + " " + line
		}
		callbacks = append(callbacks, line)
	}

	out := lipgloss.JoinVertical(lipgloss.Left,
		st.title.Render(labels.DashboardTitle),
		counters,
		section(st, labels.RecentBookings, bookings, labels.NoData),
		section(st, labels.RecentCallbacks, callbacks, labels.NoData),
	)
	_, err := fmt.Fprintln(w, out)
	return err
}

func section(st styles, title string, lines []string, empty string) string {
	body := st.muted.Render(empty)
	if len(lines) > 0 {
		body = strings.Join(lines, "\n")
	}
	return "\n" + st.value.Render(title) + "\n" + body
}
