package transcript_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/frontdesk/internal/transcript"
)

type fragment struct {
	role transcript.Role
	text string
}

func TestLog_Append(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fragments []fragment
		want      []string
	}{
		{
			name: "growing fragments coalesce",
			fragments: []fragment{
				{transcript.RoleModel, "Dzień"},
				{transcript.RoleModel, "Dzień dobry"},
				{transcript.RoleModel, "Dzień dobry, tu Rapid Tire"},
			},
			want: []string{"model:Dzień dobry, tu Rapid Tire"},
		},
		{
			name: "role change starts a new message",
			fragments: []fragment{
				{transcript.RoleModel, "Hello"},
				{transcript.RoleUser, "Hello"},
			},
			want: []string{"model:Hello", "user:Hello"},
		},
		{
			name: "unrelated text from the same role appends",
			fragments: []fragment{
				{transcript.RoleUser, "I need new tyres"},
				{transcript.RoleUser, "on Monday"},
			},
			want: []string{"user:I need new tyres", "user:on Monday"},
		},
		{
			name: "containment not just prefix",
			fragments: []fragment{
				{transcript.RoleUser, "tyres"},
				{transcript.RoleUser, "winter tyres please"},
			},
			want: []string{"user:winter tyres please"},
		},
		{
			name: "shorter repeat replaces nothing",
			fragments: []fragment{
				{transcript.RoleModel, "checking 10:00"},
				{transcript.RoleModel, "checking"},
			},
			want: []string{"model:checking 10:00", "model:checking"},
		},
		{
			name: "only the last message is considered",
			fragments: []fragment{
				{transcript.RoleUser, "Hi"},
				{transcript.RoleModel, "Hello"},
				{transcript.RoleUser, "Hi there"},
			},
			want: []string{"user:Hi", "model:Hello", "user:Hi there"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var l transcript.Log
			for _, f := range tc.fragments {
				l.Append(f.role, f.text)
			}
			msgs := l.Messages()
			if len(msgs) != len(tc.want) {
				t.Fatalf("got %d messages %+v, want %v", len(msgs), msgs, tc.want)
			}
			for i, m := range msgs {
				if got := string(m.Role) + ":" + m.Text; got != tc.want[i] {
					t.Errorf("msgs[%d] = %q, want %q", i, got, tc.want[i])
				}
			}
		})
	}
}

func TestLog_AppendReportsNewMessage(t *testing.T) {
	t.Parallel()

	var l transcript.Log
	if !l.Append(transcript.RoleUser, "a") {
		t.Error("first Append should create a message")
	}
	if l.Append(transcript.RoleUser, "ab") {
		t.Error("coalesced Append should not create a message")
	}
	if !l.Append(transcript.RoleSystem, "Tool logCallback completed") {
		t.Error("role change should create a message")
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
}

func TestLog_CoalesceKeepsTimestamp(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := transcript.Log{Now: func() time.Time { return clock }}
	l.Append(transcript.RoleModel, "a")
	first := clock
	clock = clock.Add(time.Second)
	l.Append(transcript.RoleModel, "ab")

	msgs := l.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if last := msgs[0]; !last.Time.Equal(first) || last.Text != "ab" {
		t.Errorf("message = %+v, want text ab stamped %v", last, first)
	}
}

func TestLog_MessagesIsCopy(t *testing.T) {
	t.Parallel()

	var l transcript.Log
	l.Append(transcript.RoleUser, "x")
	msgs := l.Messages()
	msgs[0].Text = "mutated"
	if got := l.Messages()[0]; got.Text != "x" {
		t.Error("Messages exposed internal state")
	}
}

func TestLog_Empty(t *testing.T) {
	t.Parallel()

	var l transcript.Log
	if l.Len() != 0 {
		t.Errorf("Len on empty log = %d", l.Len())
	}
	if len(l.Messages()) != 0 {
		t.Error("Messages on empty log not empty")
	}
}

func TestLog_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	var l transcript.Log
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			role := transcript.RoleUser
			if i%2 == 0 {
				role = transcript.RoleModel
			}
			l.Append(role, "x")
		}()
	}
	wg.Wait()
	if l.Len() == 0 {
		t.Error("no messages after concurrent appends")
	}
}
