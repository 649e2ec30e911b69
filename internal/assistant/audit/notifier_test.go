package audit

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ontime-erp/assistant/common/trace"
)

// stubSender records sent notices.
type stubSender struct {
	rooms    []string
	messages []string
	err      error
}

func (s *stubSender) SendNotice(roomID, message string) error {
	s.rooms = append(s.rooms, roomID)
	s.messages = append(s.messages, message)
	return s.err
}

func TestNotifyFormatsEvent(t *testing.T) {
	sender := &stubSender{}
	n := NewMatrixNotifier(sender, "!ops:example.org")

	n.Notify(context.Background(), Event{
		Kind:    KindCommandFailed,
		Actor:   "alice",
		Target:  "Customer",
		Message: "update failed",
		TraceID: "t_abc123",
	})

	if len(sender.messages) != 1 {
		t.Fatalf("sent %d notices, want 1", len(sender.messages))
	}
	if sender.rooms[0] != "!ops:example.org" {
		t.Errorf("room = %s", sender.rooms[0])
	}
	msg := sender.messages[0]
	for _, want := range []string{"Customer", "update failed", "trace: t_abc123", "actor: alice"} {
		if !strings.Contains(msg, want) {
			t.Errorf("notice %q missing %q", msg, want)
		}
	}
}

func TestNotifyTraceFromContext(t *testing.T) {
	sender := &stubSender{}
	n := NewMatrixNotifier(sender, "!ops:example.org")

	ctx := trace.WithTraceID(context.Background(), "t_fromctx")
	n.Notify(ctx, Event{Kind: KindError, Message: "boom"})

	if len(sender.messages) != 1 || !strings.Contains(sender.messages[0], "t_fromctx") {
		t.Errorf("notice = %v, want context trace id", sender.messages)
	}
}

func TestNotifyDisabledWithoutRoom(t *testing.T) {
	sender := &stubSender{}
	n := NewMatrixNotifier(sender, "")

	n.Notify(context.Background(), Event{Kind: KindError, Message: "boom"})
	if len(sender.messages) != 0 {
		t.Errorf("sent %d notices with no room configured", len(sender.messages))
	}
}

func TestNotifySwallowsSendErrors(t *testing.T) {
	sender := &stubSender{err: fmt.Errorf("homeserver unreachable")}
	n := NewMatrixNotifier(sender, "!ops:example.org")

	// Must not panic or propagate.
	n.Notify(context.Background(), Event{Kind: KindError, Message: "boom"})
}

func TestJobFailedHook(t *testing.T) {
	sender := &stubSender{}
	n := NewMatrixNotifier(sender, "!ops:example.org")

	n.JobFailed(context.Background(), "j1", "invoice.pdf", "model unavailable")

	if len(sender.messages) != 1 {
		t.Fatalf("sent %d notices, want 1", len(sender.messages))
	}
	msg := sender.messages[0]
	for _, want := range []string{"invoice.pdf", "j1", "model unavailable"} {
		if !strings.Contains(msg, want) {
			t.Errorf("notice %q missing %q", msg, want)
		}
	}
}
