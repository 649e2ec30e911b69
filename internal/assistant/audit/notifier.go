// Package audit provides the operations-room notification subsystem.
//
// The SQLite audit log is the durable record; this package is the alerting
// side.  When configured with a Matrix room ID, the assistant posts concise
// human-readable summaries of failures — denied or broken commands, analysis
// jobs that could not complete — so operators hear about trouble without
// tailing the log.  Notifications carry the trace ID so the matching audit
// entry can be found immediately.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ontime-erp/assistant/common/trace"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindCommandFailed    Kind = "command.failed"
	KindPermissionDenied Kind = "command.denied"
	KindJobFailed        Kind = "job.failed"
	KindError            Kind = "error"
)

// Event carries the data that the notifier formats and sends.
type Event struct {
	// Kind identifies the type of event.
	Kind Kind
	// Actor is the user whose request triggered the event.
	Actor string
	// Target is the primary resource affected (record type, job ID, …).
	Target string
	// Message is a human-friendly description of what happened.
	Message string
	// TraceID ties the notification back to the audit log entry.
	// When empty the value is taken from the context.
	TraceID string
	// Timestamp defaults to time.Now() when zero.
	Timestamp time.Time
}

// Notifier sends operations-room notifications.  Implementations must not
// block the caller beyond a short timeout; send failures are logged, not
// propagated.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Sender is the subset of the Matrix client needed by MatrixNotifier.
// Defined as an interface so the notifier can be unit-tested independently.
type Sender interface {
	SendNotice(roomID, message string) error
}

// MatrixNotifier posts formatted notices to a Matrix operations room.
type MatrixNotifier struct {
	sender Sender
	roomID string
}

// NewMatrixNotifier creates a MatrixNotifier that posts to roomID via sender.
func NewMatrixNotifier(sender Sender, roomID string) *MatrixNotifier {
	return &MatrixNotifier{sender: sender, roomID: roomID}
}

// Notify formats evt as a human-readable notice and posts it to the room.
// Errors are logged at WARN level; the caller is never blocked.
func (n *MatrixNotifier) Notify(ctx context.Context, evt Event) {
	if n.roomID == "" {
		return
	}

	tid := evt.TraceID
	if tid == "" {
		tid = trace.FromContext(ctx)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	icon := kindIcon(evt.Kind)
	msg := fmt.Sprintf("%s [%s] %s", icon, evt.Kind, evt.Message)
	if evt.Target != "" {
		msg = fmt.Sprintf("%s %s → %s", icon, evt.Target, evt.Message)
	}
	if tid != "" {
		msg = fmt.Sprintf("%s\n  trace: %s", msg, tid)
	}
	if evt.Actor != "" {
		msg = fmt.Sprintf("%s\n  actor: %s", msg, evt.Actor)
	}

	if err := n.sender.SendNotice(n.roomID, msg); err != nil {
		slog.Warn("audit notifier: failed to send room notice",
			"room", n.roomID, "kind", evt.Kind, "err", err)
	} else {
		slog.Debug("audit notifier: sent notice", "room", n.roomID, "kind", evt.Kind)
	}
}

// JobFailed adapts the notifier to the analysis worker's failure hook.
func (n *MatrixNotifier) JobFailed(ctx context.Context, jobID, documentName, reason string) {
	n.Notify(ctx, Event{
		Kind:    KindJobFailed,
		Target:  documentName,
		Message: fmt.Sprintf("analysis job %s failed: %s", jobID, reason),
	})
}

// Noop is a no-op Notifier used when room notifications are disabled.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(_ context.Context, _ Event) {}

// JobFailed does nothing.
func (Noop) JobFailed(_ context.Context, _, _, _ string) {}

// kindIcon returns a Unicode icon for the event kind.
func kindIcon(k Kind) string {
	switch k {
	case KindCommandFailed:
		return "⚠️"
	case KindPermissionDenied:
		return "🚫"
	case KindJobFailed:
		return "📄"
	case KindError:
		return "🚨"
	default:
		return "ℹ️"
	}
}
