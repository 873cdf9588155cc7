package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/anushabukke/peerBench-sub002/internal/signing"
)

// Artifact describes a finalized output file handed to sinks.
type Artifact struct {
	Path      string
	Kind      string
	RunID     string
	Records   int
	Failed    int
	Provider  string
	Model     string
	Scorer    string
	Sidecar   *signing.Sidecar
	CreatedAt time.Time
}

// Sink is notified after an output file and its sidecar are written.
type Sink interface {
	Name() string
	Publish(ctx context.Context, a Artifact) error
}

// publish hands a to every sink. A sink failure is logged and reported but
// never fails the run; the local files are already complete.
func publish(ctx context.Context, n *notifier, sinks []Sink, a Artifact) {
	for _, s := range sinks {
		if err := s.Publish(ctx, a); err != nil {
			slog.Warn("Publishing artifact failed", "sink", s.Name(), "path", a.Path, "error", err)
			n.notifyProgress(ProgressEvent{EventType: EventSinkPublishErr, Unit: a.Path, Err: err, Details: map[string]any{"sink": s.Name()}})
		}
	}
}
