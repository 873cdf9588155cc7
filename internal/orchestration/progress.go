package orchestration

import (
	"sync"
	"time"
)

// EventType identifies a progress event.
type EventType string

const (
	EventUnitStarted    EventType = "unit_started"
	EventPromptStarted  EventType = "prompt_started"
	EventPromptDone     EventType = "prompt_done"
	EventPromptCached   EventType = "prompt_cached"
	EventPromptFailed   EventType = "prompt_failed"
	EventScoreDone      EventType = "score_done"
	EventScoreFailed    EventType = "score_failed"
	EventFileFinalized  EventType = "file_finalized"
	EventUnitFailed     EventType = "unit_failed"
	EventUnitCompleted  EventType = "unit_completed"
	EventSinkPublishErr EventType = "sink_failed"
)

// ProgressEvent describes one step of a forwarding or scoring run. Unit names
// the file being produced, Item the prompt or response within it.
type ProgressEvent struct {
	EventType  EventType
	Unit       string
	Item       string
	ItemNum    int
	TotalItems int
	Duration   time.Duration
	Err        error
	Details    map[string]any
}

// ProgressListener receives progress events. Listeners may be called from
// several goroutines at once when units run concurrently.
type ProgressListener func(event ProgressEvent)

type notifier struct {
	progressMu sync.Mutex
	listeners  []ProgressListener
}

// OnProgress registers a listener.
func (n *notifier) OnProgress(listener ProgressListener) {
	n.progressMu.Lock()
	defer n.progressMu.Unlock()
	n.listeners = append(n.listeners, listener)
}

func (n *notifier) notifyProgress(event ProgressEvent) {
	n.progressMu.Lock()
	listeners := make([]ProgressListener, len(n.listeners))
	copy(listeners, n.listeners)
	n.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}
