package run

import "fmt"

// Event is one entry in the ordered run stream the UI consumes: either
// a human-readable log line or a discrete progress tick. Events are
// delivered in emission order and never dropped; a slow consumer delays
// the worker rather than losing entries.
type Event struct {
	Line      string
	Completed int
	Total     int
}

// IsProgress reports whether the event is a progress tick.
func (e Event) IsProgress() bool { return e.Total > 0 }

func (e Event) String() string {
	if e.IsProgress() {
		return fmt.Sprintf("progress %d/%d", e.Completed, e.Total)
	}
	return e.Line
}

func logEvent(format string, args ...interface{}) Event {
	return Event{Line: fmt.Sprintf(format, args...)}
}

func progressEvent(completed, total int) Event {
	return Event{Completed: completed, Total: total}
}
