package timer

import "time"

type EventKind string

const (
	EventPhaseCompleted    EventKind = "phase_completed"
	EventTaskCompleted     EventKind = "task_completed"
	EventAllTasksCompleted EventKind = "all_tasks_completed"
)

// Event describes something a student should be told about. Phase is the
// phase that just ended and Next the one the machine moved to. EndedAt is
// zero when the phase was cut short.
type Event struct {
	Kind           EventKind `json:"kind"`
	Phase          Phase     `json:"phase"`
	Next           Phase     `json:"next"`
	Skipped        bool      `json:"skipped"`
	CycleNumber    int       `json:"cycleNumber"`
	PlannedSeconds int       `json:"plannedSeconds"`
	TaskID         string    `json:"taskId,omitempty"`
	TaskText       string    `json:"taskText,omitempty"`
	EndedAt        time.Time `json:"endedAt,omitzero"`
}

// Notifier receives the machine's side effects. Implementations must not
// block; the machine never looks at what happens to a notification.
type Notifier interface {
	RequestPermission()
	Notify(Event)
}

type nopNotifier struct{}

func (nopNotifier) RequestPermission() {}
func (nopNotifier) Notify(Event)       {}

// Recorder keeps events in memory so callers can dispatch them after the
// state that produced them has been saved.
type Recorder struct {
	Events              []Event
	PermissionRequested bool
}

func (r *Recorder) RequestPermission() {
	r.PermissionRequested = true
}

func (r *Recorder) Notify(ev Event) {
	r.Events = append(r.Events, ev)
}

// Drain returns the recorded events and clears the recorder.
func (r *Recorder) Drain() ([]Event, bool) {
	events, asked := r.Events, r.PermissionRequested
	r.Events = nil
	r.PermissionRequested = false
	return events, asked
}
