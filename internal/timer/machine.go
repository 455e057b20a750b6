package timer

import "time"

// State is a point-in-time copy of the machine and its task queue.
type State struct {
	Phase                       Phase      `json:"phase"`
	RemainingSeconds            int        `json:"remainingSeconds"`
	Running                     bool       `json:"running"`
	FocusPhasesCompletedInCycle int        `json:"focusPhasesCompletedInCycle"`
	CycleNumber                 int        `json:"cycleNumber"`
	WidgetVisible               bool       `json:"widgetVisible"`
	ActiveTaskID                string     `json:"activeTaskId,omitempty"`
	Tasks                       []TaskItem `json:"tasks"`
}

// DefaultState is the state of a student who has never used the timer.
func DefaultState() State {
	return State{
		Phase:            PhaseFocus,
		RemainingSeconds: FocusDurationSeconds,
		CycleNumber:      1,
		Tasks:            []TaskItem{},
	}
}

// Machine is the focus/break state machine. It is not safe for concurrent
// use; the owning session serializes access.
type Machine struct {
	phase          Phase
	remaining      int
	running        bool
	focusCompleted int
	cycle          int
	widgetVisible  bool
	activeTaskID   string

	tasks    *TaskQueue
	notifier Notifier
}

func NewMachine(notifier Notifier) *Machine {
	return Restore(DefaultState(), notifier)
}

// Restore builds a machine from a saved state, pulling out-of-range fields
// back into range.
func Restore(st State, notifier Notifier) *Machine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	m := &Machine{
		phase:          st.Phase,
		remaining:      st.RemainingSeconds,
		running:        st.Running,
		focusCompleted: st.FocusPhasesCompletedInCycle,
		cycle:          st.CycleNumber,
		widgetVisible:  st.WidgetVisible,
		activeTaskID:   st.ActiveTaskID,
		tasks:          NewTaskQueue(st.Tasks),
		notifier:       notifier,
	}
	if !m.phase.Valid() {
		m.phase = PhaseFocus
		m.remaining = PhaseFocus.Duration()
	}
	if m.remaining < 0 {
		m.remaining = 0
	}
	if m.remaining > m.phase.Duration() {
		m.remaining = m.phase.Duration()
	}
	if m.focusCompleted < 0 || m.focusCompleted >= FocusPhasesPerCycle {
		m.focusCompleted = 0
	}
	if m.cycle < 1 {
		m.cycle = 1
	}
	return m
}

// SetNotifier swaps the side-effect sink, e.g. once a restored session is
// attached to a live connection.
func (m *Machine) SetNotifier(notifier Notifier) {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	m.notifier = notifier
}

func (m *Machine) State() State {
	st := m.timerState()
	st.ActiveTaskID = ""
	if _, ok := m.ActiveTask(); ok {
		st.ActiveTaskID = m.activeTaskID
	}
	st.Tasks = m.tasks.Items()
	return st
}

// timerState is what goes into the timer slot: raw fields, no tasks.
func (m *Machine) timerState() State {
	return State{
		Phase:                       m.phase,
		RemainingSeconds:            m.remaining,
		Running:                     m.running,
		FocusPhasesCompletedInCycle: m.focusCompleted,
		CycleNumber:                 m.cycle,
		WidgetVisible:               m.widgetVisible,
		ActiveTaskID:                m.activeTaskID,
	}
}

func (m *Machine) Running() bool {
	return m.running
}

func (m *Machine) Start() {
	m.running = true
	m.widgetVisible = true
	m.requestPermission()
}

func (m *Machine) Pause() {
	m.running = false
}

// Reset puts the timer back to a fresh focus phase. Tasks are kept.
func (m *Machine) Reset() {
	m.phase = PhaseFocus
	m.remaining = PhaseFocus.Duration()
	m.running = false
	m.focusCompleted = 0
	m.cycle = 1
	m.widgetVisible = false
	m.activeTaskID = ""
}

// Skip ends the current phase now, exactly as if it had run out.
func (m *Machine) Skip() {
	m.completePhase(true, time.Time{})
}

// Tick counts elapsed seconds off a running phase and reports whether the
// phase completed.
func (m *Machine) Tick(elapsed int) bool {
	return m.TickFrom(time.Time{}, elapsed)
}

// TickFrom is Tick for elapsed seconds counted from the instant from. A
// completion is stamped with the moment the phase ran out.
func (m *Machine) TickFrom(from time.Time, elapsed int) bool {
	if !m.running {
		return false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	left := m.remaining
	m.remaining -= elapsed
	if m.remaining > 0 {
		return false
	}
	m.remaining = 0
	var endedAt time.Time
	if !from.IsZero() {
		endedAt = from.Add(time.Duration(left) * time.Second)
	}
	m.completePhase(false, endedAt)
	return true
}

func (m *Machine) ShowWidget() {
	m.widgetVisible = true
}

func (m *Machine) HideWidget() {
	m.widgetVisible = false
}

func (m *Machine) AddTask(text string, totalCycles int) (TaskItem, bool) {
	return m.tasks.Add(text, totalCycles)
}

func (m *Machine) RenameTask(id, text string) bool {
	return m.tasks.Rename(id, text)
}

// DeleteTask removes a task, clearing the active reference when it pointed
// at that task.
func (m *Machine) DeleteTask(id string) bool {
	if !m.tasks.Delete(id) {
		return false
	}
	if m.activeTaskID == id {
		m.activeTaskID = ""
	}
	return true
}

// SetActiveTask points the timer at a task. An unknown id is accepted and
// behaves as no active task.
func (m *Machine) SetActiveTask(id string) {
	m.activeTaskID = id
}

func (m *Machine) ActiveTask() (TaskItem, bool) {
	return m.tasks.Find(m.activeTaskID)
}

func (m *Machine) Tasks() []TaskItem {
	return m.tasks.Items()
}

func (m *Machine) completePhase(skipped bool, endedAt time.Time) {
	ended := m.phase
	cycle := m.cycle
	next := Advance(ended, m.focusCompleted)

	var credited TaskItem
	finished := false
	if ended == PhaseFocus {
		m.focusCompleted = (m.focusCompleted + 1) % FocusPhasesPerCycle
		// Task progress lands before the phase fields move on.
		credited, finished = m.tasks.RecordCompletedCycle(m.activeTaskID)
		if finished {
			m.notify(Event{
				Kind:        EventTaskCompleted,
				Phase:       ended,
				CycleNumber: cycle,
				TaskID:      credited.ID,
				TaskText:    credited.Text,
				EndedAt:     endedAt,
			})
		}
		// A task that was already done when it got the credit is let go too.
		if credited.IsCompleted {
			m.activeTaskID = ""
		}
	}

	ev := Event{
		Kind:           EventPhaseCompleted,
		Phase:          ended,
		Next:           next,
		Skipped:        skipped,
		CycleNumber:    cycle,
		PlannedSeconds: ended.Duration(),
		TaskID:         credited.ID,
		TaskText:       credited.Text,
		EndedAt:        endedAt,
	}

	if credited.IsCompleted && !m.tasks.HasIncomplete() {
		m.Reset()
		m.widgetVisible = true
		ev.Kind = EventAllTasksCompleted
		ev.Next = PhaseFocus
		m.notify(ev)
		return
	}

	if ended == PhaseLongBreak && next == PhaseFocus {
		m.cycle++
	}
	m.phase = next
	m.remaining = next.Duration()
	m.running = false
	m.widgetVisible = true
	m.notify(ev)
}

func (m *Machine) notify(ev Event) {
	defer func() { _ = recover() }()
	m.notifier.Notify(ev)
}

func (m *Machine) requestPermission() {
	defer func() { _ = recover() }()
	m.notifier.RequestPermission()
}
