package timer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const (
	SlotTimer         = "timer"
	SlotTasks         = "tasks"
	SlotNotifications = "notifications"

	// SchemaVersion tags every saved blob. Blobs with any other version are
	// treated as absent.
	SchemaVersion = 1
)

// SlotStore is the key-value persistence the timer writes to. LoadSlot
// returns a nil payload and no error when the slot has never been written.
type SlotStore interface {
	LoadSlot(ctx context.Context, owner, slot string) ([]byte, error)
	SaveSlot(ctx context.Context, owner, slot string, payload []byte) error
}

type timerRecord struct {
	Phase                       Phase      `json:"phase"`
	RemainingSeconds            int        `json:"remainingSeconds"`
	Running                     bool       `json:"running"`
	FocusPhasesCompletedInCycle int        `json:"focusPhasesCompletedInCycle"`
	CycleNumber                 int        `json:"cycleNumber"`
	WidgetVisible               bool       `json:"widgetVisible"`
	ActiveTaskID                *string    `json:"activeTaskId"`
	LastPersistedAt             *time.Time `json:"lastPersistedAt,omitempty"`
}

type timerEnvelope struct {
	Schema   int         `json:"schema"`
	Revision int         `json:"revision"`
	State    timerRecord `json:"state"`
}

type notificationsEnvelope struct {
	Schema     int    `json:"schema"`
	Permission string `json:"permission"`
}

type tasksEnvelope struct {
	Schema int        `json:"schema"`
	Tasks  []TaskItem `json:"tasks"`
}

// Snapshot is a machine brought back from storage.
type Snapshot struct {
	Machine  *Machine
	Revision int
	// Resumed is set when a countdown was running at save time and the
	// time since then has been applied.
	Resumed bool
	Elapsed int
	// CompletedOnResume is set when that elapsed time finished the phase.
	CompletedOnResume bool
	// TickedAt is the instant the machine's remaining time is measured
	// from. Later ticks count whole seconds since TickedAt.
	TickedAt time.Time
}

type Store struct {
	slots  SlotStore
	now    func() time.Time
	logger *slog.Logger
}

func NewStore(slots SlotStore, now func() time.Time, logger *slog.Logger) *Store {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{slots: slots, now: now, logger: logger}
}

// Load restores the owner's timer and tasks. Missing or unreadable slots
// fall back to defaults.
func (s *Store) Load(ctx context.Context, owner string, notifier Notifier) *Snapshot {
	now := s.now()

	st := DefaultState()
	rec, revision, ok := s.loadTimer(ctx, owner)
	if ok {
		st = rec.state()
	}
	// The tasks slot wins over anything else, and must be in place before
	// reconciliation so a focus phase finished while away is credited.
	st.Tasks = s.loadTasks(ctx, owner)

	snap := &Snapshot{
		Machine:  Restore(st, notifier),
		Revision: revision,
		TickedAt: now,
	}
	if !ok || !rec.Running || rec.LastPersistedAt == nil {
		return snap
	}

	stamp := *rec.LastPersistedAt
	elapsed := ElapsedSeconds(stamp, now)
	snap.Resumed = true
	snap.Elapsed = elapsed
	snap.CompletedOnResume = snap.Machine.TickFrom(stamp, elapsed)
	if !now.Before(stamp) {
		snap.TickedAt = stamp.Add(time.Duration(elapsed) * time.Second)
	}
	return snap
}

// Save writes both slots. tickedAt is the instant the remaining time was
// measured at and is only recorded while the countdown runs.
func (s *Store) Save(ctx context.Context, owner string, m *Machine, revision int, tickedAt time.Time) error {
	if err := s.SaveTasks(ctx, owner, m); err != nil {
		return err
	}
	return s.SaveTimer(ctx, owner, m, revision, tickedAt)
}

func (s *Store) SaveTimer(ctx context.Context, owner string, m *Machine, revision int, tickedAt time.Time) error {
	payload, err := encodeTimer(m.timerState(), revision, tickedAt)
	if err != nil {
		return err
	}
	if err := s.slots.SaveSlot(ctx, owner, SlotTimer, payload); err != nil {
		return fmt.Errorf("save timer slot: %w", err)
	}
	return nil
}

func (s *Store) SaveTasks(ctx context.Context, owner string, m *Machine) error {
	payload, err := encodeTasks(m.Tasks())
	if err != nil {
		return err
	}
	if err := s.slots.SaveSlot(ctx, owner, SlotTasks, payload); err != nil {
		return fmt.Errorf("save tasks slot: %w", err)
	}
	return nil
}

// LoadPermission returns the owner's saved desktop notification answer, or
// "" when there is none.
func (s *Store) LoadPermission(ctx context.Context, owner string) string {
	raw, err := s.slots.LoadSlot(ctx, owner, SlotNotifications)
	if err != nil {
		s.logger.Warn("notifications slot unreadable", "owner", owner, "error", err)
		return ""
	}
	if raw == nil {
		return ""
	}
	var env notificationsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Schema != SchemaVersion {
		s.logger.Warn("notifications slot corrupt", "owner", owner, "error", err)
		return ""
	}
	return env.Permission
}

func (s *Store) SavePermission(ctx context.Context, owner, permission string) error {
	payload, err := json.Marshal(notificationsEnvelope{Schema: SchemaVersion, Permission: permission})
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	if err := s.slots.SaveSlot(ctx, owner, SlotNotifications, payload); err != nil {
		return fmt.Errorf("save notifications slot: %w", err)
	}
	return nil
}

func (s *Store) loadTimer(ctx context.Context, owner string) (timerRecord, int, bool) {
	raw, err := s.slots.LoadSlot(ctx, owner, SlotTimer)
	if err != nil {
		s.logger.Warn("timer slot unreadable, using defaults", "owner", owner, "error", err)
		return timerRecord{}, 0, false
	}
	if raw == nil {
		return timerRecord{}, 0, false
	}
	rec, revision, err := decodeTimer(raw)
	if err != nil {
		s.logger.Warn("timer slot corrupt, using defaults", "owner", owner, "error", err)
		return timerRecord{}, 0, false
	}
	return rec, revision, true
}

func (s *Store) loadTasks(ctx context.Context, owner string) []TaskItem {
	raw, err := s.slots.LoadSlot(ctx, owner, SlotTasks)
	if err != nil {
		s.logger.Warn("tasks slot unreadable, starting empty", "owner", owner, "error", err)
		return []TaskItem{}
	}
	if raw == nil {
		return []TaskItem{}
	}
	tasks, err := decodeTasks(raw)
	if err != nil {
		s.logger.Warn("tasks slot corrupt, starting empty", "owner", owner, "error", err)
		return []TaskItem{}
	}
	return tasks
}

// ElapsedSeconds returns whole seconds from one instant to another. A clock
// that moved backwards yields zero.
func ElapsedSeconds(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func (r timerRecord) state() State {
	st := State{
		Phase:                       r.Phase,
		RemainingSeconds:            r.RemainingSeconds,
		Running:                     r.Running,
		FocusPhasesCompletedInCycle: r.FocusPhasesCompletedInCycle,
		CycleNumber:                 r.CycleNumber,
		WidgetVisible:               r.WidgetVisible,
	}
	if r.ActiveTaskID != nil {
		st.ActiveTaskID = *r.ActiveTaskID
	}
	return st
}

func encodeTimer(st State, revision int, tickedAt time.Time) ([]byte, error) {
	rec := timerRecord{
		Phase:                       st.Phase,
		RemainingSeconds:            st.RemainingSeconds,
		Running:                     st.Running,
		FocusPhasesCompletedInCycle: st.FocusPhasesCompletedInCycle,
		CycleNumber:                 st.CycleNumber,
		WidgetVisible:               st.WidgetVisible,
	}
	if st.ActiveTaskID != "" {
		id := st.ActiveTaskID
		rec.ActiveTaskID = &id
	}
	if st.Running {
		stamp := tickedAt.UTC()
		rec.LastPersistedAt = &stamp
	}
	payload, err := json.Marshal(timerEnvelope{Schema: SchemaVersion, Revision: revision, State: rec})
	if err != nil {
		return nil, fmt.Errorf("encode timer: %w", err)
	}
	return payload, nil
}

func decodeTimer(raw []byte) (timerRecord, int, error) {
	var env timerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return timerRecord{}, 0, fmt.Errorf("decode timer: %w", err)
	}
	if env.Schema != SchemaVersion {
		return timerRecord{}, 0, fmt.Errorf("decode timer: unsupported schema %d", env.Schema)
	}
	if !env.State.Phase.Valid() {
		return timerRecord{}, 0, fmt.Errorf("decode timer: unknown phase %q", env.State.Phase)
	}
	return env.State, env.Revision, nil
}

func encodeTasks(tasks []TaskItem) ([]byte, error) {
	if tasks == nil {
		tasks = []TaskItem{}
	}
	payload, err := json.Marshal(tasksEnvelope{Schema: SchemaVersion, Tasks: tasks})
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	return payload, nil
}

func decodeTasks(raw []byte) ([]TaskItem, error) {
	var env tasksEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	if env.Schema != SchemaVersion {
		return nil, fmt.Errorf("decode tasks: unsupported schema %d", env.Schema)
	}
	if env.Tasks == nil {
		env.Tasks = []TaskItem{}
	}
	return env.Tasks, nil
}
