package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "paralello/backend/internal/errors"
	"paralello/backend/internal/model"
	"paralello/backend/internal/notify"
	"paralello/backend/internal/timer"
)

const maxHistoryLimit = 200

// PhaseHistory stores finished phases.
type PhaseHistory interface {
	Insert(ctx context.Context, record *model.PhaseRecord) error
	List(ctx context.Context, userID string, limit int) ([]model.PhaseRecord, error)
}

type TimerService struct {
	store        *timer.Store
	history      PhaseHistory
	hub          *notify.Hub
	now          func() time.Time
	logger       *slog.Logger
	historyLimit int

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one owner's live timer. Every field is guarded by mu.
type session struct {
	mu       sync.Mutex
	owner    string
	machine  *timer.Machine
	recorder *timer.Recorder
	revision int
	// tickedAt is the instant the machine's remaining time was last
	// measured at.
	tickedAt time.Time
	dirty    bool
}

type StateView struct {
	Phase                       timer.Phase      `json:"phase"`
	PhaseLabel                  string           `json:"phaseLabel"`
	RemainingSeconds            int              `json:"remainingSeconds"`
	Clock                       string           `json:"clock"`
	Running                     bool             `json:"running"`
	FocusPhasesCompletedInCycle int              `json:"focusPhasesCompletedInCycle"`
	CycleNumber                 int              `json:"cycleNumber"`
	WidgetVisible               bool             `json:"widgetVisible"`
	ActiveTaskID                *string          `json:"activeTaskId"`
	Tasks                       []timer.TaskItem `json:"tasks"`
	NotificationPermission      string           `json:"notificationPermission"`
	Version                     int              `json:"version"`
	ServerTime                  time.Time        `json:"serverTime"`
}

type TimerOptions struct {
	Now          func() time.Time
	Logger       *slog.Logger
	HistoryLimit int
}

func NewTimerService(store *timer.Store, history PhaseHistory, hub *notify.Hub, opts TimerOptions) *TimerService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 || opts.HistoryLimit > maxHistoryLimit {
		opts.HistoryLimit = 50
	}
	return &TimerService{
		store:        store,
		history:      history,
		hub:          hub,
		now:          opts.Now,
		logger:       opts.Logger,
		historyLimit: opts.HistoryLimit,
		sessions:     make(map[string]*session),
	}
}

func (s *TimerService) GetState(ctx context.Context, owner string) (*StateView, *apperrors.APIError) {
	return s.do(ctx, owner, 0, nil)
}

// Start resumes the countdown. Starting a running timer only shows the
// widget again.
func (s *TimerService) Start(ctx context.Context, owner string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.do(ctx, owner, baseVersion, func(m *timer.Machine) (bool, *apperrors.APIError) {
		wasRunning, wasVisible := m.Running(), m.State().WidgetVisible
		m.Start()
		return !wasRunning || !wasVisible, nil
	})
}

func (s *TimerService) Pause(ctx context.Context, owner string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.do(ctx, owner, baseVersion, func(m *timer.Machine) (bool, *apperrors.APIError) {
		if !m.Running() {
			return false, nil
		}
		m.Pause()
		return true, nil
	})
}

func (s *TimerService) Reset(ctx context.Context, owner string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.do(ctx, owner, baseVersion, func(m *timer.Machine) (bool, *apperrors.APIError) {
		m.Reset()
		return true, nil
	})
}

func (s *TimerService) Skip(ctx context.Context, owner string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.do(ctx, owner, baseVersion, func(m *timer.Machine) (bool, *apperrors.APIError) {
		m.Skip()
		return true, nil
	})
}

func (s *TimerService) SetWidget(ctx context.Context, owner string, visible bool, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.do(ctx, owner, baseVersion, func(m *timer.Machine) (bool, *apperrors.APIError) {
		if m.State().WidgetVisible == visible {
			return false, nil
		}
		if visible {
			m.ShowWidget()
		} else {
			m.HideWidget()
		}
		return true, nil
	})
}

func (s *TimerService) AddTask(ctx context.Context, owner, text string, totalCycles int) (*StateView, *timer.TaskItem, *apperrors.APIError) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, apperrors.BadRequest("invalid_task", "task text is required")
	}
	if totalCycles < 1 {
		return nil, nil, apperrors.BadRequest("invalid_task", "totalCycles must be at least 1")
	}

	var created timer.TaskItem
	view, apiErr := s.do(ctx, owner, 0, func(m *timer.Machine) (bool, *apperrors.APIError) {
		item, ok := m.AddTask(text, totalCycles)
		if !ok {
			return false, apperrors.BadRequest("invalid_task", "task could not be added")
		}
		created = item
		return true, nil
	})
	if apiErr != nil {
		return nil, nil, apiErr
	}
	return view, &created, nil
}

func (s *TimerService) RenameTask(ctx context.Context, owner, taskID, text string) (*StateView, *apperrors.APIError) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.BadRequest("invalid_task", "task text is required")
	}
	return s.do(ctx, owner, 0, func(m *timer.Machine) (bool, *apperrors.APIError) {
		if !m.RenameTask(taskID, text) {
			return false, apperrors.NotFound("task_not_found", "task not found")
		}
		return true, nil
	})
}

func (s *TimerService) DeleteTask(ctx context.Context, owner, taskID string) (*StateView, *apperrors.APIError) {
	return s.do(ctx, owner, 0, func(m *timer.Machine) (bool, *apperrors.APIError) {
		if !m.DeleteTask(taskID) {
			return false, apperrors.NotFound("task_not_found", "task not found")
		}
		return true, nil
	})
}

// SetActiveTask points the timer at taskID, or at nothing when taskID is
// nil. An id that matches no task is stored and behaves as no active task.
func (s *TimerService) SetActiveTask(ctx context.Context, owner string, taskID *string, baseVersion int) (*StateView, *apperrors.APIError) {
	id := ""
	if taskID != nil {
		id = strings.TrimSpace(*taskID)
	}
	return s.do(ctx, owner, baseVersion, func(m *timer.Machine) (bool, *apperrors.APIError) {
		m.SetActiveTask(id)
		return true, nil
	})
}

// SetNotificationPermission records the student's answer to the desktop
// notification prompt. The answer outlives server restarts.
func (s *TimerService) SetNotificationPermission(ctx context.Context, owner, permission string) (*StateView, *apperrors.APIError) {
	p := notify.Permission(permission)
	if !p.Valid() {
		return nil, apperrors.BadRequest("invalid_permission", "permission must be one of default, granted, denied")
	}
	if _, apiErr := s.session(ctx, owner); apiErr != nil {
		return nil, apiErr
	}
	if err := s.store.SavePermission(ctx, owner, permission); err != nil {
		s.logger.Error("notification permission not saved", "owner", owner, "error", err)
		return nil, apperrors.Internal("failed to save notification permission")
	}
	if err := s.hub.SetPermission(owner, p); err != nil {
		return nil, apperrors.Internal("")
	}
	return s.do(ctx, owner, 0, nil)
}

// Subscribe loads the owner's session, so the driver keeps it moving, and
// attaches a notification listener.
func (s *TimerService) Subscribe(ctx context.Context, owner string) (<-chan notify.Message, func(), *apperrors.APIError) {
	if _, apiErr := s.session(ctx, owner); apiErr != nil {
		return nil, nil, apiErr
	}
	ch, cancel := s.hub.Subscribe(owner)
	return ch, cancel, nil
}

func (s *TimerService) GetHistory(ctx context.Context, owner string, limit int) ([]model.PhaseRecord, *apperrors.APIError) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = s.historyLimit
	}
	if s.history == nil {
		return []model.PhaseRecord{}, nil
	}
	records, err := s.history.List(ctx, owner, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to get history")
	}
	return records, nil
}

// Run ticks every loaded session until ctx is done.
func (s *TimerService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.TickAll(ctx)
		}
	}
}

// TickAll brings every running session up to the current time.
func (s *TimerService) TickAll(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		if !sess.machine.Running() && !sess.dirty {
			sess.mu.Unlock()
			continue
		}
		now := s.now()
		bumped := s.sync(sess, now)
		if err := s.flush(ctx, sess); err != nil {
			s.logger.Warn("timer state not saved", "owner", sess.owner, "error", err)
		}
		events, asked := sess.recorder.Drain()
		revision := sess.revision
		sess.mu.Unlock()

		s.dispatch(ctx, sess.owner, events, asked, revision, bumped, now)
	}
}

// do runs op against the owner's session after catching it up to the wall
// clock. op reports whether it changed the state.
func (s *TimerService) do(
	ctx context.Context,
	owner string,
	baseVersion int,
	op func(m *timer.Machine) (bool, *apperrors.APIError),
) (*StateView, *apperrors.APIError) {
	sess, apiErr := s.session(ctx, owner)
	if apiErr != nil {
		return nil, apiErr
	}

	sess.mu.Lock()
	now := s.now()
	bumped := s.sync(sess, now)

	var opErr *apperrors.APIError
	if opErr = s.ensureVersion(baseVersion, sess, now); opErr == nil && op != nil {
		changed, err := op(sess.machine)
		if err != nil {
			opErr = err
		} else if changed {
			sess.revision++
			sess.dirty = true
			bumped = true
		}
	}

	if err := s.flush(ctx, sess); err != nil {
		s.logger.Error("timer state not saved", "owner", owner, "error", err)
		if opErr == nil {
			opErr = apperrors.Internal("failed to save timer state")
		}
	}
	events, asked := sess.recorder.Drain()
	revision := sess.revision
	view := s.toStateView(sess, now)
	sess.mu.Unlock()

	s.dispatch(ctx, owner, events, asked, revision, bumped, now)
	if opErr != nil {
		return nil, opErr
	}
	return &view, nil
}

// session returns the owner's live session, loading it on first use.
func (s *TimerService) session(ctx context.Context, owner string) (*session, *apperrors.APIError) {
	if owner == "" {
		return nil, apperrors.Unauthorized("")
	}

	s.mu.Lock()
	sess, ok := s.sessions[owner]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	recorder := &timer.Recorder{}
	snap := s.store.Load(ctx, owner, recorder)
	loaded := &session{
		owner:    owner,
		machine:  snap.Machine,
		recorder: recorder,
		revision: snap.Revision,
		tickedAt: snap.TickedAt,
		dirty:    snap.Resumed && snap.Elapsed > 0,
	}
	if snap.CompletedOnResume {
		loaded.revision++
	}
	saved := s.store.LoadPermission(ctx, owner)
	if snap.Resumed {
		s.logger.Info("timer resumed", "owner", owner, "elapsed", snap.Elapsed, "completed", snap.CompletedOnResume)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[owner]; ok {
		return existing, nil
	}
	s.sessions[owner] = loaded
	if saved != "" {
		if err := s.hub.SetPermission(owner, notify.Permission(saved)); err != nil {
			s.logger.Warn("saved notification permission ignored", "owner", owner, "error", err)
		}
	}
	return loaded, nil
}

// sync applies whole seconds since tickedAt to a running machine and
// reports whether a phase completed. The sub-second remainder stays in
// tickedAt.
func (s *TimerService) sync(sess *session, now time.Time) bool {
	if !sess.machine.Running() || now.Before(sess.tickedAt) {
		sess.tickedAt = now
		return false
	}
	elapsed := timer.ElapsedSeconds(sess.tickedAt, now)
	if elapsed == 0 {
		return false
	}
	from := sess.tickedAt
	sess.tickedAt = from.Add(time.Duration(elapsed) * time.Second)
	sess.dirty = true
	if !sess.machine.TickFrom(from, elapsed) {
		return false
	}
	sess.revision++
	return true
}

func (s *TimerService) flush(ctx context.Context, sess *session) error {
	if !sess.dirty {
		return nil
	}
	if err := s.store.Save(ctx, sess.owner, sess.machine, sess.revision, sess.tickedAt); err != nil {
		return err
	}
	sess.dirty = false
	return nil
}

// dispatch hands events to listeners and history once the state that
// produced them is saved. Failures here are logged and dropped.
func (s *TimerService) dispatch(
	ctx context.Context,
	owner string,
	events []timer.Event,
	permissionAsked bool,
	revision int,
	changed bool,
	now time.Time,
) {
	s.hub.Dispatch(owner, events, permissionAsked)
	if changed {
		s.hub.StateChanged(owner, revision)
	}
	if s.history == nil {
		return
	}

	for _, ev := range events {
		if ev.Kind == timer.EventTaskCompleted {
			continue
		}
		endedAt := ev.EndedAt
		if endedAt.IsZero() {
			endedAt = now
		}
		record := &model.PhaseRecord{
			ID:             uuid.NewString(),
			UserID:         owner,
			Phase:          string(ev.Phase),
			PlannedSeconds: ev.PlannedSeconds,
			Outcome:        model.OutcomeCompleted,
			CycleNumber:    ev.CycleNumber,
			EndedAt:        endedAt.UTC(),
		}
		if ev.Skipped {
			record.Outcome = model.OutcomeSkipped
		}
		if ev.TaskID != "" {
			taskID := ev.TaskID
			record.TaskID = &taskID
		}
		if err := s.history.Insert(ctx, record); err != nil {
			s.logger.Warn("phase history not recorded", "owner", owner, "error", err)
		}
	}
}

func (s *TimerService) ensureVersion(baseVersion int, sess *session, now time.Time) *apperrors.APIError {
	if baseVersion <= 0 || baseVersion == sess.revision {
		return nil
	}
	view := s.toStateView(sess, now)
	return apperrors.Conflict("state_conflict", "state changed on another device", map[string]interface{}{
		"state": view,
	})
}

func (s *TimerService) toStateView(sess *session, now time.Time) StateView {
	st := sess.machine.State()
	view := StateView{
		Phase:                       st.Phase,
		PhaseLabel:                  st.Phase.Label(),
		RemainingSeconds:            st.RemainingSeconds,
		Clock:                       timer.FormatClock(st.RemainingSeconds),
		Running:                     st.Running,
		FocusPhasesCompletedInCycle: st.FocusPhasesCompletedInCycle,
		CycleNumber:                 st.CycleNumber,
		WidgetVisible:               st.WidgetVisible,
		Tasks:                       st.Tasks,
		NotificationPermission:      string(s.hub.Permission(sess.owner)),
		Version:                     sess.revision,
		ServerTime:                  now.UTC(),
	}
	if st.ActiveTaskID != "" {
		id := st.ActiveTaskID
		view.ActiveTaskID = &id
	}
	return view
}
