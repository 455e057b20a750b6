// Package notify fans timer notifications out to a student's open
// connections. Delivery is best effort: a slow listener loses messages
// rather than holding up the timer.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paralello/backend/internal/timer"
)

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

const (
	KindPermissionRequest = "permission_request"
	// KindStateChanged tells open clients to refetch the timer state.
	KindStateChanged = "state_changed"
)

func (p Permission) Valid() bool {
	switch p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return true
	}
	return false
}

type Message struct {
	Kind    string    `json:"kind"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Desktop bool      `json:"desktop"`
	Phase   string    `json:"phase,omitempty"`
	Next    string    `json:"next,omitempty"`
	TaskID  string    `json:"taskId,omitempty"`
	Version int       `json:"version,omitempty"`
	At      time.Time `json:"at"`
}

type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[int]chan Message
	permissions map[string]Permission
	nextID      int
	buffer      int
	now         func() time.Time
	logger      *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[int]chan Message),
		permissions: make(map[string]Permission),
		buffer:      buffer,
		now:         time.Now,
		logger:      logger,
	}
}

// Subscribe registers a listener for owner. The returned func unregisters it
// and closes the channel.
func (h *Hub) Subscribe(owner string) (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Message, h.buffer)
	if h.subscribers[owner] == nil {
		h.subscribers[owner] = make(map[int]chan Message)
	}
	h.subscribers[owner][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers[owner], id)
			if len(h.subscribers[owner]) == 0 {
				delete(h.subscribers, owner)
			}
			close(ch)
		})
	}
}

// Publish never blocks.
func (h *Hub) Publish(owner string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.At.IsZero() {
		msg.At = h.now().UTC()
	}
	msg.Desktop = h.permissions[owner] == PermissionGranted
	for _, ch := range h.subscribers[owner] {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("notification dropped", "owner", owner, "kind", msg.Kind)
		}
	}
}

func (h *Hub) Permission(owner string) Permission {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.permissions[owner]; ok {
		return p
	}
	return PermissionDefault
}

func (h *Hub) SetPermission(owner string, p Permission) error {
	if !p.Valid() {
		return fmt.Errorf("unknown permission %q", p)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.permissions[owner] = p
	return nil
}

// RequestPermission asks the student's client to prompt for desktop
// notifications, unless the student already answered.
func (h *Hub) RequestPermission(owner string) {
	if h.Permission(owner) != PermissionDefault {
		return
	}
	h.Publish(owner, Message{
		Kind:  KindPermissionRequest,
		Title: "Ativar notificações",
		Body:  "Permita notificações para saber quando cada fase terminar.",
	})
}

// StateChanged announces a new revision of the owner's timer state.
func (h *Hub) StateChanged(owner string, version int) {
	h.Publish(owner, Message{Kind: KindStateChanged, Version: version})
}

// Dispatch publishes what a timer operation produced.
func (h *Hub) Dispatch(owner string, events []timer.Event, permissionAsked bool) {
	if permissionAsked {
		h.RequestPermission(owner)
	}
	for _, ev := range events {
		h.Publish(owner, MessageFor(ev))
	}
}

func MessageFor(ev timer.Event) Message {
	msg := Message{
		Kind:   string(ev.Kind),
		Phase:  string(ev.Phase),
		Next:   string(ev.Next),
		TaskID: ev.TaskID,
	}
	switch ev.Kind {
	case timer.EventTaskCompleted:
		msg.Title = "Tarefa Concluída! 🎉"
		msg.Body = fmt.Sprintf("Parabéns! Você completou: %s", ev.TaskText)
	case timer.EventAllTasksCompleted:
		msg.Title = "Todas as tarefas concluídas!"
		msg.Body = "Parabéns! Você terminou todas as suas tarefas. O cronômetro foi reiniciado."
	default:
		msg.Title = "Pomodoro"
		if ev.Phase == timer.PhaseFocus {
			msg.Body = "Fase concluída! Hora de uma pausa."
		} else {
			msg.Body = "Pausa encerrada! Hora de voltar ao foco."
		}
	}
	return msg
}
