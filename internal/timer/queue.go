package timer

import (
	"strings"

	"github.com/google/uuid"
)

type TaskItem struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	CompletedCycles int    `json:"completedCycles"`
	TotalCycles     int    `json:"totalCycles"`
	IsCompleted     bool   `json:"isCompleted"`
}

// TaskQueue is the ordered list of tasks a student works through. Insertion
// order is display order.
type TaskQueue struct {
	items []TaskItem
	newID func() string
}

func NewTaskQueue(items []TaskItem) *TaskQueue {
	q := &TaskQueue{newID: uuid.NewString}
	q.replace(items)
	return q
}

func (q *TaskQueue) replace(items []TaskItem) {
	q.items = make([]TaskItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" || strings.TrimSpace(item.Text) == "" {
			continue
		}
		if item.TotalCycles < 1 {
			item.TotalCycles = 1
		}
		if item.CompletedCycles < 0 {
			item.CompletedCycles = 0
		}
		item.IsCompleted = item.CompletedCycles >= item.TotalCycles
		q.items = append(q.items, item)
	}
}

// Add appends a task. Blank text or a non-positive target is rejected and
// reported through the boolean.
func (q *TaskQueue) Add(text string, totalCycles int) (TaskItem, bool) {
	text = strings.TrimSpace(text)
	if text == "" || totalCycles < 1 {
		return TaskItem{}, false
	}
	item := TaskItem{
		ID:          q.newID(),
		Text:        text,
		TotalCycles: totalCycles,
	}
	q.items = append(q.items, item)
	return item, true
}

func (q *TaskQueue) Delete(id string) bool {
	for i := range q.items {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *TaskQueue) Rename(id, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	item := q.find(id)
	if item == nil {
		return false
	}
	item.Text = text
	return true
}

// RecordCompletedCycle credits one finished focus phase to the task and
// reports whether this credit completed it.
func (q *TaskQueue) RecordCompletedCycle(id string) (TaskItem, bool) {
	item := q.find(id)
	if item == nil {
		return TaskItem{}, false
	}
	wasCompleted := item.IsCompleted
	item.CompletedCycles++
	item.IsCompleted = item.CompletedCycles >= item.TotalCycles
	return *item, item.IsCompleted && !wasCompleted
}

func (q *TaskQueue) Find(id string) (TaskItem, bool) {
	item := q.find(id)
	if item == nil {
		return TaskItem{}, false
	}
	return *item, true
}

func (q *TaskQueue) HasIncomplete() bool {
	for _, item := range q.items {
		if !item.IsCompleted {
			return true
		}
	}
	return false
}

func (q *TaskQueue) Len() int {
	return len(q.items)
}

// Items returns a copy of the queue in display order.
func (q *TaskQueue) Items() []TaskItem {
	out := make([]TaskItem, len(q.items))
	copy(out, q.items)
	return out
}

func (q *TaskQueue) find(id string) *TaskItem {
	if id == "" {
		return nil
	}
	for i := range q.items {
		if q.items[i].ID == id {
			return &q.items[i]
		}
	}
	return nil
}
