package timer

import (
	"context"
	"sync"
)

// MemorySlots is a SlotStore kept in process memory.
type MemorySlots struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func NewMemorySlots() *MemorySlots {
	return &MemorySlots{slots: make(map[string][]byte)}
}

func (m *MemorySlots) LoadSlot(_ context.Context, owner, slot string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.slots[owner+"/"+slot]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (m *MemorySlots) SaveSlot(_ context.Context, owner, slot string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.slots[owner+"/"+slot] = stored
	return nil
}

// Put stores a raw payload, bypassing encoding.
func (m *MemorySlots) Put(owner, slot string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[owner+"/"+slot] = payload
}
