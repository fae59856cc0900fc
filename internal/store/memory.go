package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/andresmedinaorbidi/clarity/internal/orchestrator"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	summary Summary
	data    []byte
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]memoryEntry)}
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, id string) (*orchestrator.State, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var st orchestrator.State
	if err := json.Unmarshal(e.data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, st *orchestrator.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", st.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[st.ID] = memoryEntry{summary: summarize(st), data: data}
	return nil
}

// List implements Store.
func (m *Memory) List(_ context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
