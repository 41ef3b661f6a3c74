package clip

import (
	"fmt"
	"sync"

	"go.klb.dev/csync/internal/frame"
)

// Memory is an in-process clipboard. Like a system clipboard it reports
// every change on Watch, including changes made through Write.
type Memory struct {
	mu      sync.Mutex
	content map[frame.Kind][]byte
	writes  []Item
	watchCh chan Item
	closed  bool
}

// NewMemory returns an empty in-process clipboard.
func NewMemory() *Memory {
	return &Memory{
		content: make(map[frame.Kind][]byte),
		watchCh: make(chan Item, watchBuffer),
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Read(kind frame.Kind) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content[kind], nil
}

// Write stores item and reports it on Watch.
func (m *Memory) Write(it Item) error {
	if !it.Kind.Valid() {
		return fmt.Errorf("unsupported clipboard kind: %s", it.Kind)
	}
	m.mu.Lock()
	m.writes = append(m.writes, it)
	m.mu.Unlock()
	m.set(it)
	return nil
}

// Copy simulates a user copying data into the clipboard.
func (m *Memory) Copy(kind frame.Kind, data []byte) {
	m.set(Item{Kind: kind, Data: data})
}

// Writes returns every item passed to Write, in order.
func (m *Memory) Writes() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item(nil), m.writes...)
}

func (m *Memory) Watch() <-chan Item { return m.watchCh }

func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.watchCh)
	}
}

func (m *Memory) set(it Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.content[it.Kind] = it.Data
	select {
	case m.watchCh <- it:
	default:
	}
}
