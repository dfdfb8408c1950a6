package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
)

type memReport struct {
	id   int64
	data []byte
}

// MemoryStorage is a GraphStorage held in process memory. Values are
// copied through JSON so callers never share state with the storage.
type MemoryStorage struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	spaces    map[string][]byte
	reports   map[string][]memReport
	nextID    int64
}

var _ GraphStorage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		snapshots: make(map[string][]byte),
		spaces:    make(map[string][]byte),
		reports:   make(map[string][]memReport),
	}
}

func (m *MemoryStorage) SaveSnapshot(_ context.Context, graphID string, snap *graph.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[graphID] = data
	return nil
}

func (m *MemoryStorage) LoadSnapshot(_ context.Context, graphID string) (*graph.Snapshot, error) {
	m.mu.Lock()
	data, ok := m.snapshots[graphID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoSnapshot
	}
	snap := new(graph.Snapshot)
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (m *MemoryStorage) DeleteGraph(_ context.Context, graphID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, graphID)
	delete(m.spaces, graphID)
	for key := range m.reports {
		if strings.HasPrefix(key, graphID+"/") {
			delete(m.reports, key)
		}
	}
	return nil
}

func (m *MemoryStorage) SaveSpace(_ context.Context, graphID string, space *embedding.Space) error {
	data, err := json.Marshal(space)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[graphID] = data
	return nil
}

// LoadSpace returns nil without error when no space was saved.
func (m *MemoryStorage) LoadSpace(_ context.Context, graphID string) (*embedding.Space, error) {
	m.mu.Lock()
	data, ok := m.spaces[graphID]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	space := new(embedding.Space)
	if err := json.Unmarshal(data, space); err != nil {
		return nil, err
	}
	return space, nil
}

func (m *MemoryStorage) SaveReport(_ context.Context, graphID, kind, _ string, _ uint64, report any) (int64, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	key := graphID + "/" + kind
	m.reports[key] = append(m.reports[key], memReport{id: m.nextID, data: data})
	return m.nextID, nil
}

func (m *MemoryStorage) LatestReport(_ context.Context, graphID, kind string, out any) error {
	m.mu.Lock()
	list := m.reports[graphID+"/"+kind]
	m.mu.Unlock()
	if len(list) == 0 {
		return ErrNoReport
	}
	return json.Unmarshal(list[len(list)-1].data, out)
}
