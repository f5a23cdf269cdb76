package core

import (
	"context"
	"sync"

	"github.com/agenthands/storyline/internal/core/common"
	"github.com/agenthands/storyline/internal/core/model"
)

// MockStore serves activities, clusters and personas from memory.
type MockStore struct {
	mu         sync.Mutex
	Activities map[string]model.Activity
	Clusters   map[string]model.Cluster
	Personas   map[string]model.Persona
	Err        error
	Lookups    int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Activities: map[string]model.Activity{},
		Clusters:   map[string]model.Cluster{},
		Personas:   map[string]model.Persona{},
	}
}

func (m *MockStore) Lookup(ctx context.Context, ids []string) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	if m.Err != nil {
		return nil, m.Err
	}
	var out []model.Activity
	for _, id := range ids {
		if a, ok := m.Activities[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockStore) GetCluster(ctx context.Context, id string) (model.Cluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Clusters[id]
	if !ok {
		return model.Cluster{}, common.ErrNotFound
	}
	return c, nil
}

func (m *MockStore) GetPersona(ctx context.Context, id string) (model.Persona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Personas[id]
	if !ok {
		return model.Persona{}, common.ErrNotFound
	}
	return p, nil
}
