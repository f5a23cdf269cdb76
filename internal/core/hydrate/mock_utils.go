package hydrate

import (
	"context"

	"github.com/agenthands/storyline/internal/core/model"
)

type MockActivityStore struct {
	Activities map[string]model.Activity
	Extra      []model.Activity
	Err        error
	Requested  []string
}

func (m *MockActivityStore) Lookup(ctx context.Context, ids []string) ([]model.Activity, error) {
	m.Requested = ids
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.Activity
	for _, id := range ids {
		if a, ok := m.Activities[id]; ok {
			out = append(out, a)
		}
	}
	return append(out, m.Extra...), nil
}
