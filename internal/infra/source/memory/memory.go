// Package memory provides an in-process schema source backed by a map. It is
// the default driver for tests and for CLI runs seeded from a fixture file.
package memory

import (
	"context"
	"sync"

	"formsentry/pkg/domain"
)

// Source holds schema state in memory. Snapshot and Seed are safe for
// concurrent use.
type Source struct {
	mu    sync.RWMutex
	state domain.State
}

// New returns an empty in-memory source.
func New() *Source {
	return &Source{state: domain.NewState()}
}

// NewWithState returns a source seeded with a copy of the given state.
func NewWithState(state domain.State) *Source {
	return &Source{state: state.Clone()}
}

// Snapshot returns a deep copy of the current contents.
func (s *Source) Snapshot(ctx context.Context) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

// Seed replaces the contents with a copy of the given state.
func (s *Source) Seed(ctx context.Context, state domain.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	return nil
}

var (
	_ domain.SchemaSource = (*Source)(nil)
	_ domain.Seeder       = (*Source)(nil)
)
