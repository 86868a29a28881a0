// Package inmem provides an in-memory implementation of tick.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation (for example features/dialog/mongo).
package inmem

import (
	"context"
	"errors"
	"sync"

	"github.com/dialogmesh/dialogmesh/runtime/tick"
)

// Store is an in-memory implementation of tick.Store. It is safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	dialogs map[string]*tick.Dialog
}

// New returns an empty Store.
func New() *Store {
	return &Store{dialogs: make(map[string]*tick.Dialog)}
}

// LoadDialog implements tick.Store.
func (s *Store) LoadDialog(_ context.Context, dialogID string) (*tick.Dialog, error) {
	if dialogID == "" {
		return nil, errors.New("dialog id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dialogs[dialogID]
	if !ok {
		return nil, tick.ErrDialogNotFound
	}
	return cloneDialog(d), nil
}

// SaveDialog implements tick.Store.
func (s *Store) SaveDialog(_ context.Context, dialog *tick.Dialog) error {
	if dialog == nil {
		return errors.New("dialog is required")
	}
	if dialog.ID == "" {
		return errors.New("dialog id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dialogs[dialog.ID] = cloneDialog(dialog)
	return nil
}

func cloneDialog(d *tick.Dialog) *tick.Dialog {
	out := &tick.Dialog{
		ID:         d.ID,
		TickStates: make(map[string]tick.Session, len(d.TickStates)),
		LastUpdate: d.LastUpdate,
	}
	for story, session := range d.TickStates {
		// Commit clones the session's maps and slices.
		tick.Commit(out, story, session)
	}
	return out
}
