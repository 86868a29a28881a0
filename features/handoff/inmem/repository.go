// Package inmem provides an in-memory implementation of handoff.Repository.
//
// It is intended for tests and local development. Production deployments
// should use a shared implementation (for example features/handoff/redis).
package inmem

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dialogmesh/dialogmesh/features/handoff"
	"github.com/dialogmesh/dialogmesh/runtime/orchestration"
)

// Repository is an in-memory implementation of handoff.Repository. It is safe
// for concurrent use.
type Repository struct {
	mu       sync.RWMutex
	handoffs map[string]handoff.Handoff
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{handoffs: make(map[string]handoff.Handoff)}
}

// Create implements handoff.Repository.
func (r *Repository) Create(_ context.Context, userID string, target orchestration.TargetBot, metadata orchestration.Metadata) (handoff.Handoff, error) {
	if userID == "" {
		return handoff.Handoff{}, errors.New("user id is required")
	}

	now := time.Now().UTC()
	h := handoff.Handoff{
		ID:        uuid.NewString(),
		UserID:    userID,
		TargetBot: target,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handoffs[userID] = h
	return h, nil
}

// Get implements handoff.Repository.
func (r *Repository) Get(_ context.Context, userID string) (handoff.Handoff, error) {
	if userID == "" {
		return handoff.Handoff{}, errors.New("user id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handoffs[userID]
	if !ok {
		return handoff.Handoff{}, handoff.ErrNotFound
	}
	return h, nil
}

// Update implements handoff.Repository.
func (r *Repository) Update(_ context.Context, userID string, payload json.RawMessage) (handoff.Handoff, error) {
	if userID == "" {
		return handoff.Handoff{}, errors.New("user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handoffs[userID]
	if !ok {
		return handoff.Handoff{}, handoff.ErrNotFound
	}
	h.LastPayload = payload
	h.UpdatedAt = time.Now().UTC()
	r.handoffs[userID] = h
	return h, nil
}

// End implements handoff.Repository.
func (r *Repository) End(_ context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handoffs, userID)
	return nil
}
