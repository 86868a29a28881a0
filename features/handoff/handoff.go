// Package handoff persists the active orchestration hand-off per user: which
// peer bot currently holds the conversation and what was last exchanged. A
// user has at most one active hand-off; ending it is what returns the
// conversation to the primary bot.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dialogmesh/dialogmesh/runtime/orchestration"
)

type (
	// Handoff records one delegated conversation.
	Handoff struct {
		// ID is the durable identifier of the hand-off.
		ID string `json:"id"`
		// UserID identifies the end user the hand-off belongs to.
		UserID string `json:"userId"`
		// TargetBot is the peer currently holding the conversation.
		TargetBot orchestration.TargetBot `json:"targetBot"`
		// Metadata is the correlation triple echoed by the peer when the
		// hand-off was established.
		Metadata orchestration.Metadata `json:"metadata"`
		// LastPayload is the most recent answer relayed through the hand-off.
		LastPayload json.RawMessage `json:"lastPayload,omitempty"`
		// CreatedAt records when the hand-off was established.
		CreatedAt time.Time `json:"createdAt"`
		// UpdatedAt records the last exchange through the hand-off.
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Repository persists hand-offs keyed by user id.
	Repository interface {
		// Create establishes a hand-off for the user, replacing any active
		// one.
		Create(ctx context.Context, userID string, target orchestration.TargetBot, metadata orchestration.Metadata) (Handoff, error)
		// Get returns the user's active hand-off. Returns ErrNotFound when
		// none is active.
		Get(ctx context.Context, userID string) (Handoff, error)
		// Update records the latest exchanged payload on the active hand-off.
		// Returns ErrNotFound when none is active.
		Update(ctx context.Context, userID string, payload json.RawMessage) (Handoff, error)
		// End removes the user's active hand-off. Ending an absent hand-off
		// is not an error.
		End(ctx context.Context, userID string) error
	}
)

// ErrNotFound indicates no active hand-off exists for the user.
var ErrNotFound = errors.New("handoff not found")
