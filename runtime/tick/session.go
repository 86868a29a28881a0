// Package tick implements session continuity for tick-style dialog flows.
//
// A Session is the per-(dialog, story) state record: the current position in
// the decision graph plus the facts and bookkeeping accumulated across turns.
// Sessions are resumed from the Dialog snapshot when one exists and is not
// finished, and recreated otherwise. Context supplied by the caller never
// overwrites facts already persisted in the session.
package tick

import (
	"context"
	"errors"
	"time"
)

type (
	// Session captures the state of one sub-dialog (story) within a dialog.
	//
	// Contract:
	//   - A session is created when no snapshot exists for the story or the
	//     stored snapshot is finished; otherwise it is resumed.
	//   - InitDate is the freshness watermark for entity evidence: only
	//     observations recorded strictly after it are admissible.
	//   - Finished sessions are terminal; resuming a finished story starts a
	//     new session.
	Session struct {
		// CurrentState identifies the current position in the decision graph.
		// Nil for a brand-new session.
		CurrentState *string
		// Contexts holds the key/value facts gathered across turns.
		Contexts map[string]string
		// RanHandlers lists the handlers already executed, in order.
		RanHandlers []string
		// ObjectivesStack holds pending sub-goals, most-recent last.
		ObjectivesStack []string
		// InitDate records when the session was created.
		InitDate time.Time
		// UnknownHandlingStep is decision-engine bookkeeping passed through
		// unchanged by this package.
		UnknownHandlingStep *string
		// HandlingStep is decision-engine bookkeeping passed through unchanged
		// by this package.
		HandlingStep *string
		// Finished is true once the decision engine reached a terminal state.
		Finished bool
	}

	// Dialog is the conversation-level aggregate owning the story snapshots.
	// At most one live Session snapshot exists per distinct story id.
	Dialog struct {
		// ID is the durable identifier of the dialog.
		ID string
		// TickStates maps story ids to their session snapshots.
		TickStates map[string]Session
		// LastUpdate records the last time the dialog was touched. It seeds
		// InitDate for sessions created during the current turn.
		LastUpdate time.Time
	}

	// Store persists dialogs keyed by dialog id. Implementations must
	// guarantee read-modify-write atomicity per (dialog, story) key;
	// last-writer-wins within one turn is acceptable because a given
	// conversation processes turns sequentially.
	Store interface {
		// LoadDialog loads a dialog. Returns ErrDialogNotFound when the dialog
		// does not exist.
		LoadDialog(ctx context.Context, dialogID string) (*Dialog, error)
		// SaveDialog persists the dialog and all its story snapshots.
		SaveDialog(ctx context.Context, dialog *Dialog) error
	}
)

// ErrDialogNotFound indicates a dialog does not exist in the store.
var ErrDialogNotFound = errors.New("dialog not found")

// Resume returns the session to use for the given story of the dialog.
//
// When no snapshot exists for storyID, or the stored snapshot is finished, a
// new session is returned with supplied as its contexts, empty bookkeeping,
// and the dialog's LastUpdate as InitDate. Otherwise the stored session is
// resumed: supplied entries are added only for keys absent from the stored
// contexts, and every other field carries over unchanged.
func Resume(dialog *Dialog, storyID string, supplied map[string]string) Session {
	stored, ok := dialog.TickStates[storyID]
	if !ok || stored.Finished {
		return Session{
			Contexts: cloneContexts(supplied),
			InitDate: dialog.LastUpdate,
		}
	}

	contexts := cloneContexts(stored.Contexts)
	for k, v := range supplied {
		if _, exists := contexts[k]; !exists {
			contexts[k] = v
		}
	}
	stored.Contexts = contexts
	stored.RanHandlers = cloneStrings(stored.RanHandlers)
	stored.ObjectivesStack = cloneStrings(stored.ObjectivesStack)
	return stored
}

// Commit overwrites the dialog's snapshot for storyID with the session's
// current fields. It must run after every turn, whether the turn continued or
// redirected, so state accumulated during the turn survives.
func Commit(dialog *Dialog, storyID string, session Session) {
	if dialog.TickStates == nil {
		dialog.TickStates = make(map[string]Session)
	}
	session.Contexts = cloneContexts(session.Contexts)
	session.RanHandlers = cloneStrings(session.RanHandlers)
	session.ObjectivesStack = cloneStrings(session.ObjectivesStack)
	dialog.TickStates[storyID] = session
}

// HasRun reports whether the named handler already executed in this session.
func (s Session) HasRun(handler string) bool {
	for _, h := range s.RanHandlers {
		if h == handler {
			return true
		}
	}
	return false
}

func cloneContexts(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
