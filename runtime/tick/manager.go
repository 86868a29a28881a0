package tick

import (
	"context"
	"fmt"

	"github.com/dialogmesh/dialogmesh/runtime/telemetry"
)

type (
	// Turn describes one inbound user turn for a given story.
	Turn struct {
		// StoryID identifies the sub-dialog this turn belongs to.
		StoryID string
		// SuppliedContext is caller-provided context merged into the session
		// under the non-overwrite rule.
		SuppliedContext map[string]string
		// Entities are the entity observations available for the turn, before
		// freshness filtering.
		Entities map[string]EntityObservation
		// IntentName is the classified intent of the turn.
		IntentName string
	}

	// Manager drives the turn-resolution path: resume the session, filter
	// entity evidence, invoke the decision engine, and commit the snapshot.
	// The path is synchronous per conversation turn; different conversations
	// run concurrently on their own Dialog.
	Manager struct {
		logger telemetry.Logger
	}

	// ManagerOption configures a Manager.
	ManagerOption func(*Manager)
)

// WithLogger overrides the manager's logger. The default discards messages.
func WithLogger(logger telemetry.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager builds a Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{logger: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// RunTurn resolves one turn against the dialog.
//
// The session for turn.StoryID is resumed (or created), entity evidence is
// filtered against its InitDate, and the decision engine is invoked. The
// session snapshot is committed before the result is returned, so a Redirect
// is only acted upon after the originating story's accumulated state is
// persisted in the dialog. A processor error aborts the turn: nothing is
// committed and the error propagates unchanged.
func (m *Manager) RunTurn(ctx context.Context, dialog *Dialog, turn Turn, processor Processor, sender Sender) (ProcessingResult, error) {
	session := Resume(dialog, turn.StoryID, turn.SuppliedContext)
	action := &TurnAction{
		IntentName:    turn.IntentName,
		FreshEntities: FreshEntities(turn.Entities, session.InitDate),
	}
	m.logger.Debug(ctx, "processing turn",
		"dialog", dialog.ID, "story", turn.StoryID,
		"intent", turn.IntentName, "fresh_entities", len(action.FreshEntities))

	result, err := processor.Process(ctx, &session, action, sender)
	if err != nil {
		return ProcessingResult{}, fmt.Errorf("process turn for story %q: %w", turn.StoryID, err)
	}

	switch result.Kind() {
	case ResultContinue:
		updated, _ := result.Session()
		Commit(dialog, turn.StoryID, updated)
	case ResultRedirect:
		// The processor mutates the session it is handed; those mutations
		// must survive even though control moves to another story.
		Commit(dialog, turn.StoryID, session)
		target, _ := result.TargetStoryID()
		m.logger.Info(ctx, "turn redirected",
			"dialog", dialog.ID, "story", turn.StoryID, "target", target)
	default:
		return ProcessingResult{}, fmt.Errorf("process turn for story %q: unknown result kind %d", turn.StoryID, result.Kind())
	}
	return result, nil
}
