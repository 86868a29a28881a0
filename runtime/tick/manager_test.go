package tick

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type processorFunc func(ctx context.Context, session *Session, action *TurnAction, sender Sender) (ProcessingResult, error)

func (f processorFunc) Process(ctx context.Context, session *Session, action *TurnAction, sender Sender) (ProcessingResult, error) {
	return f(ctx, session, action, sender)
}

// TestRunTurnCommitsContinueResult verifies that a Continue result's session
// becomes the stored snapshot.
func TestRunTurnCommitsContinueResult(t *testing.T) {
	dialog := &Dialog{ID: "d1", LastUpdate: time.Now().UTC()}
	processor := processorFunc(func(_ context.Context, session *Session, _ *TurnAction, _ Sender) (ProcessingResult, error) {
		session.Contexts["answered"] = "yes"
		session.RanHandlers = append(session.RanHandlers, "greet")
		return ContinueWith(*session), nil
	})

	result, err := NewManager().RunTurn(context.Background(), dialog, Turn{StoryID: "faq", IntentName: "hello"}, processor, &BufferedSender{})
	require.NoError(t, err)
	require.Equal(t, ResultContinue, result.Kind())

	stored := dialog.TickStates["faq"]
	require.Equal(t, "yes", stored.Contexts["answered"])
	require.Equal(t, []string{"greet"}, stored.RanHandlers)
}

// TestRunTurnCommitsBeforeRedirect verifies that state mutated during a
// redirecting turn is persisted for the originating story.
func TestRunTurnCommitsBeforeRedirect(t *testing.T) {
	dialog := &Dialog{
		ID: "d1",
		TickStates: map[string]Session{
			"faq": {Contexts: map[string]string{"a": "1"}, RanHandlers: []string{"h1"}},
		},
	}
	processor := processorFunc(func(_ context.Context, session *Session, _ *TurnAction, _ Sender) (ProcessingResult, error) {
		session.RanHandlers = append(session.RanHandlers, "h2")
		return RedirectTo("billing"), nil
	})

	result, err := NewManager().RunTurn(context.Background(), dialog, Turn{StoryID: "faq", IntentName: "pay"}, processor, &BufferedSender{})
	require.NoError(t, err)

	target, ok := result.TargetStoryID()
	require.True(t, ok)
	require.Equal(t, "billing", target)

	// The originating story reflects everything mutated during the turn.
	stored := dialog.TickStates["faq"]
	require.Equal(t, []string{"h1", "h2"}, stored.RanHandlers)
	require.Equal(t, "1", stored.Contexts["a"])
}

// TestRunTurnFiltersEntityEvidence verifies that the decision engine only
// sees observations newer than the session.
func TestRunTurnFiltersEntityEvidence(t *testing.T) {
	initDate := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dialog := &Dialog{ID: "d1", LastUpdate: initDate}

	var seen map[string]*string
	processor := processorFunc(func(_ context.Context, session *Session, action *TurnAction, _ Sender) (ProcessingResult, error) {
		seen = action.FreshEntities
		return ContinueWith(*session), nil
	})

	turn := Turn{
		StoryID:    "faq",
		IntentName: "ask",
		Entities: map[string]EntityObservation{
			"old": {Value: strptr("x"), LastUpdate: initDate.Add(-time.Minute)},
			"new": {Value: strptr("y"), LastUpdate: initDate.Add(time.Minute)},
		},
	}
	_, err := NewManager().RunTurn(context.Background(), dialog, turn, processor, &BufferedSender{})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	require.Equal(t, strptr("y"), seen["new"])
}

// TestRunTurnProcessorErrorAbortsWithoutCommit verifies that an aborted turn
// leaves the dialog untouched and propagates the error.
func TestRunTurnProcessorErrorAbortsWithoutCommit(t *testing.T) {
	dialog := &Dialog{ID: "d1"}
	boom := errors.New("boom")
	processor := processorFunc(func(_ context.Context, session *Session, _ *TurnAction, _ Sender) (ProcessingResult, error) {
		session.RanHandlers = append(session.RanHandlers, "late")
		return ProcessingResult{}, boom
	})

	_, err := NewManager().RunTurn(context.Background(), dialog, Turn{StoryID: "faq"}, processor, &BufferedSender{})
	require.ErrorIs(t, err, boom)
	require.Empty(t, dialog.TickStates)
}
