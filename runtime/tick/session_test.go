package tick

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

// TestResumeDoesNotOverwriteStoredContexts verifies that supplied context only
// fills keys absent from the persisted session.
func TestResumeDoesNotOverwriteStoredContexts(t *testing.T) {
	dialog := &Dialog{
		ID: "d1",
		TickStates: map[string]Session{
			"faq": {
				CurrentState: strptr("collect"),
				Contexts:     map[string]string{"a": "1"},
				InitDate:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			},
		},
		LastUpdate: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	session := Resume(dialog, "faq", map[string]string{"a": "2", "b": "3"})

	require.Equal(t, map[string]string{"a": "1", "b": "3"}, session.Contexts)
	require.Equal(t, strptr("collect"), session.CurrentState)
	require.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), session.InitDate)
}

// TestResumeCreatesFreshSession verifies that an absent or finished snapshot
// yields a brand-new session seeded from the supplied context only.
func TestResumeCreatesFreshSession(t *testing.T) {
	lastUpdate := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		states map[string]Session
	}{
		{name: "no snapshot", states: nil},
		{
			name: "finished snapshot",
			states: map[string]Session{
				"faq": {
					CurrentState:    strptr("done"),
					Contexts:        map[string]string{"stale": "yes"},
					RanHandlers:     []string{"h1"},
					ObjectivesStack: []string{"goal"},
					Finished:        true,
				},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dialog := &Dialog{ID: "d1", TickStates: tc.states, LastUpdate: lastUpdate}

			session := Resume(dialog, "faq", map[string]string{"x": "y"})

			require.Equal(t, map[string]string{"x": "y"}, session.Contexts)
			require.Nil(t, session.CurrentState)
			require.Empty(t, session.RanHandlers)
			require.Empty(t, session.ObjectivesStack)
			require.Equal(t, lastUpdate, session.InitDate)
			require.False(t, session.Finished)
		})
	}
}

// TestResumeCarriesBookkeepingUnchanged verifies that all non-context fields
// pass through a resume untouched.
func TestResumeCarriesBookkeepingUnchanged(t *testing.T) {
	stored := Session{
		CurrentState:        strptr("s2"),
		Contexts:            map[string]string{"k": "v"},
		RanHandlers:         []string{"h1", "h2"},
		ObjectivesStack:     []string{"o1"},
		InitDate:            time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		UnknownHandlingStep: strptr("u"),
		HandlingStep:        strptr("h"),
	}
	dialog := &Dialog{ID: "d1", TickStates: map[string]Session{"faq": stored}}

	session := Resume(dialog, "faq", nil)

	require.Equal(t, stored.CurrentState, session.CurrentState)
	require.Equal(t, stored.RanHandlers, session.RanHandlers)
	require.Equal(t, stored.ObjectivesStack, session.ObjectivesStack)
	require.Equal(t, stored.InitDate, session.InitDate)
	require.Equal(t, stored.UnknownHandlingStep, session.UnknownHandlingStep)
	require.Equal(t, stored.HandlingStep, session.HandlingStep)
}

// TestResumeReturnsIndependentCopies verifies that mutating a resumed session
// does not leak into the dialog's stored snapshot.
func TestResumeReturnsIndependentCopies(t *testing.T) {
	dialog := &Dialog{
		ID: "d1",
		TickStates: map[string]Session{
			"faq": {
				Contexts:    map[string]string{"a": "1"},
				RanHandlers: []string{"h1"},
			},
		},
	}

	session := Resume(dialog, "faq", nil)
	session.Contexts["a"] = "mutated"
	session.RanHandlers[0] = "mutated"

	require.Equal(t, "1", dialog.TickStates["faq"].Contexts["a"])
	require.Equal(t, "h1", dialog.TickStates["faq"].RanHandlers[0])
}

// TestCommitOverwritesSnapshot verifies that Commit replaces the stored
// snapshot with the session's current fields.
func TestCommitOverwritesSnapshot(t *testing.T) {
	dialog := &Dialog{
		ID:         "d1",
		TickStates: map[string]Session{"faq": {Contexts: map[string]string{"old": "1"}}},
	}
	session := Session{
		CurrentState: strptr("s3"),
		Contexts:     map[string]string{"new": "2"},
		RanHandlers:  []string{"h1"},
		Finished:     true,
	}

	Commit(dialog, "faq", session)

	stored := dialog.TickStates["faq"]
	require.Equal(t, strptr("s3"), stored.CurrentState)
	require.Equal(t, map[string]string{"new": "2"}, stored.Contexts)
	require.Equal(t, []string{"h1"}, stored.RanHandlers)
	require.True(t, stored.Finished)

	// The snapshot owns its own copies.
	session.Contexts["new"] = "mutated"
	require.Equal(t, "2", dialog.TickStates["faq"].Contexts["new"])
}

// TestCommitInitializesStates verifies Commit works on a zero-value dialog.
func TestCommitInitializesStates(t *testing.T) {
	dialog := &Dialog{ID: "d1"}

	Commit(dialog, "faq", Session{Contexts: map[string]string{"a": "1"}})

	require.Len(t, dialog.TickStates, 1)
}

// TestHasRun exercises the handler bookkeeping helper.
func TestHasRun(t *testing.T) {
	session := Session{RanHandlers: []string{"h1", "h2"}}

	require.True(t, session.HasRun("h1"))
	require.False(t, session.HasRun("h3"))
}
