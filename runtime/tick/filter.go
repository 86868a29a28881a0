package tick

import "time"

// EntityObservation is a timestamped entity value produced by the NLP layer.
// Observations are event-sourced independently of sessions, so their
// timestamps must be checked against the session's InitDate before use.
type EntityObservation struct {
	// Value is the observed entity value. Nil when the entity was detected
	// without a usable value.
	Value *string
	// LastUpdate records when the observation was last refreshed.
	LastUpdate time.Time
}

// FreshEntities selects the observations admissible as evidence for a session
// created at initDate: only entries whose LastUpdate is strictly after
// initDate are kept, mapped to their value. A fresh observation with a nil
// value keeps its key. Without this filter, resuming a story after a finished
// session would replay evidence gathered before the new session existed.
func FreshEntities(entities map[string]EntityObservation, initDate time.Time) map[string]*string {
	fresh := make(map[string]*string, len(entities))
	for role, obs := range entities {
		if obs.LastUpdate.After(initDate) {
			fresh[role] = obs.Value
		}
	}
	return fresh
}
