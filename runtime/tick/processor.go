package tick

import "context"

type (
	// TurnAction is the input handed to the decision engine for one user turn.
	TurnAction struct {
		// IntentName is the classified intent of the turn.
		IntentName string
		// FreshEntities maps entity roles to their values, filtered by
		// FreshEntities so only evidence newer than the session is present.
		// A present key with a nil value means the entity was detected
		// without a usable value.
		FreshEntities map[string]*string
	}

	// Processor is the decision engine boundary. Implementations walk their
	// own decision graph; this package treats them as opaque.
	//
	// Process may mutate the session it is given (contexts gathered, handlers
	// ran, objectives pushed). The mutated session is committed after the
	// turn regardless of the result kind, so accumulated state survives a
	// redirect.
	Processor interface {
		Process(ctx context.Context, session *Session, action *TurnAction, sender Sender) (ProcessingResult, error)
	}

	// ResultKind discriminates ProcessingResult variants.
	ResultKind int

	// ProcessingResult is the outcome of one decision-engine invocation:
	// either the turn was handled and the session persists (Continue), or
	// control moves to another story (Redirect). Use ContinueWith and
	// RedirectTo to construct values.
	ProcessingResult struct {
		kind    ResultKind
		session Session
		target  string
	}
)

const (
	// ResultContinue indicates the turn was handled and the session persists.
	ResultContinue ResultKind = iota + 1
	// ResultRedirect indicates control moves to another story.
	ResultRedirect
)

// ContinueWith returns a result carrying the session to persist.
func ContinueWith(session Session) ProcessingResult {
	return ProcessingResult{kind: ResultContinue, session: session}
}

// RedirectTo returns a result moving control to the given story.
func RedirectTo(targetStoryID string) ProcessingResult {
	return ProcessingResult{kind: ResultRedirect, target: targetStoryID}
}

// Kind returns the result variant.
func (r ProcessingResult) Kind() ResultKind {
	return r.kind
}

// Session returns the session carried by a Continue result. The second return
// value is false for other variants.
func (r ProcessingResult) Session() (Session, bool) {
	return r.session, r.kind == ResultContinue
}

// TargetStoryID returns the redirect target carried by a Redirect result. The
// second return value is false for other variants.
func (r ProcessingResult) TargetStoryID() (string, bool) {
	return r.target, r.kind == ResultRedirect
}
