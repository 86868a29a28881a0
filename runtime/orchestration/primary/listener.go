// Package primary implements the primary-bot side of orchestration: before
// the local decision engine handles a turn, the Listener checks whether an
// active hand-off exists for the user or whether the turn's intent should
// open one, and forwards the turn to a peer bot when it should.
package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dialogmesh/dialogmesh/features/handoff"
	"github.com/dialogmesh/dialogmesh/runtime/orchestration"
	"github.com/dialogmesh/dialogmesh/runtime/telemetry"
)

type (
	// Turn is the inbound user turn as seen by the primary bot.
	Turn struct {
		// UserID identifies the end user.
		UserID string
		// BotID identifies the primary bot.
		BotID string
		// Intent is the classified intent of the turn.
		Intent string
		// Action is the opaque user action forwarded to peers.
		Action json.RawMessage
		// Payload is the opaque turn data evaluated by peers for eligibility.
		Payload json.RawMessage
	}

	// Decision tells the conversation engine what to do with the turn.
	Decision struct {
		// Proceed is true when the local bot should handle the turn itself.
		Proceed bool
		// SwitchStory, when non-empty, hands control to the named story.
		SwitchStory string
	}

	// Relay delivers a peer bot's answers to the user.
	Relay interface {
		// Send emits one answer payload to the user.
		Send(ctx context.Context, payload json.RawMessage) error
		// End closes the turn on the channel.
		End(ctx context.Context) error
	}

	// Config declares when orchestration starts and stops.
	Config struct {
		// OrchestratorID identifies this node in exchange metadata.
		OrchestratorID string
		// EligibleTargets lists candidate bot ids, in preference order.
		EligibleTargets []string
		// StartIntents are the intents that open an orchestration attempt.
		StartIntents []string
		// StopIntents close an active hand-off and switch to ComebackStory.
		StopIntents []string
		// NoOrchestrationIntents close an active hand-off and let the local
		// bot answer.
		NoOrchestrationIntents []string
		// ComebackStory is the story resumed after a hand-off ends.
		ComebackStory string
	}

	// Listener decides, per turn, between the local bot and a peer.
	Listener struct {
		cfg          Config
		orchestrator orchestration.Orchestrator
		repo         handoff.Repository
		relay        Relay
		logger       telemetry.Logger

		startIntents map[string]struct{}
		stopIntents  map[string]struct{}
		noIntents    map[string]struct{}
	}

	// ListenerOption configures a Listener.
	ListenerOption func(*Listener)
)

// WithListenerLogger overrides the listener's logger.
func WithListenerLogger(logger telemetry.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewListener builds a Listener.
func NewListener(cfg Config, orchestrator orchestration.Orchestrator, repo handoff.Repository, relay Relay, opts ...ListenerOption) (*Listener, error) {
	if orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if repo == nil {
		return nil, errors.New("handoff repository is required")
	}
	if relay == nil {
		return nil, errors.New("relay is required")
	}
	l := &Listener{
		cfg:          cfg,
		orchestrator: orchestrator,
		repo:         repo,
		relay:        relay,
		logger:       telemetry.NewNoopLogger(),
		startIntents: intentSet(cfg.StartIntents),
		stopIntents:  intentSet(cfg.StopIntents),
		noIntents:    intentSet(cfg.NoOrchestrationIntents),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// StartTurn runs before the local decision engine. It resumes an active
// hand-off when one exists, opens one when the turn's intent is in the start
// list and a peer is eligible, and otherwise lets the local bot proceed.
// Repository failures propagate; orchestration failures degrade to the local
// bot.
func (l *Listener) StartTurn(ctx context.Context, turn Turn) (Decision, error) {
	current, err := l.repo.Get(ctx, turn.UserID)
	switch {
	case err == nil:
		return l.resumeHandoff(ctx, turn, current)
	case errors.Is(err, handoff.ErrNotFound):
		if _, ok := l.startIntents[turn.Intent]; !ok {
			return Decision{Proceed: true}, nil
		}
		return l.startHandoff(ctx, turn)
	default:
		return Decision{}, fmt.Errorf("load handoff for user %q: %w", turn.UserID, err)
	}
}

func (l *Listener) startHandoff(ctx context.Context, turn Turn) (Decision, error) {
	metadata := l.metadata(turn)
	eligibility := l.orchestrator.AskOrchestration(ctx, orchestration.EligibilityRequest{
		EligibleTargets: l.cfg.EligibleTargets,
		Payload:         turn.Payload,
		Action:          turn.Action,
		Metadata:        &metadata,
	})
	target, ok := eligibility.Target()
	if !ok {
		l.logger.Info(ctx, "no peer eligible, local bot continues",
			"user", turn.UserID, "intent", turn.Intent, "status", string(eligibility.Status()))
		return Decision{Proceed: true}, nil
	}

	first := l.orchestrator.ResumeOrchestration(ctx, orchestration.ResumeRequest{
		TargetBot:           target,
		Metadata:            &metadata,
		ContinuationPayload: turn.Action,
	})
	answer, ok := first.Response()
	if !ok {
		l.logger.Info(ctx, "eligible peer did not answer first action",
			"user", turn.UserID, "bot", target.ID, "status", string(first.Status()))
		return Decision{Proceed: true}, nil
	}

	if _, err := l.repo.Create(ctx, turn.UserID, target, answer.Metadata()); err != nil {
		return Decision{}, fmt.Errorf("create handoff for user %q: %w", turn.UserID, err)
	}
	l.logger.Info(ctx, "handoff started", "user", turn.UserID, "bot", target.ID)
	if err := l.relayAnswer(ctx, answer); err != nil {
		return Decision{}, err
	}
	return Decision{}, nil
}

func (l *Listener) resumeHandoff(ctx context.Context, turn Turn, current handoff.Handoff) (Decision, error) {
	if _, ok := l.stopIntents[turn.Intent]; ok {
		if err := l.repo.End(ctx, turn.UserID); err != nil {
			return Decision{}, fmt.Errorf("end handoff for user %q: %w", turn.UserID, err)
		}
		l.logger.Info(ctx, "handoff stopped by intent",
			"user", turn.UserID, "bot", current.TargetBot.ID, "intent", turn.Intent)
		return Decision{SwitchStory: l.cfg.ComebackStory}, nil
	}
	if _, ok := l.noIntents[turn.Intent]; ok {
		if err := l.repo.End(ctx, turn.UserID); err != nil {
			return Decision{}, fmt.Errorf("end handoff for user %q: %w", turn.UserID, err)
		}
		l.logger.Info(ctx, "handoff released to local bot",
			"user", turn.UserID, "bot", current.TargetBot.ID, "intent", turn.Intent)
		return Decision{Proceed: true}, nil
	}

	metadata := l.metadata(turn)
	resp := l.orchestrator.ResumeOrchestration(ctx, orchestration.ResumeRequest{
		TargetBot:           current.TargetBot,
		Metadata:            &metadata,
		ContinuationPayload: turn.Action,
	})
	answer, ok := resp.Response()
	if !ok {
		if err := l.repo.End(ctx, turn.UserID); err != nil {
			return Decision{}, fmt.Errorf("end handoff for user %q: %w", turn.UserID, err)
		}
		story := current.TargetBot.FallbackStory
		if story == "" {
			story = l.cfg.ComebackStory
		}
		l.logger.Info(ctx, "handoff broken, falling back",
			"user", turn.UserID, "bot", current.TargetBot.ID,
			"status", string(resp.Status()), "story", story)
		return Decision{SwitchStory: story}, nil
	}

	if _, err := l.repo.Update(ctx, turn.UserID, answer.Payload()); err != nil {
		return Decision{}, fmt.Errorf("update handoff for user %q: %w", turn.UserID, err)
	}
	if err := l.relayAnswer(ctx, answer); err != nil {
		return Decision{}, err
	}
	return Decision{}, nil
}

func (l *Listener) relayAnswer(ctx context.Context, answer orchestration.SecondaryBotResponse) error {
	if len(answer.Payload()) > 0 {
		if err := l.relay.Send(ctx, answer.Payload()); err != nil {
			return fmt.Errorf("relay peer answer: %w", err)
		}
	}
	if err := l.relay.End(ctx); err != nil {
		return fmt.Errorf("relay end of turn: %w", err)
	}
	return nil
}

func (l *Listener) metadata(turn Turn) orchestration.Metadata {
	return orchestration.Metadata{
		UserID:         turn.UserID,
		BotID:          turn.BotID,
		OrchestratorID: l.cfg.OrchestratorID,
	}
}

func intentSet(intents []string) map[string]struct{} {
	set := make(map[string]struct{}, len(intents))
	for _, intent := range intents {
		set[intent] = struct{}{}
	}
	return set
}
