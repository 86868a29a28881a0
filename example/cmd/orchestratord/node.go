package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dialogmesh/dialogmesh/features/handoff"
	"github.com/dialogmesh/dialogmesh/runtime/orchestration"
	"github.com/dialogmesh/dialogmesh/runtime/orchestration/primary"
	"github.com/dialogmesh/dialogmesh/runtime/telemetry"
	"github.com/dialogmesh/dialogmesh/runtime/tick"
)

type (
	// turnRequest is the inbound turn accepted on POST /turns.
	turnRequest struct {
		UserID   string                       `json:"userId"`
		DialogID string                       `json:"dialogId"`
		StoryID  string                       `json:"storyId"`
		Intent   string                       `json:"intent"`
		Text     string                       `json:"text"`
		Context  map[string]string            `json:"context,omitempty"`
		Entities map[string]entityObservation `json:"entities,omitempty"`
	}

	entityObservation struct {
		Value      *string   `json:"value"`
		LastUpdate time.Time `json:"lastUpdate"`
	}

	// turnResponse reports what the node did with the turn.
	turnResponse struct {
		Messages    []string          `json:"messages,omitempty"`
		Answers     []json.RawMessage `json:"answers,omitempty"`
		SwitchStory string            `json:"switchStory,omitempty"`
		Handled     string            `json:"handled"`
	}

	// turnNode resolves turns: hand-off first, local tick engine otherwise.
	turnNode struct {
		cfg          primary.Config
		orchestrator orchestration.Orchestrator
		repo         handoff.Repository
		local        *localBot
		logger       telemetry.Logger
	}

	// captureRelay buffers peer answers for the HTTP response.
	captureRelay struct {
		answers []json.RawMessage
	}
)

func (r *captureRelay) Send(_ context.Context, payload json.RawMessage) error {
	r.answers = append(r.answers, payload)
	return nil
}

func (r *captureRelay) End(context.Context) error { return nil }

func (n *turnNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid turn payload", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.DialogID == "" || req.StoryID == "" {
		http.Error(w, "userId, dialogId and storyId are required", http.StatusBadRequest)
		return
	}

	relay := &captureRelay{}
	listener, err := primary.NewListener(n.cfg, n.orchestrator, n.repo, relay,
		primary.WithListenerLogger(n.logger))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	payload, _ := json.Marshal(req)
	decision, err := listener.StartTurn(ctx, primary.Turn{
		UserID:  req.UserID,
		BotID:   n.cfg.OrchestratorID,
		Intent:  req.Intent,
		Action:  payload,
		Payload: payload,
	})
	if err != nil {
		n.logger.Error(ctx, "turn failed", "user", req.UserID, "error", err)
		http.Error(w, "turn failed", http.StatusInternalServerError)
		return
	}

	resp := turnResponse{Answers: relay.answers, SwitchStory: decision.SwitchStory, Handled: "peer"}
	if decision.SwitchStory != "" {
		req.StoryID = decision.SwitchStory
		decision.Proceed = true
	}
	if decision.Proceed {
		messages, switchStory, err := n.local.runTurn(ctx, req)
		if err != nil {
			n.logger.Error(ctx, "local turn failed", "dialog", req.DialogID, "error", err)
			http.Error(w, "turn failed", http.StatusInternalServerError)
			return
		}
		resp.Messages = messages
		if switchStory != "" {
			resp.SwitchStory = switchStory
		}
		resp.Handled = "local"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// localBot answers turns with the tick session manager and exposes itself to
// peers through the orchestration wire protocol.
type localBot struct {
	id        string
	manager   *tick.Manager
	store     tick.Store
	logger    telemetry.Logger
	processor tick.Processor
}

func newLocalBot(id string, manager *tick.Manager, store tick.Store, logger telemetry.Logger) *localBot {
	return &localBot{
		id:        id,
		manager:   manager,
		store:     store,
		logger:    logger,
		processor: ackProcessor{},
	}
}

// Target implements orchestration.BotClient.
func (b *localBot) Target() orchestration.TargetBot {
	return orchestration.TargetBot{ID: b.id}
}

// AskEligibility implements orchestration.BotClient. The node volunteers for
// any turn carrying a recognized intent.
func (b *localBot) AskEligibility(_ context.Context, req orchestration.EligibilityRequest) (orchestration.SecondaryBotResponse, error) {
	var turn turnRequest
	md := orchestration.Metadata{UserID: "unknown", BotID: b.id, OrchestratorID: b.id}
	if req.Metadata != nil {
		md = *req.Metadata
	}
	if err := json.Unmarshal(req.Payload, &turn); err != nil || turn.Intent == "" {
		return orchestration.NoResponse(orchestration.StatusNotAvailable, md), nil
	}
	return orchestration.Available(1, nil, md), nil
}

// Resume implements orchestration.BotClient: a delegated turn runs through the
// local tick engine and the emitted messages travel back as the payload.
func (b *localBot) Resume(ctx context.Context, req orchestration.ResumeRequest) (orchestration.SecondaryBotResponse, error) {
	md := orchestration.Metadata{UserID: "unknown", BotID: b.id, OrchestratorID: b.id}
	if req.Metadata != nil {
		md = *req.Metadata
	}
	var turn turnRequest
	if err := json.Unmarshal(req.ContinuationPayload, &turn); err != nil {
		return orchestration.NoResponse(orchestration.StatusError, md), nil
	}
	messages, _, err := b.runTurn(ctx, turn)
	if err != nil {
		return orchestration.NoResponse(orchestration.StatusError, md), nil
	}
	payload, err := json.Marshal(map[string][]string{"messages": messages})
	if err != nil {
		return orchestration.NoResponse(orchestration.StatusError, md), nil
	}
	return orchestration.Available(1, payload, md), nil
}

// runTurn resolves one turn against the durable dialog and returns the emitted
// messages plus the redirect target, if any.
func (b *localBot) runTurn(ctx context.Context, req turnRequest) ([]string, string, error) {
	dialog, err := b.store.LoadDialog(ctx, req.DialogID)
	if errors.Is(err, tick.ErrDialogNotFound) {
		dialog = &tick.Dialog{ID: req.DialogID, LastUpdate: time.Now().UTC()}
	} else if err != nil {
		return nil, "", err
	}

	entities := make(map[string]tick.EntityObservation, len(req.Entities))
	for name, obs := range req.Entities {
		entities[name] = tick.EntityObservation{Value: obs.Value, LastUpdate: obs.LastUpdate}
	}
	sender := &tick.BufferedSender{}
	result, err := b.manager.RunTurn(ctx, dialog, tick.Turn{
		StoryID:         req.StoryID,
		SuppliedContext: req.Context,
		Entities:        entities,
		IntentName:      req.Intent,
	}, b.processor, sender)
	if err != nil {
		return nil, "", err
	}

	dialog.LastUpdate = time.Now().UTC()
	if err := b.store.SaveDialog(ctx, dialog); err != nil {
		return nil, "", err
	}
	target, _ := result.TargetStoryID()
	return sender.Sent, target, nil
}

// ackProcessor is the demo decision engine: it acknowledges the intent,
// records it as ran, and folds fresh entity values into the session contexts.
type ackProcessor struct{}

func (ackProcessor) Process(ctx context.Context, session *tick.Session, action *tick.TurnAction, sender tick.Sender) (tick.ProcessingResult, error) {
	for name, value := range action.FreshEntities {
		if value != nil {
			session.Contexts[name] = *value
		}
	}
	session.RanHandlers = append(session.RanHandlers, "ack:"+action.IntentName)
	if err := sender.SendPlainText(ctx, "understood: "+action.IntentName); err != nil {
		return tick.ProcessingResult{}, err
	}
	if err := sender.End(ctx); err != nil {
		return tick.ProcessingResult{}, err
	}
	return tick.ContinueWith(*session), nil
}
