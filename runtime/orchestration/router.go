package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dialogmesh/dialogmesh/runtime/telemetry"
)

type (
	// BotClient is a candidate bot able to evaluate and answer turns. It is
	// implemented in-process by local bots and by httpclient.Client for
	// out-of-process bots.
	BotClient interface {
		// Target returns the bot's identity.
		Target() TargetBot
		// AskEligibility reports the bot's willingness to handle the turn.
		AskEligibility(ctx context.Context, req EligibilityRequest) (SecondaryBotResponse, error)
		// Resume continues a conversation previously delegated to the bot.
		Resume(ctx context.Context, req ResumeRequest) (SecondaryBotResponse, error)
	}

	// Orchestrator is the dispatch contract consumed by primary bots. Router
	// is the canonical implementation.
	Orchestrator interface {
		AskOrchestration(ctx context.Context, req EligibilityRequest) OrchestrationResponse
		ResumeOrchestration(ctx context.Context, req ResumeRequest) OrchestrationResponse
	}

	// Router dispatches turns across a registry of candidate bots. Both
	// operations complete within the configured per-call timeout and always
	// return a response, never an error: unreachable or misbehaving peers
	// degrade to no-response sentinels.
	Router struct {
		mu      sync.RWMutex
		clients map[string]BotClient

		timeout       time.Duration
		unknownTarget Status
		logger        telemetry.Logger
		metrics       telemetry.Metrics
		tracer        telemetry.Tracer
	}

	// RouterOption configures a Router.
	RouterOption func(*Router)
)

const defaultCallTimeout = 5 * time.Second

// WithCallTimeout bounds each candidate call. The default is 5s.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithUnknownTargetStatus sets the status returned when ResumeOrchestration
// is asked to reach a target bot absent from the registry. The default is
// StatusError.
func WithUnknownTargetStatus(status Status) RouterOption {
	return func(r *Router) {
		if status != "" {
			r.unknownTarget = status
		}
	}
}

// WithRouterLogger overrides the router's logger.
func WithRouterLogger(logger telemetry.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRouterMetrics overrides the router's metrics recorder.
func WithRouterMetrics(metrics telemetry.Metrics) RouterOption {
	return func(r *Router) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithRouterTracer overrides the router's tracer.
func WithRouterTracer(tracer telemetry.Tracer) RouterOption {
	return func(r *Router) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewRouter builds a Router over the given candidate bots. Later bots with a
// duplicate target id replace earlier ones.
func NewRouter(bots []BotClient, opts ...RouterOption) *Router {
	r := &Router{
		clients:       make(map[string]BotClient, len(bots)),
		timeout:       defaultCallTimeout,
		unknownTarget: StatusError,
		logger:        telemetry.NewNoopLogger(),
		metrics:       telemetry.NewNoopMetrics(),
		tracer:        telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	for _, bot := range bots {
		r.Register(bot)
	}
	return r
}

// Register adds a candidate bot to the registry, replacing any bot with the
// same target id.
func (r *Router) Register(bot BotClient) {
	if bot == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[bot.Target().ID] = bot
}

// AskOrchestration polls the request's eligible targets concurrently and
// selects the best candidate.
//
// Unknown target ids are silently dropped. Each resolved candidate is queried
// under the per-call timeout; a candidate that errors, times out, or returns
// an unrecognized reply scores as NOT_AVAILABLE. Only responses with a score
// strictly greater than zero are eligible; the maximum score wins and ties
// break in favor of the first candidate in the request's order. When no
// candidate is eligible the NOT_AVAILABLE sentinel is returned.
func (r *Router) AskOrchestration(ctx context.Context, req EligibilityRequest) OrchestrationResponse {
	ctx, span := r.tracer.Start(ctx, "orchestration.ask")
	defer span.End()
	start := time.Now()
	attemptID := uuid.NewString()

	candidates := r.resolve(ctx, req.EligibleTargets)
	span.AddEvent("candidates_resolved",
		"requested", len(req.EligibleTargets), "resolved", len(candidates))
	if len(candidates) == 0 {
		r.metrics.IncCounter("orchestration_ask_total", 1, "outcome", "no_candidates")
		return NoOrchestration(StatusNotAvailable)
	}

	responses := make([]SecondaryBotResponse, len(candidates))
	var wg sync.WaitGroup
	for i, bot := range candidates {
		wg.Add(1)
		go func(i int, bot BotClient) {
			defer wg.Done()
			responses[i] = r.askOne(ctx, bot, req, attemptID)
		}(i, bot)
	}
	wg.Wait()

	best := -1
	for i, resp := range responses {
		if resp.Kind() != BotAvailable || resp.Score() <= 0 {
			continue
		}
		// Strict comparison keeps the first candidate on ties.
		if best < 0 || resp.Score() > responses[best].Score() {
			best = i
		}
	}
	r.metrics.RecordTimer("orchestration_ask_duration", time.Since(start))
	if best < 0 {
		r.metrics.IncCounter("orchestration_ask_total", 1, "outcome", "not_available")
		r.logger.Info(ctx, "no eligible candidate",
			"attempt", attemptID, "candidates", len(candidates))
		return NoOrchestration(StatusNotAvailable)
	}

	winner := candidates[best]
	r.metrics.IncCounter("orchestration_ask_total", 1, "outcome", "answered")
	r.logger.Info(ctx, "candidate selected",
		"attempt", attemptID, "bot", winner.Target().ID, "score", responses[best].Score())
	return AnsweredBy(winner.Target(), responses[best])
}

// ResumeOrchestration forwards the turn to the hand-off's target bot.
//
// An unresolved target yields the configured unknown-target status. The call
// is bounded by the per-call timeout; Available maps to an answer scoped to
// the target, a no-response status maps through, and any other outcome
// (transport error, garbled reply) maps to ERROR. Errors never escape.
func (r *Router) ResumeOrchestration(ctx context.Context, req ResumeRequest) OrchestrationResponse {
	ctx, span := r.tracer.Start(ctx, "orchestration.resume")
	defer span.End()

	r.mu.RLock()
	bot, ok := r.clients[req.TargetBot.ID]
	r.mu.RUnlock()
	if !ok {
		r.metrics.IncCounter("orchestration_resume_total", 1, "outcome", "unknown_target")
		r.logger.Warn(ctx, "resume target not registered", "bot", req.TargetBot.ID)
		return NoOrchestration(r.unknownTarget)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := bot.Resume(callCtx, req)
	if err != nil {
		r.metrics.IncCounter("orchestration_resume_total", 1, "outcome", "error")
		r.logger.Warn(ctx, "resume failed", "bot", req.TargetBot.ID, "error", err)
		return NoOrchestration(StatusError)
	}
	switch resp.Kind() {
	case BotAvailable:
		r.metrics.IncCounter("orchestration_resume_total", 1, "outcome", "answered")
		return AnsweredBy(bot.Target(), resp)
	case BotNoResponse:
		r.metrics.IncCounter("orchestration_resume_total", 1, "outcome", string(resp.Status()))
		return NoOrchestration(resp.Status())
	default:
		r.metrics.IncCounter("orchestration_resume_total", 1, "outcome", "garbled")
		return NoOrchestration(StatusError)
	}
}

// resolve maps target ids to registered clients, preserving request order and
// dropping unknown ids.
func (r *Router) resolve(ctx context.Context, ids []string) []BotClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	candidates := make([]BotClient, 0, len(ids))
	for _, id := range ids {
		bot, ok := r.clients[id]
		if !ok {
			r.logger.Debug(ctx, "dropping unknown candidate", "bot", id)
			continue
		}
		candidates = append(candidates, bot)
	}
	return candidates
}

// askOne queries a single candidate under the per-call timeout. The result is
// always a usable response: errors, timeouts, and unrecognized replies
// degrade to NOT_AVAILABLE. A call still in flight when the timeout fires is
// abandoned, not cancelled server-side.
func (r *Router) askOne(ctx context.Context, bot BotClient, req EligibilityRequest, attemptID string) SecondaryBotResponse {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	scoped := req
	scoped.EligibleTargets = nil

	done := make(chan SecondaryBotResponse, 1)
	go func() {
		resp, err := bot.AskEligibility(callCtx, scoped)
		if err != nil {
			r.logger.Warn(ctx, "eligibility call failed",
				"attempt", attemptID, "bot", bot.Target().ID, "error", err)
			resp = NoResponse(StatusNotAvailable, r.fallbackMetadata(req, bot.Target()))
		}
		done <- resp
	}()

	select {
	case resp := <-done:
		if resp.Kind() == BotUnknown {
			return NoResponse(StatusNotAvailable, r.fallbackMetadata(req, bot.Target()))
		}
		return resp
	case <-callCtx.Done():
		r.logger.Warn(ctx, "eligibility call timed out",
			"attempt", attemptID, "bot", bot.Target().ID)
		return NoResponse(StatusNotAvailable, r.fallbackMetadata(req, bot.Target()))
	}
}

func (r *Router) fallbackMetadata(req EligibilityRequest, target TargetBot) Metadata {
	if req.Metadata != nil {
		return *req.Metadata
	}
	return Metadata{UserID: "unknown", BotID: target.ID, OrchestratorID: "orchestrator"}
}

// Router implements Orchestrator.
var _ Orchestrator = (*Router)(nil)
