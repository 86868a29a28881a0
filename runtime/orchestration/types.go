// Package orchestration implements cross-bot dispatch: when the primary bot
// declines a turn, the Router polls candidate bots for their willingness to
// handle it, selects the best positive score, and forwards the turn; it also
// resumes previously established hand-offs. Peer failures are always
// downgraded to typed sentinel responses so the platform-level turn
// completes.
//
// Wire field names use camelCase JSON tags to conform to the peer protocol.
package orchestration

import "encoding/json"

type (
	// Status qualifies a no-response outcome.
	Status string

	// Metadata is the correlation triple attached to every orchestration
	// exchange.
	Metadata struct {
		// UserID identifies the end user the turn belongs to.
		UserID string `json:"userId"`
		// BotID identifies the bot the exchange is scoped to.
		BotID string `json:"botId"`
		// OrchestratorID identifies the orchestrating node.
		OrchestratorID string `json:"orchestratorId"`
	}

	// TargetBot identifies a candidate bot and how to reach it.
	TargetBot struct {
		// ID is the opaque bot identifier used in eligibility requests.
		ID string `json:"id"`
		// Label is the human-readable bot name.
		Label string `json:"label,omitempty"`
		// URL is the transport address for out-of-process bots.
		URL string `json:"url,omitempty"`
		// FallbackStory names the story to switch to when a hand-off to this
		// bot breaks. Empty means use the orchestrator's comeback story.
		FallbackStory string `json:"fallbackStory,omitempty"`
	}

	// EligibilityRequest asks candidate bots whether they can handle a turn.
	// EligibleTargets scopes the fan-out and never travels on the wire: the
	// request each bot receives is scoped to that bot alone.
	EligibilityRequest struct {
		// EligibleTargets lists the candidate bot ids, in preference order.
		EligibleTargets []string `json:"-"`
		// Payload is the opaque turn data evaluated by candidates.
		Payload json.RawMessage `json:"payload,omitempty"`
		// Action is the opaque user action the turn carries.
		Action json.RawMessage `json:"action,omitempty"`
		// Metadata is the correlation triple for the exchange.
		Metadata *Metadata `json:"metadata,omitempty"`
	}

	// ResumeRequest continues a conversation previously delegated to a peer.
	ResumeRequest struct {
		// TargetBot is the peer holding the hand-off.
		TargetBot TargetBot `json:"targetBot"`
		// Metadata is the correlation triple for the exchange.
		Metadata *Metadata `json:"metadata,omitempty"`
		// ContinuationPayload is the opaque turn data forwarded to the peer.
		ContinuationPayload json.RawMessage `json:"continuationPayload,omitempty"`
	}

	// BotResponseKind discriminates SecondaryBotResponse variants.
	BotResponseKind int

	// SecondaryBotResponse is a candidate bot's answer: either it is
	// available with a confidence score and a payload, or it reports a
	// no-response status. Use Available and NoResponse to construct values.
	//
	// The zero value has kind BotUnknown; it results from decoding an
	// unrecognized wire variant and is treated by callers as a degraded
	// response rather than an error.
	SecondaryBotResponse struct {
		kind     BotResponseKind
		score    float64
		payload  json.RawMessage
		status   Status
		metadata Metadata
	}

	// OrchestrationKind discriminates OrchestrationResponse variants.
	OrchestrationKind int

	// OrchestrationResponse is the Router's outcome: a peer's answer scoped
	// to its target identity, or a no-answer sentinel with a status. It is
	// never an error and never the result of an unbounded wait.
	OrchestrationResponse struct {
		kind     OrchestrationKind
		target   TargetBot
		response SecondaryBotResponse
		status   Status
	}

	// botResponseWire is the fail-soft wire form of SecondaryBotResponse.
	botResponseWire struct {
		Type     string          `json:"type"`
		Score    float64         `json:"score,omitempty"`
		Payload  json.RawMessage `json:"payload,omitempty"`
		Status   Status          `json:"status,omitempty"`
		Metadata *Metadata       `json:"metadata,omitempty"`
	}
)

const (
	// StatusNotAvailable indicates no candidate could (or would) answer.
	StatusNotAvailable Status = "NOT_AVAILABLE"
	// StatusEnd indicates the peer ended the delegated conversation.
	StatusEnd Status = "END"
	// StatusError indicates an unexpected outcome, such as an unresolved
	// target or a garbled reply.
	StatusError Status = "ERROR"
)

const (
	// BotUnknown is the zero kind; it marks an unrecognized wire variant.
	BotUnknown BotResponseKind = iota
	// BotAvailable indicates the bot can handle the turn.
	BotAvailable
	// BotNoResponse indicates the bot reports a no-response status.
	BotNoResponse
)

const (
	// OrchestrationAnswered indicates a peer answered the turn.
	OrchestrationAnswered OrchestrationKind = iota + 1
	// OrchestrationNone indicates no peer answered; Status carries why.
	OrchestrationNone
)

const (
	wireTypeAvailable  = "available"
	wireTypeNoResponse = "noResponse"
)

// Available returns a response from a bot willing to handle the turn with the
// given confidence score.
func Available(score float64, payload json.RawMessage, metadata Metadata) SecondaryBotResponse {
	return SecondaryBotResponse{
		kind:     BotAvailable,
		score:    score,
		payload:  payload,
		metadata: metadata,
	}
}

// NoResponse returns a response from a bot declining the turn with the given
// status.
func NoResponse(status Status, metadata Metadata) SecondaryBotResponse {
	return SecondaryBotResponse{kind: BotNoResponse, status: status, metadata: metadata}
}

// Kind returns the response variant.
func (r SecondaryBotResponse) Kind() BotResponseKind { return r.kind }

// Score returns the confidence score of an Available response. Only positive
// scores make a candidate eligible for selection.
func (r SecondaryBotResponse) Score() float64 { return r.score }

// Payload returns the answer payload of an Available response.
func (r SecondaryBotResponse) Payload() json.RawMessage { return r.payload }

// Status returns the status of a NoResponse response.
func (r SecondaryBotResponse) Status() Status { return r.status }

// Metadata returns the correlation triple echoed by the bot.
func (r SecondaryBotResponse) Metadata() Metadata { return r.metadata }

// MarshalJSON encodes the response in its wire form with nulls omitted.
func (r SecondaryBotResponse) MarshalJSON() ([]byte, error) {
	w := botResponseWire{Payload: r.payload}
	if r.metadata != (Metadata{}) {
		md := r.metadata
		w.Metadata = &md
	}
	switch r.kind {
	case BotAvailable:
		w.Type = wireTypeAvailable
		w.Score = r.score
	default:
		w.Type = wireTypeNoResponse
		w.Status = r.status
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form fail-soft: unknown fields are ignored
// and an unrecognized type yields a BotUnknown response rather than an error.
func (r *SecondaryBotResponse) UnmarshalJSON(data []byte) error {
	var w botResponseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var md Metadata
	if w.Metadata != nil {
		md = *w.Metadata
	}
	switch w.Type {
	case wireTypeAvailable:
		*r = Available(w.Score, w.Payload, md)
	case wireTypeNoResponse:
		*r = NoResponse(w.Status, md)
	default:
		*r = SecondaryBotResponse{}
	}
	return nil
}

// AnsweredBy returns a response carrying a peer's answer scoped to its target
// identity.
func AnsweredBy(target TargetBot, response SecondaryBotResponse) OrchestrationResponse {
	return OrchestrationResponse{
		kind:     OrchestrationAnswered,
		target:   target,
		response: response,
	}
}

// NoOrchestration returns the no-answer sentinel with the given status.
func NoOrchestration(status Status) OrchestrationResponse {
	return OrchestrationResponse{kind: OrchestrationNone, status: status}
}

// Kind returns the response variant.
func (r OrchestrationResponse) Kind() OrchestrationKind { return r.kind }

// Target returns the winning bot of an Answered response. The second return
// value is false for the sentinel variant.
func (r OrchestrationResponse) Target() (TargetBot, bool) {
	return r.target, r.kind == OrchestrationAnswered
}

// Response returns the winning bot's answer of an Answered response. The
// second return value is false for the sentinel variant.
func (r OrchestrationResponse) Response() (SecondaryBotResponse, bool) {
	return r.response, r.kind == OrchestrationAnswered
}

// Status returns the status of a no-answer sentinel. Answered responses
// return an empty status.
func (r OrchestrationResponse) Status() Status { return r.status }
