package tick

import (
	"context"
	"errors"
	"fmt"
)

type (
	// Sender is the output channel handed to the decision engine. It
	// decouples the engine's send/end actions from any concrete messaging
	// channel (chat connector, test harness).
	//
	// End-suffixed operations mark the turn as terminated; Send-suffixed
	// operations may be followed by further sends within the same turn.
	Sender interface {
		// SendByID resolves labelID and emits the resolved content. A label
		// with no resolution is a configuration defect: the call fails with a
		// ConfigurationError and the turn aborts.
		SendByID(ctx context.Context, labelID string) error
		// EndByID behaves like SendByID then terminates the turn.
		EndByID(ctx context.Context, labelID string) error
		// SendPlainText emits literal text with no resolution step.
		SendPlainText(ctx context.Context, text string) error
		// EndPlainText behaves like SendPlainText then terminates the turn.
		EndPlainText(ctx context.Context, text string) error
		// End terminates the turn without emitting content.
		End(ctx context.Context) error
	}

	// LabelResolver resolves label ids to user-facing content. Implementations
	// return ErrLabelNotFound when the id has no resolution.
	LabelResolver interface {
		Resolve(ctx context.Context, labelID string) (string, error)
	}

	// Sink receives the outbound content produced by a Sender.
	Sink interface {
		// Send emits one message to the user.
		Send(ctx context.Context, text string) error
		// End closes the turn on the channel.
		End(ctx context.Context) error
	}

	// ConfigurationError reports a label id with no resolution. It is fatal to
	// the turn and is not retried.
	ConfigurationError struct {
		// LabelID is the id that failed to resolve.
		LabelID string
		// Err is the underlying resolution error.
		Err error
	}

	// LabelSender implements Sender over a LabelResolver and a Sink.
	LabelSender struct {
		resolver LabelResolver
		sink     Sink
	}

	// BufferedSender is a Sender that records everything it is asked to emit.
	// It backs test harnesses and channels that assemble the full turn before
	// flushing.
	BufferedSender struct {
		// Sent lists the emitted messages in order. Label sends record the
		// label id since no resolution is performed.
		Sent []string
		// Ended reports whether the turn was terminated.
		Ended bool
	}
)

// ErrLabelNotFound indicates a label id has no resolution.
var ErrLabelNotFound = errors.New("label not found")

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("label %q has no resolution: %v", e.LabelID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewLabelSender builds a Sender resolving label ids through resolver and
// emitting to sink.
func NewLabelSender(resolver LabelResolver, sink Sink) (*LabelSender, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	return &LabelSender{resolver: resolver, sink: sink}, nil
}

// SendByID implements Sender.
func (s *LabelSender) SendByID(ctx context.Context, labelID string) error {
	text, err := s.resolver.Resolve(ctx, labelID)
	if err != nil {
		return &ConfigurationError{LabelID: labelID, Err: err}
	}
	return s.sink.Send(ctx, text)
}

// EndByID implements Sender.
func (s *LabelSender) EndByID(ctx context.Context, labelID string) error {
	if err := s.SendByID(ctx, labelID); err != nil {
		return err
	}
	return s.sink.End(ctx)
}

// SendPlainText implements Sender.
func (s *LabelSender) SendPlainText(ctx context.Context, text string) error {
	return s.sink.Send(ctx, text)
}

// EndPlainText implements Sender.
func (s *LabelSender) EndPlainText(ctx context.Context, text string) error {
	if err := s.sink.Send(ctx, text); err != nil {
		return err
	}
	return s.sink.End(ctx)
}

// End implements Sender.
func (s *LabelSender) End(ctx context.Context) error {
	return s.sink.End(ctx)
}

// SendByID records the label id.
func (s *BufferedSender) SendByID(_ context.Context, labelID string) error {
	s.Sent = append(s.Sent, labelID)
	return nil
}

// EndByID records the label id and terminates the turn.
func (s *BufferedSender) EndByID(_ context.Context, labelID string) error {
	s.Sent = append(s.Sent, labelID)
	s.Ended = true
	return nil
}

// SendPlainText records the text.
func (s *BufferedSender) SendPlainText(_ context.Context, text string) error {
	s.Sent = append(s.Sent, text)
	return nil
}

// EndPlainText records the text and terminates the turn.
func (s *BufferedSender) EndPlainText(_ context.Context, text string) error {
	s.Sent = append(s.Sent, text)
	s.Ended = true
	return nil
}

// End terminates the turn.
func (s *BufferedSender) End(context.Context) error {
	s.Ended = true
	return nil
}
