package tick

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type mapResolver map[string]string

func (r mapResolver) Resolve(_ context.Context, labelID string) (string, error) {
	text, ok := r[labelID]
	if !ok {
		return "", ErrLabelNotFound
	}
	return text, nil
}

type recordingSink struct {
	sent  []string
	ended bool
}

func (s *recordingSink) Send(_ context.Context, text string) error {
	s.sent = append(s.sent, text)
	return nil
}

func (s *recordingSink) End(context.Context) error {
	s.ended = true
	return nil
}

func TestLabelSenderResolvesAndEmits(t *testing.T) {
	sink := &recordingSink{}
	sender, err := NewLabelSender(mapResolver{"greeting": "Hello there"}, sink)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sender.SendByID(ctx, "greeting"))
	require.NoError(t, sender.SendPlainText(ctx, "anything else?"))
	require.NoError(t, sender.End(ctx))

	require.Equal(t, []string{"Hello there", "anything else?"}, sink.sent)
	require.True(t, sink.ended)
}

func TestLabelSenderEndByIDTerminates(t *testing.T) {
	sink := &recordingSink{}
	sender, err := NewLabelSender(mapResolver{"bye": "Goodbye"}, sink)
	require.NoError(t, err)

	require.NoError(t, sender.EndByID(context.Background(), "bye"))
	require.Equal(t, []string{"Goodbye"}, sink.sent)
	require.True(t, sink.ended)
}

// TestLabelSenderUnknownLabelIsFatal checks that an unresolvable label id
// surfaces as a ConfigurationError without emitting anything.
func TestLabelSenderUnknownLabelIsFatal(t *testing.T) {
	sink := &recordingSink{}
	sender, err := NewLabelSender(mapResolver{}, sink)
	require.NoError(t, err)

	err = sender.SendByID(context.Background(), "missing")
	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	require.Equal(t, "missing", confErr.LabelID)
	require.ErrorIs(t, err, ErrLabelNotFound)
	require.Empty(t, sink.sent)
	require.False(t, sink.ended)

	err = sender.EndByID(context.Background(), "missing")
	require.ErrorAs(t, err, &confErr)
	require.False(t, sink.ended)
}

func TestNewLabelSenderRequiresCollaborators(t *testing.T) {
	_, err := NewLabelSender(nil, &recordingSink{})
	require.Error(t, err)
	_, err = NewLabelSender(mapResolver{}, nil)
	require.Error(t, err)
}

func TestBufferedSenderRecordsTurn(t *testing.T) {
	sender := &BufferedSender{}
	ctx := context.Background()

	require.NoError(t, sender.SendByID(ctx, "label-1"))
	require.NoError(t, sender.SendPlainText(ctx, "plain"))
	require.False(t, sender.Ended)
	require.NoError(t, sender.EndPlainText(ctx, "done"))

	require.Equal(t, []string{"label-1", "plain", "done"}, sender.Sent)
	require.True(t, sender.Ended)
}

func TestConfigurationErrorNil(t *testing.T) {
	var e *ConfigurationError
	require.Empty(t, e.Error())
	require.NoError(t, errors.Unwrap(error(e)))
}
