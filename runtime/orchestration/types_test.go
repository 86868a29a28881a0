package orchestration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBotResponseCodecAvailable(t *testing.T) {
	md := Metadata{UserID: "u1", BotID: "banking", OrchestratorID: "orch"}
	resp := Available(7.5, json.RawMessage(`{"answer":"hi"}`), md)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"type": "available",
		"score": 7.5,
		"payload": {"answer":"hi"},
		"metadata": {"userId":"u1","botId":"banking","orchestratorId":"orch"}
	}`, string(data))

	var decoded SecondaryBotResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, BotAvailable, decoded.Kind())
	require.Equal(t, 7.5, decoded.Score())
	require.Equal(t, md, decoded.Metadata())
}

func TestBotResponseCodecNoResponse(t *testing.T) {
	resp := NoResponse(StatusEnd, Metadata{UserID: "u1", BotID: "b1", OrchestratorID: "orch"})

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"type": "noResponse",
		"status": "END",
		"metadata": {"userId":"u1","botId":"b1","orchestratorId":"orch"}
	}`, string(data))

	var decoded SecondaryBotResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, BotNoResponse, decoded.Kind())
	require.Equal(t, StatusEnd, decoded.Status())
}

// TestBotResponseDecodeFailSoft verifies that an unrecognized variant decodes
// to the zero value instead of failing, so a newer peer cannot break an older
// orchestrator.
func TestBotResponseDecodeFailSoft(t *testing.T) {
	var decoded SecondaryBotResponse
	require.NoError(t, json.Unmarshal([]byte(`{"type":"streaming","chunks":3}`), &decoded))
	require.Equal(t, BotUnknown, decoded.Kind())

	decoded = Available(1, nil, Metadata{})
	require.NoError(t, json.Unmarshal([]byte(`{}`), &decoded))
	require.Equal(t, BotUnknown, decoded.Kind())

	// Malformed JSON is still an error.
	require.Error(t, json.Unmarshal([]byte(`{"type":`), &decoded))
}

func TestBotResponseZeroValueOmitsMetadata(t *testing.T) {
	data, err := json.Marshal(NoResponse(StatusNotAvailable, Metadata{}))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"noResponse","status":"NOT_AVAILABLE"}`, string(data))
}

func TestEligibleTargetsNeverOnWire(t *testing.T) {
	req := EligibilityRequest{
		EligibleTargets: []string{"a", "b"},
		Payload:         json.RawMessage(`{"text":"hello"}`),
		Metadata:        &Metadata{UserID: "u1", BotID: "a", OrchestratorID: "orch"},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NotContains(t, string(data), "eligible")
	require.NotContains(t, string(data), `"a","b"`)
}

func TestOrchestrationResponseAccessors(t *testing.T) {
	answered := AnsweredBy(TargetBot{ID: "b1"}, Available(2, nil, Metadata{}))
	target, ok := answered.Target()
	require.True(t, ok)
	require.Equal(t, "b1", target.ID)
	_, ok = answered.Response()
	require.True(t, ok)
	require.Empty(t, answered.Status())

	none := NoOrchestration(StatusNotAvailable)
	_, ok = none.Target()
	require.False(t, ok)
	_, ok = none.Response()
	require.False(t, ok)
	require.Equal(t, StatusNotAvailable, none.Status())
}
