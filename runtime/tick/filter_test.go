package tick

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestFreshEntitiesBoundary verifies that only observations strictly newer
// than the session's init date are admissible.
func TestFreshEntitiesBoundary(t *testing.T) {
	initDate := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entities := map[string]EntityObservation{
		"stale":    {Value: strptr("old"), LastUpdate: initDate.Add(-time.Second)},
		"boundary": {Value: strptr("edge"), LastUpdate: initDate},
		"fresh":    {Value: strptr("new"), LastUpdate: initDate.Add(time.Second)},
		"no-value": {Value: nil, LastUpdate: initDate.Add(time.Second)},
	}

	fresh := FreshEntities(entities, initDate)

	require.Len(t, fresh, 2)
	require.Equal(t, strptr("new"), fresh["fresh"])

	// A fresh observation without a value still contributes its key.
	v, ok := fresh["no-value"]
	require.True(t, ok)
	require.Nil(t, v)
}

// TestFreshEntitiesEmptyInput verifies absent input yields an empty map.
func TestFreshEntitiesEmptyInput(t *testing.T) {
	fresh := FreshEntities(nil, time.Now())

	require.NotNil(t, fresh)
	require.Empty(t, fresh)
}
