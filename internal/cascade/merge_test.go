package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaakkos/synapse/internal/domain"
)

func TestJoinAndLeaveFileRoster(t *testing.T) {
	e := testCascade(t)

	roster := e.JoinFile("src/api.ts", "backend-1")
	assert.Equal(t, []string{"backend-1"}, roster)

	roster = e.JoinFile("src/api.ts", "frontend-1")
	assert.Equal(t, []string{"backend-1", "frontend-1"}, roster)

	e.LeaveFile("src/api.ts", "backend-1")
	assert.Equal(t, []string{"frontend-1"}, e.Editors("src/api.ts"))

	e.LeaveFile("src/api.ts", "frontend-1")
	assert.Empty(t, e.Editors("src/api.ts"))
}

func TestNonOverlappingChangesAccumulate(t *testing.T) {
	e := testCascade(t)

	res, err := e.ProposeChange("src/api.ts", "a1", 0, 10, "header")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.Merged)

	res, err = e.ProposeChange("src/api.ts", "a2", 20, 30, "footer")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.Merged)

	assert.Len(t, e.PendingChanges("src/api.ts"), 2)
	assert.Empty(t, e.Events(0), "no conflict, no event")
}

func TestContainmentOuterWins(t *testing.T) {
	e := testCascade(t)

	_, err := e.ProposeChange("src/api.ts", "a1", 0, 100, "outer rewrite")
	require.NoError(t, err)
	res, err := e.ProposeChange("src/api.ts", "a2", 10, 20, "inner tweak")
	require.NoError(t, err)

	assert.True(t, res.Merged)
	require.NotNil(t, res.Change)
	assert.Equal(t, 0, res.Change.Start)
	assert.Equal(t, 100, res.Change.End)
	assert.Equal(t, "outer rewrite", res.Change.NewText)

	pending := e.PendingChanges("src/api.ts")
	require.Len(t, pending, 1)
	assert.Equal(t, "outer rewrite", pending[0].NewText)
}

func TestAdjacentChangesConcatenateInStartOrder(t *testing.T) {
	e := testCascade(t)

	_, err := e.ProposeChange("src/api.ts", "a2", 10, 20, "second")
	require.NoError(t, err)
	res, err := e.ProposeChange("src/api.ts", "a1", 0, 10, "first")
	require.NoError(t, err)

	assert.True(t, res.Merged)
	require.NotNil(t, res.Change)
	assert.Equal(t, 0, res.Change.Start)
	assert.Equal(t, 20, res.Change.End)
	assert.Equal(t, "firstsecond", res.Change.NewText)
}

func TestOverlappingChangesMergeAndEmitConflictResolved(t *testing.T) {
	e := testCascade(t)

	_, err := e.ProposeChange("src/api.ts", "a1", 0, 15, "left half")
	require.NoError(t, err)
	res, err := e.ProposeChange("src/api.ts", "a2", 10, 25, "right half")
	require.NoError(t, err)

	assert.True(t, res.Merged)
	require.NotNil(t, res.Change)
	assert.Equal(t, 0, res.Change.Start)
	assert.Equal(t, 25, res.Change.End)
	assert.Equal(t, "left halfright half", res.Change.NewText)

	events := e.Events(0)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventConflictResolved, events[0].Type)
	assert.Equal(t, "src/api.ts", events[0].Source)
	assert.ElementsMatch(t, []string{"a1", "a2"}, events[0].Details["agents"])
}

func TestSameAgentRevisionReplacesOwnChange(t *testing.T) {
	e := testCascade(t)

	_, err := e.ProposeChange("src/api.ts", "a1", 0, 10, "draft")
	require.NoError(t, err)
	res, err := e.ProposeChange("src/api.ts", "a1", 0, 12, "final")
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.False(t, res.Merged)

	pending := e.PendingChanges("src/api.ts")
	require.Len(t, pending, 1)
	assert.Equal(t, "final", pending[0].NewText)
	assert.Empty(t, e.Events(0), "revising your own range is not a conflict")
}

func TestProposeChangeInvalidRange(t *testing.T) {
	e := testCascade(t)
	_, err := e.ProposeChange("src/api.ts", "a1", 5, 2, "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLeaveFileDropsPendingChanges(t *testing.T) {
	e := testCascade(t)

	e.JoinFile("src/api.ts", "a1")
	_, err := e.ProposeChange("src/api.ts", "a1", 0, 5, "x")
	require.NoError(t, err)

	e.LeaveFile("src/api.ts", "a1")
	assert.Empty(t, e.PendingChanges("src/api.ts"))
}
