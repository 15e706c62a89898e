// internal/matrix/matrix_test.go
package matrix

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

func testScripts() []*schemas.Script {
	return []*schemas.Script{
		{ID: "cookie", Name: "Dismiss Cookies", ExecutionOrder: 1, TestBeforeExecution: true, TestAfterExecution: true},
		{ID: "login", Name: "Log In", ExecutionOrder: 2, TestBeforeExecution: true, TestAfterExecution: true},
		{ID: "modal", Name: "Open Modal", ExecutionOrder: 3, TestBeforeExecution: true, TestAfterExecution: true},
	}
}

func statesOf(combos []schemas.StateCombination) []map[string]schemas.Phase {
	out := make([]map[string]schemas.Phase, len(combos))
	for i, c := range combos {
		out[i] = c.States
	}
	return out
}

func TestSeededMatrixYieldsNPlusOneCombinations(t *testing.T) {
	m := New(zap.NewNop(), testScripts())
	combos := m.EnabledCombinations()

	require.Len(t, combos, 4, "3 scripts seed exactly 4 combinations")

	want := []map[string]schemas.Phase{
		{"cookie": schemas.PhaseBefore, "login": schemas.PhaseBefore, "modal": schemas.PhaseBefore},
		{"cookie": schemas.PhaseAfter, "login": schemas.PhaseBefore, "modal": schemas.PhaseBefore},
		{"cookie": schemas.PhaseAfter, "login": schemas.PhaseAfter, "modal": schemas.PhaseBefore},
		{"cookie": schemas.PhaseAfter, "login": schemas.PhaseAfter, "modal": schemas.PhaseAfter},
	}
	if diff := cmp.Diff(want, statesOf(combos)); diff != "" {
		t.Errorf("seeded combinations mismatch (-want +got):\n%s", diff)
	}
}

func TestMatrixRespectsTestPhaseFlags(t *testing.T) {
	scripts := []*schemas.Script{
		{ID: "a", ExecutionOrder: 1, TestBeforeExecution: false, TestAfterExecution: true},
		{ID: "b", ExecutionOrder: 2, TestBeforeExecution: true, TestAfterExecution: false},
	}
	m := New(zap.NewNop(), scripts)

	keys := m.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, schemas.StateKey{ScriptID: "a", Phase: schemas.PhaseAfter}, keys[0])
	assert.Equal(t, schemas.StateKey{ScriptID: "b", Phase: schemas.PhaseBefore}, keys[1])
}

func TestManuallyEnabledNonSequentialCell(t *testing.T) {
	m := New(zap.NewNop(), testScripts())

	// "modal after, cookie before" is a state the sequential chain never
	// visits.
	row := schemas.StateKey{ScriptID: "modal", Phase: schemas.PhaseAfter}
	col := schemas.StateKey{ScriptID: "cookie", Phase: schemas.PhaseBefore}
	require.NoError(t, m.Enable(row, col))

	combos := m.EnabledCombinations()
	require.Len(t, combos, 5)

	last := combos[len(combos)-1].States
	assert.Equal(t, schemas.PhaseAfter, last["modal"])
	assert.Equal(t, schemas.PhaseBefore, last["cookie"])
	assert.Equal(t, schemas.PhaseBefore, last["login"], "unmentioned scripts default to before")
}

func TestDuplicateCellsDeduplicatedByCanonicalID(t *testing.T) {
	m := New(zap.NewNop(), testScripts())

	// This off-diagonal cell denotes the same logical state as the seeded
	// cookie-after diagonal: only cookie executed.
	row := schemas.StateKey{ScriptID: "cookie", Phase: schemas.PhaseAfter}
	col := schemas.StateKey{ScriptID: "login", Phase: schemas.PhaseBefore}
	require.NoError(t, m.Enable(row, col))

	combos := m.EnabledCombinations()
	assert.Len(t, combos, 4, "duplicate logical combination must be dropped")

	ids := make(map[string]int)
	for _, c := range combos {
		ids[c.ID()]++
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "combination %s appears more than once", id)
	}
}

func TestEnableUnknownKeyFails(t *testing.T) {
	m := New(zap.NewNop(), testScripts())
	err := m.Enable(
		schemas.StateKey{ScriptID: "nope", Phase: schemas.PhaseAfter},
		schemas.StateKey{ScriptID: "cookie", Phase: schemas.PhaseBefore},
	)
	assert.Error(t, err)
}

func TestDisableRemovesCombination(t *testing.T) {
	m := New(zap.NewNop(), testScripts())
	key := schemas.StateKey{ScriptID: "modal", Phase: schemas.PhaseAfter}
	require.NoError(t, m.Disable(key, key))

	combos := m.EnabledCombinations()
	assert.Len(t, combos, 3)
}
