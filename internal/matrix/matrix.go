// internal/matrix/matrix.go

// Package matrix models which combinations of script states a page gets
// tested in. Seeding enables N+1 sequential combinations for N scripts
// instead of the exhaustive 2^N; operators can additionally enable
// arbitrary cells for non-sequential states.
package matrix

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

// Matrix is a square boolean grid over script-state keys. A true cell marks
// a state combination to visit; the same logical combination may be marked
// by several cells and is deduplicated on read.
type Matrix struct {
	logger *zap.Logger

	// scripts sorted by ExecutionOrder; the sequential chain follows this.
	scripts []*schemas.Script
	keys    []schemas.StateKey
	cells   map[schemas.StateKey]map[schemas.StateKey]bool
}

// New builds a matrix over the given scripts and seeds the baseline
// combinations. A script contributes its "before" key only when it is
// tested before execution, and its "after" key only when tested after.
func New(logger *zap.Logger, scripts []*schemas.Script) *Matrix {
	sorted := make([]*schemas.Script, len(scripts))
	copy(sorted, scripts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExecutionOrder < sorted[j].ExecutionOrder
	})

	m := &Matrix{
		logger:  logger.Named("state_matrix"),
		scripts: sorted,
	}
	m.initialize()
	return m
}

// initialize seeds every cell disabled, then enables the page's untouched
// initial state and the sequential-execution chain. For N scripts this
// yields exactly N+1 enabled combinations.
func (m *Matrix) initialize() {
	m.keys = m.keys[:0]
	for _, s := range m.scripts {
		if s.TestBeforeExecution {
			m.keys = append(m.keys, schemas.StateKey{ScriptID: s.ID, Phase: schemas.PhaseBefore})
		}
		if s.TestAfterExecution {
			m.keys = append(m.keys, schemas.StateKey{ScriptID: s.ID, Phase: schemas.PhaseAfter})
		}
	}

	m.cells = make(map[schemas.StateKey]map[schemas.StateKey]bool, len(m.keys))
	for _, row := range m.keys {
		m.cells[row] = make(map[schemas.StateKey]bool, len(m.keys))
		for _, col := range m.keys {
			m.cells[row][col] = false
		}
	}

	// Initial state: the first script's before-diagonal represents "nothing
	// executed yet".
	for _, s := range m.scripts {
		if s.TestBeforeExecution {
			key := schemas.StateKey{ScriptID: s.ID, Phase: schemas.PhaseBefore}
			m.cells[key][key] = true
			break
		}
	}

	// Sequential chain: each script's after-diagonal represents "this
	// script and every predecessor executed".
	for _, s := range m.scripts {
		if s.TestAfterExecution {
			key := schemas.StateKey{ScriptID: s.ID, Phase: schemas.PhaseAfter}
			m.cells[key][key] = true
		}
	}

	m.logger.Debug("Matrix initialized.",
		zap.Int("scripts", len(m.scripts)), zap.Int("keys", len(m.keys)))
}

// Keys returns the matrix axes in script-order.
func (m *Matrix) Keys() []schemas.StateKey {
	out := make([]schemas.StateKey, len(m.keys))
	copy(out, m.keys)
	return out
}

// Enable marks a cell. Used by operators to request non-sequential
// combinations the seeded chain never visits.
func (m *Matrix) Enable(row, col schemas.StateKey) error {
	return m.set(row, col, true)
}

// Disable unmarks a cell.
func (m *Matrix) Disable(row, col schemas.StateKey) error {
	return m.set(row, col, false)
}

func (m *Matrix) set(row, col schemas.StateKey, enabled bool) error {
	cols, ok := m.cells[row]
	if !ok {
		return fmt.Errorf("unknown matrix key %q", row)
	}
	if _, ok := cols[col]; !ok {
		return fmt.Errorf("unknown matrix key %q", col)
	}
	cols[col] = enabled
	return nil
}

// EnabledCombinations resolves every true cell into a StateCombination and
// returns only the first occurrence of each canonical combination id. The
// caller never tests the same logical state twice, regardless of how many
// cells denote it.
func (m *Matrix) EnabledCombinations() []schemas.StateCombination {
	var out []schemas.StateCombination
	seen := make(map[string]struct{})

	for _, row := range m.keys {
		for _, col := range m.keys {
			if !m.cells[row][col] {
				continue
			}
			combo := m.resolveCell(row, col)
			id := combo.ID()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, combo)
		}
	}
	return out
}

// resolveCell interprets one cell as a full combination over all scripts.
// Diagonal cells are cumulative along the execution order: an after-diagonal
// means the script and all its predecessors have executed; a before-diagonal
// means only its strict predecessors have. Off-diagonal cells are literal
// pairwise assignments; scripts the cell does not mention default to
// "before".
func (m *Matrix) resolveCell(row, col schemas.StateKey) schemas.StateCombination {
	states := make(map[string]schemas.Phase, len(m.scripts))
	for _, s := range m.scripts {
		states[s.ID] = schemas.PhaseBefore
	}

	if row == col {
		for _, s := range m.scripts {
			if s.ID == row.ScriptID {
				if row.Phase == schemas.PhaseAfter {
					states[s.ID] = schemas.PhaseAfter
				}
				break
			}
			states[s.ID] = schemas.PhaseAfter
		}
	} else {
		states[row.ScriptID] = row.Phase
		states[col.ScriptID] = col.Phase
	}

	return schemas.StateCombination{
		States:      states,
		Enabled:     true,
		Description: describeStates(states),
	}
}

func describeStates(states map[string]schemas.Phase) string {
	executed := make([]string, 0, len(states))
	for id, phase := range states {
		if phase == schemas.PhaseAfter {
			executed = append(executed, id)
		}
	}
	if len(executed) == 0 {
		return "initial state, no scripts executed"
	}
	sort.Strings(executed)
	return fmt.Sprintf("after scripts: %s", strings.Join(executed, ", "))
}
