// api/schemas/states.go
package schemas

import (
	"fmt"
	"sort"
	"strings"
)

// Phase is the side of a script a state combination refers to.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// StateKey identifies one {script, phase} axis of the state matrix.
// Using a struct key instead of concatenated strings keeps script ids
// containing underscores from colliding.
type StateKey struct {
	ScriptID string
	Phase    Phase
}

func (k StateKey) String() string {
	return k.ScriptID + "_" + string(k.Phase)
}

// ParseStateKey reverses StateKey.String. The phase is the suffix after the
// last underscore.
func ParseStateKey(s string) (StateKey, error) {
	idx := strings.LastIndex(s, "_")
	if idx <= 0 || idx == len(s)-1 {
		return StateKey{}, fmt.Errorf("malformed state key %q", s)
	}
	phase := Phase(s[idx+1:])
	if phase != PhaseBefore && phase != PhaseAfter {
		return StateKey{}, fmt.Errorf("state key %q has unknown phase %q", s, phase)
	}
	return StateKey{ScriptID: s[:idx], Phase: phase}, nil
}

// PageTestState describes one visited page configuration. It is created
// fresh per visited state, never mutated after construction, and attached
// as metadata to the test result produced in that state.
type PageTestState struct {
	StateID         string   `json:"state_id"`
	Description     string   `json:"description,omitempty"`
	ScriptsExecuted []string `json:"scripts_executed,omitempty"`
	ElementsClicked []string `json:"elements_clicked,omitempty"`
	ElementsVisible []string `json:"elements_visible,omitempty"`
	ElementsHidden  []string `json:"elements_hidden,omitempty"`
}

// StateCombination assigns a phase to every script participating in a
// matrix-driven state. Scripts absent from the map are implicitly "before".
type StateCombination struct {
	States      map[string]Phase `json:"states"`
	Enabled     bool             `json:"enabled"`
	Description string           `json:"description,omitempty"`
}

// ID returns the canonical identifier of the combination. It is invariant
// to map iteration order: entries are sorted by script id before being
// concatenated, so two combinations with the same content always share an
// id. The matrix relies on this for deduplication.
func (c StateCombination) ID() string {
	ids := make([]string, 0, len(c.States))
	for id := range c.States {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, StateKey{ScriptID: id, Phase: c.States[id]}.String())
	}
	return strings.Join(parts, ",")
}

// ScriptsInPhase returns the ids of scripts assigned the given phase,
// sorted for deterministic iteration.
func (c StateCombination) ScriptsInPhase(p Phase) []string {
	var ids []string
	for id, phase := range c.States {
		if phase == p {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
