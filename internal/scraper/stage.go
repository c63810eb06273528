package scraper

import "fmt"

// Stage is a step of the discovery engine.
//
//	NAVIGATE ──► PASSIVE ──► DIRECT ──► IN_PAGE ──► NOT_FOUND
//	                │           │          │
//	                └───────────┴──────────┴──────► FOUND
//
// FOUND and NOT_FOUND are terminal.
type Stage string

const (
	StageNavigate Stage = "NAVIGATE"
	StagePassive  Stage = "PASSIVE"
	StageDirect   Stage = "DIRECT"
	StageInPage   Stage = "IN_PAGE"
	StageFound    Stage = "FOUND"
	StageNotFound Stage = "NOT_FOUND"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Stage][]Stage{
	StageNavigate: {StagePassive},
	StagePassive:  {StageFound, StageDirect},
	StageDirect:   {StageFound, StageInPage},
	StageInPage:   {StageFound, StageNotFound},
	// FOUND and NOT_FOUND are terminal, no outgoing transitions
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to Stage) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for FOUND and NOT_FOUND.
func IsTerminal(s Stage) bool { return s == StageFound || s == StageNotFound }

// trail records the stages a discovery run went through and refuses
// transitions the graph does not allow.
type trail struct {
	stages []Stage
}

func newTrail() *trail { return &trail{stages: []Stage{StageNavigate}} }

func (t *trail) current() Stage { return t.stages[len(t.stages)-1] }

func (t *trail) advance(to Stage) error {
	from := t.current()
	if !IsTransitionAllowed(from, to) {
		return fmt.Errorf("discovery transition %s → %s is not allowed", from, to)
	}
	t.stages = append(t.stages, to)
	return nil
}
