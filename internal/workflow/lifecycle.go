package workflow

// Stage is the explicit lifecycle position of an order
type Stage string

const (
	StageCreated    Stage = "created"
	StageProduction Stage = "production"
	StagePackaging  Stage = "packaging"
	StageDispatch   Stage = "dispatch"
	StageDispatched Stage = "dispatched"
)

var transitions = map[Stage][]Stage{
	StageCreated:    {StageProduction, StagePackaging, StageDispatch},
	StageProduction: {StageProduction, StagePackaging, StageDispatch},
	StagePackaging:  {StagePackaging, StageDispatch},
	StageDispatch:   {StageDispatch, StageDispatched},
	StageDispatched: {StageDispatched},
}

// ParseStage maps a stored value to a Stage; blank means created
func ParseStage(s string) Stage {
	if s == "" {
		return StageCreated
	}
	return Stage(s)
}

// CanAdvance reports whether s may move to next
func (s Stage) CanAdvance(next Stage) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Advance returns next when the move is allowed
func (s Stage) Advance(next Stage) (Stage, error) {
	if !s.CanAdvance(next) {
		return s, &TransitionError{From: s, To: next}
	}
	return next, nil
}

// Rank orders stages along the happy path
func (s Stage) Rank() int {
	switch s {
	case StageProduction:
		return 1
	case StagePackaging:
		return 2
	case StageDispatch:
		return 3
	case StageDispatched:
		return 4
	default:
		return 0
	}
}
