package flow

import (
	"github.com/BTreeMap/ClinicIntake/internal/models"
)

// State is the navigation history: positions in the active step list,
// oldest first. It is never empty; position 0 is the entry point.
//
// Positions are indices, not step ids. After an answer change shrinks the
// active list an older entry may point at a different step, or past the end.
type State struct {
	History []int
}

// NewState returns the entry state [0].
func NewState() State {
	return State{History: []int{0}}
}

// Top returns the current position.
func (s State) Top() int {
	if len(s.History) == 0 {
		return 0
	}
	return s.History[len(s.History)-1]
}

func (s State) push(n int) State {
	h := make([]int, len(s.History), len(s.History)+1)
	copy(h, s.History)
	return State{History: append(h, n)}
}

// Current resolves the top of history against the active list recomputed
// from answers. An out-of-range position yields ErrStepNotFound.
func Current(steps []Step, answers models.Answers, s State) (Step, error) {
	active := ActiveSteps(steps, answers)
	idx := s.Top()
	if idx < 0 || idx >= len(active) {
		return Step{}, ErrStepNotFound
	}
	return active[idx], nil
}

// Next pushes the position after the current one. It is a no-op on the
// terminal step and when the current position does not resolve.
func Next(steps []Step, answers models.Answers, s State) State {
	cur, err := Current(steps, answers, s)
	if err != nil || cur.Terminal {
		return s
	}
	return s.push(s.Top() + 1)
}

// Previous pops the top of history unless it is the only entry. The active
// list is not recomputed: the popped-to position was valid when pushed.
func Previous(s State) State {
	if len(s.History) <= 1 {
		return s
	}
	h := make([]int, len(s.History)-1)
	copy(h, s.History)
	return State{History: h}
}

// GoToStep pushes n without deduplication or an upper bound check. Negative
// positions are clamped to 0.
func GoToStep(s State, n int) State {
	if n < 0 {
		n = 0
	}
	return s.push(n)
}
