package flow

import "github.com/BTreeMap/ClinicIntake/internal/models"

// ActiveSteps returns the steps whose inclusion rule holds for answers, in
// declaration order. It is pure: callers recompute it after every answer
// change instead of caching the result.
func ActiveSteps(steps []Step, answers models.Answers) []Step {
	active := make([]Step, 0, len(steps))
	for _, s := range steps {
		if s.Included(answers) {
			active = append(active, s)
		}
	}
	return active
}

// StepIDs lists the ids of steps.
func StepIDs(steps []Step) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	return ids
}

// IndexOf returns the position of id in steps, or -1.
func IndexOf(steps []Step, id string) int {
	for i, s := range steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}
