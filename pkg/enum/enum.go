package enum

import "fmt"

// Action identifies what a subject is trying to do. Each action has its own
// counter and its own limit.
type Action int

const (
	Attempt Action = iota
	Complete
)

var actionNames = [...]string{"attempt", "complete"}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

func (a Action) Valid() bool {
	return a >= Attempt && int(a) < len(actionNames)
}

func Actions() []Action {
	return []Action{Attempt, Complete}
}

func ParseAction(s string) (Action, bool) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), true
		}
	}
	return 0, false
}
