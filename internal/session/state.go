package session

import "fmt"

// State is a step of the practice round lifecycle
type State int

const (
	StateIdle           State = iota + 1 // Created, nothing selected yet
	StateSelecting                       // Choosing the next exercise
	StateAwaitingAnswer                  // Exercise presented, waiting for the user
	StateGrading                         // Answer handed to the grader
	StateFeedback                        // Verdict received, progress being recorded
	StateCompleted                       // Finished normally or ended by the user
	StateExpired                         // Timed out while waiting for an answer
	StateError                           // Grading or storage failed for the current answer
)

var stateNames = [...]string{
	StateIdle:           "Idle",
	StateSelecting:      "Selecting",
	StateAwaitingAnswer: "AwaitingAnswer",
	StateGrading:        "Grading",
	StateFeedback:       "Feedback",
	StateCompleted:      "Completed",
	StateExpired:        "Expired",
	StateError:          "Error",
}

// transitions lists every legal move. States without an entry are terminal.
var transitions = map[State][]State{
	StateIdle:           {StateSelecting, StateCompleted},
	StateSelecting:      {StateAwaitingAnswer, StateError, StateCompleted},
	StateAwaitingAnswer: {StateGrading, StateExpired, StateCompleted},
	StateGrading:        {StateFeedback, StateError},
	StateFeedback:       {StateSelecting, StateCompleted, StateError},
	StateError:          {StateAwaitingAnswer, StateCompleted},
}

func (s State) isValid() bool {
	return s >= StateIdle && s <= StateError
}

func (s State) String() string {
	if s.isValid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateExpired
}

// CanTransition reports whether moving from s to next is legal
func (s State) CanTransition(next State) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}
