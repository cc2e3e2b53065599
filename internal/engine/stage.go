package engine

import (
	"errors"
	"fmt"
)

// Stage is the position of one change inside the mutation pipeline.
type Stage int

const (
	StageNotStarted Stage = iota
	StageBackedUp
	StageWritten
	StageDeleted
	StageSkipped
	StageFailed
	StageDone
)

var stageNames = map[Stage]string{
	StageNotStarted: "NOT_STARTED",
	StageBackedUp:   "BACKED_UP",
	StageWritten:    "WRITTEN",
	StageDeleted:    "DELETED",
	StageSkipped:    "SKIPPED",
	StageFailed:     "FAILED",
	StageDone:       "DONE",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// transitions lists every legal move. Anything absent is rejected.
var transitions = map[Stage][]Stage{
	StageNotStarted: {StageBackedUp, StageWritten, StageDeleted, StageSkipped, StageFailed},
	StageBackedUp:   {StageWritten, StageDeleted, StageFailed},
	StageWritten:    {StageDone},
	StageDeleted:    {StageDone},
	StageSkipped:    {StageDone},
	StageFailed:     {StageDone},
}

// ErrInvalidTransition is returned when a handler tries an illegal stage move.
var ErrInvalidTransition = errors.New("invalid stage transition")

// CanTransition reports whether the pipeline may move from s to next.
func (s Stage) CanTransition(next Stage) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is one of the outcome stages that only lead to Done.
func (s Stage) Terminal() bool {
	switch s {
	case StageWritten, StageDeleted, StageSkipped, StageFailed:
		return true
	}
	return false
}
