// Package timer holds the study-session timer: the phase state machine, the
// task queue it credits, and the durable store that lets a countdown survive
// a restart.
package timer

import "fmt"

type Phase string

const (
	PhaseFocus      Phase = "focus"
	PhaseShortBreak Phase = "short_break"
	PhaseLongBreak  Phase = "long_break"
)

const (
	FocusDurationSeconds      = 25 * 60
	ShortBreakDurationSeconds = 5 * 60
	LongBreakDurationSeconds  = 15 * 60

	// FocusPhasesPerCycle is the number of focus phases that end in a long break.
	FocusPhasesPerCycle = 4
)

func (p Phase) Valid() bool {
	return p == PhaseFocus || p == PhaseShortBreak || p == PhaseLongBreak
}

// Duration returns the full length of the phase in seconds.
func (p Phase) Duration() int {
	switch p {
	case PhaseShortBreak:
		return ShortBreakDurationSeconds
	case PhaseLongBreak:
		return LongBreakDurationSeconds
	default:
		return FocusDurationSeconds
	}
}

// Label is the name shown to students.
func (p Phase) Label() string {
	switch p {
	case PhaseShortBreak:
		return "Pequena Pausa"
	case PhaseLongBreak:
		return "Longa Pausa"
	default:
		return "Pomodoro"
	}
}

// Advance returns the phase that follows current. focusCompleted is the
// number of focus phases already finished in the running cycle, not counting
// the one that is ending.
func Advance(current Phase, focusCompleted int) Phase {
	if current == PhaseFocus {
		if (focusCompleted+1)%FocusPhasesPerCycle == 0 {
			return PhaseLongBreak
		}
		return PhaseShortBreak
	}
	return PhaseFocus
}

// FormatClock renders seconds as MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
