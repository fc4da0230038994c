package level

import "modlog/pkg/logapi"

// Threshold is the effective minimum level of a logger, or Disabled.
type Threshold int8

// Disabled enables nothing, not even ERROR.
const Disabled Threshold = -1

// At returns the threshold whose minimum is l.
func At(l logapi.Level) Threshold { return Threshold(l) }

// Level returns the minimum level; ok is false for Disabled.
func (t Threshold) Level() (l logapi.Level, ok bool) {
	if t == Disabled {
		return 0, false
	}
	return logapi.Level(t), true
}

// Allows reports whether a call at l passes the threshold.
func (t Threshold) Allows(l logapi.Level) bool {
	return t != Disabled && Threshold(l) >= t
}

func (t Threshold) String() string {
	if t == Disabled {
		return "DISABLED"
	}
	return logapi.Level(t).String()
}
