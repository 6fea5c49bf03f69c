package motion

// Direction is the rotation sense currently enabled on the motor driver.
// It is distinct from the sign of the pending delta: the driver keeps its
// direction until the loop explicitly changes or disables it.
type Direction int32

const (
	DirectionUnknown Direction = iota
	DirectionForward
	DirectionBackward
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	default:
		fallthrough
	case DirectionUnknown:
		return "unknown"
	}
}

// Mirror swaps forward and backward. It is used for motors wired in reverse.
func (d Direction) Mirror() Direction {
	switch d {
	case DirectionForward:
		return DirectionBackward
	case DirectionBackward:
		return DirectionForward
	default:
		return d
	}
}

// MotionState is the movement state reported to consumers.
type MotionState int

const (
	Stopped MotionState = iota
	Increasing
	Decreasing
)

func (s MotionState) String() string {
	switch s {
	case Increasing:
		return "increasing"
	case Decreasing:
		return "decreasing"
	default:
		return "stopped"
	}
}

// LegacyCode returns the numeric state used by the original REST bridge,
// where -1 meant the curtain was moving down (position increasing) and 1
// meant it was moving up.
func (s MotionState) LegacyCode() int {
	switch s {
	case Increasing:
		return -1
	case Decreasing:
		return 1
	default:
		return 0
	}
}

// StateOf derives the motion state from the enabled direction and the
// remaining delta (target - current).
func StateOf(dir Direction, delta int64) MotionState {
	if dir == DirectionUnknown || delta == 0 {
		return Stopped
	}
	if delta > 0 {
		return Increasing
	}
	return Decreasing
}
