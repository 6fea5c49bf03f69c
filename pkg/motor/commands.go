package motor

import (
	"fmt"

	"github.com/charlie0129/curtain/pkg/motion"
)

const (
	// ReadyByte is sent once by the firmware after boot.
	ReadyByte = 'R'

	// DisableCommand turns the coil driver off.
	DisableCommand = "D"
)

// EnableCommand enables the driver in dir.
func EnableCommand(dir motion.Direction) (string, error) {
	switch dir {
	case motion.DirectionForward:
		return "EF", nil
	case motion.DirectionBackward:
		return "EB", nil
	default:
		return "", fmt.Errorf("cannot enable direction %s", dir)
	}
}

// StepCommand executes 2^exponent steps in the enabled direction.
func StepCommand(exponent uint) (string, error) {
	if exponent > 9 {
		return "", fmt.Errorf("burst exponent %d does not fit in one digit", exponent)
	}
	return fmt.Sprintf("S%d", exponent), nil
}
