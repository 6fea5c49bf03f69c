package motor

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is wrapped by a ProtocolError when the device did not
	// acknowledge a command in time.
	ErrTimeout = errors.New("acknowledgment timed out")

	// ErrEOF is wrapped by a ProtocolError when the port stopped delivering
	// data, usually because the device was unplugged.
	ErrEOF = errors.New("device disconnected")
)

// ProtocolError describes a failed command exchange. The command must be
// treated as not executed.
type ProtocolError struct {
	Device  string
	Command string
	Acked   int
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("device %s: command %q: %v (%d/%d bytes acknowledged)",
		e.Device, e.Command, e.Err, e.Acked, len(e.Command))
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
