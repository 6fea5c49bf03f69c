package events

import "encoding/json"

// Event name constants
const (
	MotionState    = "motion.state"
	MotionPosition = "motion.position"
	DeviceReady    = "device.ready"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// MotionStateEvent is published when a device changes its driver direction.
type MotionStateEvent struct {
	Device    string `json:"device"`
	Direction string `json:"direction"`
	State     string `json:"state"`
	Ts        int64  `json:"ts"`
}

// MotionPositionEvent is published after each acknowledged burst.
type MotionPositionEvent struct {
	Device       string  `json:"device"`
	CurrentSteps int64   `json:"current_steps"`
	TargetSteps  int64   `json:"target_steps"`
	Percent      float64 `json:"percent"`
	Ts           int64   `json:"ts"`
}

// DeviceReadyEvent is published once the firmware finished its handshake.
type DeviceReadyEvent struct {
	Device string `json:"device"`
	Ts     int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// If Data is empty, it returns the zero value of T with a nil error.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
