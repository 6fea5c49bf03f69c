package types

import "time"

// DeviceState is the view of one curtain returned by the daemon.
// This struct is shared between the daemon and client packages.
type DeviceState struct {
	Name         string  `json:"name"`
	CurrentPos   int     `json:"current_pos"`
	TargetPos    int     `json:"target_pos"`
	CurrentExact float64 `json:"current_exact"`
	CurrentSteps int64   `json:"current_steps"`
	TargetSteps  int64   `json:"target_steps"`
	TotalSteps   int64   `json:"total_steps"`
	Direction    string  `json:"direction"`
	State        string  `json:"state"`
	Ready        bool    `json:"ready"`
}

// LegacyState is the payload of GET /state, kept compatible with the REST
// bridge plugin. State is -1 while moving down, 1 while moving up and 0
// when stopped.
type LegacyState struct {
	CurrentPos int `json:"current_pos"`
	TargetPos  int `json:"target_pos"`
	State      int `json:"state"`
}

// LegacyTarget is the body of PUT /set_pos.
type LegacyTarget struct {
	TargetPos *float64 `json:"target_pos"`
}

// ScheduleEntry describes one configured cron schedule.
type ScheduleEntry struct {
	Device   string    `json:"device"`
	Cron     string    `json:"cron"`
	Position float64   `json:"position"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
}
