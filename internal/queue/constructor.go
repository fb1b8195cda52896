package queue

import "time"

const TaskTypeRunCycle = "publish:run_cycle"

type RunCyclePayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}
