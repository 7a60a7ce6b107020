package orchestrator

import (
	"time"

	"github.com/bryanchriswhite/GraphicsCapture/internal/output"
	"github.com/bryanchriswhite/GraphicsCapture/internal/window"
)

// State is a step of the capture state machine.
type State string

const (
	StateIdle                State = "idle"
	StateAcquiringTarget     State = "acquiring_target"
	StateInitializing        State = "initializing"
	StateCapturing           State = "capturing"
	StateReinitializePending State = "reinitialize_pending"
	StateTargetLost          State = "target_lost"
	StateShuttingDown        State = "shutting_down"
	StateStopped             State = "stopped"
)

// Counters accumulate over the orchestrator's lifetime.
type Counters struct {
	Reinitializations uint64 `json:"reinitializations"`
	TargetLosses      uint64 `json:"target_losses"`
	InitFailures      uint64 `json:"init_failures"`
	FramesCopied      uint64 `json:"frames_copied"`
	FramesDropped     uint64 `json:"frames_dropped"`
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State    State          `json:"state"`
	Since    time.Time      `json:"since"`
	RunID    string         `json:"run_id,omitempty"`
	Target   *window.Target `json:"target,omitempty"`
	Header   output.Header  `json:"header"`
	Channel  string         `json:"channel"`
	Counters Counters       `json:"counters"`
}

// Event is sent to subscribers on every state change.
type Event struct {
	State State     `json:"state"`
	RunID string    `json:"run_id,omitempty"`
	Time  time.Time `json:"time"`
}
