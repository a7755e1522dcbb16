package hub

import "encoding/json"

// Frame is the JSON wire frame exchanged with the hub. Invocations carry a
// target (event or method name); completions acknowledge an invocation id.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const (
	frameInvocation = "invocation"
	frameCompletion = "completion"
	framePing       = "ping"
	framePong       = "pong"
)

// Hub method names. Inbound event names are chosen by the server; these are
// the client-invoked targets.
const (
	TargetSendLocation = "SendLocation"
	TargetJoinTrip     = "JoinTrip"
	TargetLeaveTrip    = "LeaveTrip"
)

// Inbound event names the coordinator subscribes to.
const (
	EventLocationUpdate   = "ReceiveLocationUpdate"
	EventStopUpdate       = "ReceiveStopUpdate"
	EventTripStatusUpdate = "ReceiveTripStatusUpdate"
)
