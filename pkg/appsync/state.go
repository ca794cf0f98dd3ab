package appsync

// State is the connection lifecycle state. Closed is permanent.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
