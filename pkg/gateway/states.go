package gateway

// State represents the broker connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates the broker acknowledged the connection.
	StateConnected

	// StateSubscribed indicates the remote-state subscription is active.
	StateSubscribed

	// StateErrored indicates a transport error was reported. Not terminal:
	// the client may recover and re-enter StateConnected.
	StateErrored
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}
