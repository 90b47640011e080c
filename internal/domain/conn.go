package domain

// ConnState is the consumer-visible lifecycle of one adapter connection.
// Transitions are driven only by the connection supervisor.
type ConnState int

const (
	ConnClosed ConnState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
)

func (s ConnState) String() string {
	switch s {
	case ConnClosed:
		return "closed"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
