package whatsapp

// State is the connection lifecycle state.
type State int

const (
	// StateIdle: never started, or shut down.
	StateIdle State = iota
	// StateAwaitingPair: session opened, waiting for the device to pair.
	StateAwaitingPair
	// StateConnected: session open and ready to send.
	StateConnected
	// StateClosedRecoverable: transient disconnect, restart pending.
	StateClosedRecoverable
	// StateClosedTerminal: logged out by the network; no auto-reconnect.
	StateClosedTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPair:
		return "awaiting_pair"
	case StateConnected:
		return "connected"
	case StateClosedRecoverable:
		return "closed_recoverable"
	case StateClosedTerminal:
		return "closed_terminal"
	default:
		return "unknown"
	}
}

// EventKind is a typed connection lifecycle event.
type EventKind int

const (
	// EventDialed: a protocol session was opened.
	EventDialed EventKind = iota
	// EventPairCode: a pairing artifact arrived.
	EventPairCode
	// EventOpen: the session finished pairing and is connected.
	EventOpen
	// EventClosedRecoverable: the session closed for a transient reason.
	EventClosedRecoverable
	// EventClosedTerminal: the session closed with reason "logged out".
	EventClosedTerminal
)

func (e EventKind) String() string {
	switch e {
	case EventDialed:
		return "dialed"
	case EventPairCode:
		return "pair_code"
	case EventOpen:
		return "open"
	case EventClosedRecoverable:
		return "closed_recoverable"
	case EventClosedTerminal:
		return "closed_terminal"
	default:
		return "unknown"
	}
}

// transition is the pure lifecycle transition function. It is total: any
// (state, event) pair yields a defined next state, with unexpected events
// leaving the state unchanged.
func transition(s State, e EventKind) State {
	switch e {
	case EventDialed:
		return StateAwaitingPair
	case EventPairCode:
		// A pair code only matters while awaiting pairing.
		return s
	case EventOpen:
		return StateConnected
	case EventClosedRecoverable:
		return StateClosedRecoverable
	case EventClosedTerminal:
		return StateClosedTerminal
	default:
		return s
	}
}
