package widget

// State is the widget's visibility state.
type State int

const (
	StateUninitialized State = iota
	StateConfigLoading
	StateDisabled
	StateClosed
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigLoading:
		return "config-loading"
	case StateDisabled:
		return "disabled"
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ConversationState tracks the conversation lifecycle independently of
// visibility.
type ConversationState int

const (
	ConversationNone ConversationState = iota
	ConversationCreating
	ConversationReady
	ConversationPolling
	// ConversationUnauthenticated is terminal for the controller's lifetime.
	ConversationUnauthenticated
)

func (s ConversationState) String() string {
	switch s {
	case ConversationNone:
		return "none"
	case ConversationCreating:
		return "creating"
	case ConversationReady:
		return "ready"
	case ConversationPolling:
		return "polling"
	case ConversationUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}
