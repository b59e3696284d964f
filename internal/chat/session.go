package chat

import "realtime-chat/internal/identity"

// State is the lifecycle position of one live connection.
type State int

const (
	Unbound State = iota
	Bound
	Closed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the engine's view of a connection. Fields are guarded by the
// engine mutex; handlers work on copies.
type Session struct {
	ConnID      string
	State       State
	Identity    identity.Identity
	ResolveErr  error
	UserID      string
	DisplayName string
}

func (s *Session) resolved() bool {
	return s.ResolveErr == nil && s.Identity.UserID != ""
}
