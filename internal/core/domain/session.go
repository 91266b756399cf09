package domain

// SessionState is the lifecycle position of the session.
type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateLoading       SessionState = "loading"
	StateAuthenticated SessionState = "authenticated"
	StateAnonymous     SessionState = "anonymous"
)

// validTransitions defines the allowed session state machine transitions.
// Logout and expiry may happen from any state and are always allowed to land
// on StateAnonymous.
var validTransitions = map[SessionState][]SessionState{
	StateUninitialized: {StateLoading, StateAuthenticated, StateAnonymous},
	StateLoading:       {StateAuthenticated, StateAnonymous},
	StateAuthenticated: {StateLoading, StateAuthenticated, StateAnonymous},
	StateAnonymous:     {StateLoading, StateAuthenticated, StateAnonymous},
}

// CanTransitionTo reports whether a transition from s to next is valid.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Snapshot is a read-only copy of the session handed to consumers.
type Snapshot struct {
	State   SessionState
	User    *User
	Loading bool
	Err     error
}

// Authenticated reports whether a confirmed user is present.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

// Role returns the current user's role or "" when anonymous.
func (s Snapshot) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// Redirect tells the presentation layer where to go next. Hard redirects
// must discard every cached view before navigating.
type Redirect struct {
	Path string
	Hard bool
}
