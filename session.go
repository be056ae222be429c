package authsession

import "fmt"

// State is the session lifecycle state
type State string

const (
	// StateUnknown is the placeholder before the provider first reports
	StateUnknown State = "unknown"
	// StateUnauthenticated nobody is signed in
	StateUnauthenticated State = "unauthenticated"
	// StateAuthenticated an identity is signed in
	StateAuthenticated State = "authenticated"
)

// Session is the published "current identity or none" value.
// Values are copies, mutating one never affects the Store.
type Session struct {
	State State `json:"state"`
	// Identity is only set when State is StateAuthenticated
	Identity *Identity `json:"identity,omitempty"`
	// Seq increases by one on every publish
	Seq uint64 `json:"seq"`
	// Epoch increases every time a new login starts
	Epoch uint64 `json:"epoch"`
}

// UnknownSession is the value published before the provider first reports
func UnknownSession() Session {
	return Session{State: StateUnknown}
}

func (s Session) IsAuthenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}

func (s Session) IsUnauthenticated() bool {
	return s.State == StateUnauthenticated
}

func (s Session) IsUnknown() bool {
	return s.State == StateUnknown || s.State == ""
}

// UserID returns the identity ID or "" when not authenticated
func (s Session) UserID() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.Identity.ID
}

// Role returns the identity role or "" when not authenticated
func (s Session) Role() Role {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.Identity.Role
}

func (s Session) clone() Session {
	out := s
	if s.Identity != nil {
		identity := s.Identity.clone()
		out.Identity = &identity
	}
	return out
}

func (s Session) String() string {
	if !s.IsAuthenticated() {
		return fmt.Sprintf("state=%s seq=%d epoch=%d", s.State, s.Seq, s.Epoch)
	}
	return fmt.Sprintf(
		"state=%s seq=%d epoch=%d user=%s role=%s",
		s.State,
		s.Seq,
		s.Epoch,
		s.Identity.ID,
		s.Identity.Role,
	)
}
