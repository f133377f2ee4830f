package state

import (
	"crypto/subtle"
	"fmt"

	"signalcore/internal/protocol/ratchet"
	"signalcore/internal/protoerr"
)

// SessionRecord holds the current session state with a peer device and a
// bounded history of archived states, most recent first.
//
// A SessionRecord is not safe for concurrent use.
type SessionRecord struct {
	current  *SessionState
	previous []*SessionState
}

// NewSessionRecord returns a fresh record with no state.
func NewSessionRecord() *SessionRecord { return &SessionRecord{} }

// NewSessionRecordFromState returns a record whose current state is s.
func NewSessionRecordFromState(s *SessionState) *SessionRecord {
	return &SessionRecord{current: s}
}

// HasCurrentState reports whether the record holds a current state.
func (r *SessionRecord) HasCurrentState() bool { return r.current != nil }

// SessionState returns the current state.
func (r *SessionRecord) SessionState() (*SessionState, error) {
	if r.current == nil {
		return nil, fmt.Errorf("session record: no current state: %w", protoerr.ErrInvalidState)
	}
	return r.current, nil
}

// SetSessionState replaces the current state without archiving it.
func (r *SessionRecord) SetSessionState(s *SessionState) { r.current = s }

// PreviousStates returns the archived states, most recent first. Callers may
// mutate the returned states in place.
func (r *SessionRecord) PreviousStates() []*SessionState { return r.previous }

// ArchiveCurrentState moves the current state to the front of the history.
// A fresh record is left untouched.
func (r *SessionRecord) ArchiveCurrentState() {
	if r.current == nil {
		return
	}
	r.previous = append([]*SessionState{r.current}, r.previous...)
	if len(r.previous) > ratchet.ArchivedStatesMaxLength {
		r.previous = r.previous[:ratchet.ArchivedStatesMaxLength]
	}
	r.current = nil
}

// PromoteState archives the current state and makes s current.
func (r *SessionRecord) PromoteState(s *SessionState) {
	r.ArchiveCurrentState()
	r.current = s
}

// PromoteMatchingSession looks for a state created from the same X3DH
// handshake (version and alice base key). A matching archived state becomes
// current. It reports whether any state matched.
func (r *SessionRecord) PromoteMatchingSession(version uint32, aliceBaseKey []byte) bool {
	if r.current != nil && matches(r.current, version, aliceBaseKey) {
		return true
	}
	for i, s := range r.previous {
		if matches(s, version, aliceBaseKey) {
			r.previous = append(r.previous[:i:i], r.previous[i+1:]...)
			r.PromoteState(s)
			return true
		}
	}
	return false
}

func matches(s *SessionState, version uint32, aliceBaseKey []byte) bool {
	return s.Version() == version && subtle.ConstantTimeCompare(s.aliceBaseKey, aliceBaseKey) == 1
}

// SessionVersion is the version of the current state.
func (r *SessionRecord) SessionVersion() (uint32, error) {
	s, err := r.SessionState()
	if err != nil {
		return 0, err
	}
	return s.Version(), nil
}

// LegacySessionVersion is SessionVersion, except that an empty record reads
// as version 0 instead of failing.
func (r *SessionRecord) LegacySessionVersion() uint32 {
	if r.current == nil {
		return 0
	}
	return r.current.Version()
}

// LocalRegistrationID is our registration id in the current state.
func (r *SessionRecord) LocalRegistrationID() (uint32, error) {
	s, err := r.SessionState()
	if err != nil {
		return 0, err
	}
	return s.LocalRegistrationID(), nil
}

// RemoteRegistrationID is the peer's registration id in the current state.
func (r *SessionRecord) RemoteRegistrationID() (uint32, error) {
	s, err := r.SessionState()
	if err != nil {
		return 0, err
	}
	return s.RemoteRegistrationID(), nil
}

// AliceBaseKey is the initiator base key of the current state.
func (r *SessionRecord) AliceBaseKey() ([]byte, error) {
	s, err := r.SessionState()
	if err != nil {
		return nil, err
	}
	return s.AliceBaseKey(), nil
}

// HasSenderChain reports whether the current state can send.
func (r *SessionRecord) HasSenderChain() bool {
	return r.current != nil && r.current.HasSenderChain()
}

// SenderChainKey is the sending chain position of the current state.
func (r *SessionRecord) SenderChainKey() (ratchet.ChainKey, error) {
	s, err := r.SessionState()
	if err != nil {
		return ratchet.ChainKey{}, err
	}
	return s.SenderChainKey()
}
