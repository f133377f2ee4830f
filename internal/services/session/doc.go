// Package session establishes Double Ratchet sessions with X3DH.
//
// Builder.ProcessPreKeyBundle is the initiator path: it checks trust,
// verifies the bundle signatures and stores a state that keeps announcing
// its handshake until the peer replies. Builder.ProcessPreKey is the
// responder path, called by the message cipher with the record already
// loaded and locked.
package session
