// Package state holds Double Ratchet session state and its persistent form.
//
// # Overview
//
// A SessionState is one conversation with a peer device: the root key, our
// sending chain, a bounded list of receiver chains (one per peer ratchet key
// seen) with their cached skipped message keys, and the X3DH material that
// must accompany messages until the peer replies.
//
// A SessionRecord groups the current state with up to
// ratchet.ArchivedStatesMaxLength archived states, most recent first. A
// fresh X3DH handshake archives the current state instead of deleting it, so
// late messages under a superseded session can still be decrypted.
//
// # Encoding
//
// Records serialize as the protobuf RecordStructure / SessionStructure used
// by existing clients, so stored sessions remain readable across
// implementations. Unknown fields are ignored.
//
// Neither type is safe for concurrent use; the session services serialize
// access per peer address.
package state
