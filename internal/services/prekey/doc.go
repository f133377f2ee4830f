// Package prekey generates the local pre-keys and assembles the bundle that
// is published to the key directory.
//
// Every call rotates in a fresh signed pre-key and Kyber pre-key and adds a
// batch of one-time pre-keys. Older records stay in the store so sessions
// started against a previous bundle can still be accepted.
package prekey
