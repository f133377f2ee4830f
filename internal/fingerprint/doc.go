// Package fingerprint computes safety numbers: a 60-digit display string and
// a scannable encoding that two parties compare to detect a man in the
// middle.
//
// Each side's half is an iterated SHA-512 over its identity key and a stable
// identifier; the halves are sorted for display and mirrored for scanning.
package fingerprint
