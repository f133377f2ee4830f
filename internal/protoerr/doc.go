// Package protoerr defines the error taxonomy shared by the protocol packages.
//
// Callers classify failures with errors.Is against the sentinel values; each
// error site wraps a sentinel with context via fmt.Errorf("...: %w", ...).
package protoerr
