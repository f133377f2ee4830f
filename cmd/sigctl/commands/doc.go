// Package commands defines the sigctl CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create or rotate the local identity and account
//   - fingerprint    Print the identity fingerprint
//   - publish        Upload fresh pre-keys and refresh the sender certificate
//   - start-session  Establish a session with a peer from their bundle
//   - encrypt        Encrypt a message and print the envelope JSON
//   - decrypt        Decrypt an envelope from an argument or stdin
//   - seal, unseal   Sealed-sender variants of encrypt and decrypt
//   - safety-number  Print the safety number shared with a peer
//   - compare        Check a peer's scannable safety number
//   - group          invite, join, encrypt and decrypt sender-key messages
//
// # Implementation
//
// The root command loads configuration from the environment (and .env),
// applies flag overrides, and builds the dependency graph (stores, services,
// key directory client) before any subcommand runs. Envelopes are exchanged
// out of band as JSON, so the CLI never talks to another client directly.
package commands
