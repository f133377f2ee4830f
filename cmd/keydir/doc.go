// Package main runs the key directory: the HTTP service clients publish
// pre-key bundles to, fetch peers' bundles from, and obtain sender
// certificates from. It never sees plaintext, private keys or ciphertext.
//
// HTTP API
//
//	PUT /v1/keys
//	    Store a device's PublishedBundle. Signatures are checked and the
//	    previous one-time pre-keys for that device are replaced.
//
//	GET /v1/keys/{username}/{device}
//	    Return a pre-key bundle for the device, consuming one one-time
//	    pre-key when any remain.
//
//	GET /v1/trust-root
//	    Return the trust-root public key clients pin on first use.
//
//	POST /v1/certificate
//	    Issue a sender certificate for a published identity and bind the
//	    account uuid to its username.
//
//	GET /v1/accounts/{uuid}
//	    Resolve a sender uuid to the username it was certified for.
//
// Behaviour
//
//   - State lives in memory unless SIGNALCORE_REDIS_ADDR is set.
//   - The trust-root key is read from KEYDIR_TRUST_ROOT_FILE and created on
//     first start. The server certificate key is regenerated at each start.
//   - Errors are JSON {"error": "..."} with 400, 404, 409 or 500 status.
//   - The default listen address is :8080; SIGINT and SIGTERM shut it down
//     gracefully.
package main
