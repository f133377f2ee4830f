// Package relay is the key directory: an HTTP server that stores published
// pre-key bundles and issues sender certificates, and the client the CLI
// uses to reach it.
//
// # HTTP API
//
//	PUT  /v1/keys                     publish a PublishedBundle (self-signed)
//	GET  /v1/keys/{username}/{device}  fetch a bundle; consumes one one-time pre-key
//	GET  /v1/trust-root               the trust-root public key
//	POST /v1/certificate              issue a sender certificate for a published identity
//	GET  /v1/accounts/{uuid}          the username a certificate uuid belongs to
//
// Bodies are JSON. Errors carry {"error": "..."} with 400 for malformed or
// badly signed input, 404 for unknown bundles and accounts, and 409 when a
// uuid is already bound to another username.
//
// The directory never sees private keys or plaintext. It does not
// authenticate publishers; a certificate is only useful to whoever holds the
// private half of the published identity key.
//
// # Storage
//
// MemoryDirectory keeps state in process and RedisDirectory shares it
// between processes. One-time pre-keys are handed out at most once each.
package relay
