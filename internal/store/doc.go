// Package store provides persistence for protocol records.
//
// Three implementations satisfy domain.ProtocolStore:
//   - MemoryStore keeps records in process memory.
//   - FileStore writes one JSON map file per record kind under a directory,
//     replacing files atomically (temp file then rename).
//   - RedisStore keeps one Redis hash per record kind under a key prefix.
//
// Records are stored in their protobuf encoding, so a loaded record never
// aliases one held by a caller. The local identity key pair is sealed with a
// passphrase (scrypt + ChaCha20-Poly1305) by FileStore and RedisStore.
//
// Remote identities follow trust on first use: an address with no recorded
// key is trusted, after that only the recorded key is.
//
// AccountFileStore persists the account profile per key directory. All
// methods are safe for concurrent use.
package store
