// Package prekey holds the pre-key bundle a device publishes and the records
// it keeps for the private halves: one-time pre-keys, signed pre-keys and
// Kyber1024 pre-keys.
//
// Records serialize with the protobuf field numbers existing clients use
// (id 1, public 2, private 3, signature 4, fixed64 timestamp 5), so stores can
// hold them as opaque bytes.
package prekey
