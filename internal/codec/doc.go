// Package codec holds the small protobuf helpers shared by every wire and
// storage encoding in the module.
//
// Encodings are written field by field with protowire so the byte layout
// (field order, presence of zero values) stays under our control and matches
// peers bit for bit.
package codec
