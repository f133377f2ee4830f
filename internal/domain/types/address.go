package types

import "fmt"

// ProtocolAddress names one device of a remote account. Sessions, identities
// and locks are keyed by it.
type ProtocolAddress struct {
	Name     string `json:"name"`
	DeviceID uint32 `json:"device_id"`
}

// NewProtocolAddress returns the address of device deviceID of name.
func NewProtocolAddress(name string, deviceID uint32) ProtocolAddress {
	return ProtocolAddress{Name: name, DeviceID: deviceID}
}

// String returns "name.device".
func (a ProtocolAddress) String() string { return fmt.Sprintf("%s.%d", a.Name, a.DeviceID) }

// Direction tells an identity store whether a key is about to be used to
// send or was just received.
type Direction int

const (
	Sending Direction = iota
	Receiving
)

func (d Direction) String() string {
	if d == Sending {
		return "sending"
	}
	return "receiving"
}

// SenderKeyName identifies one sender's chain within a group.
type SenderKeyName struct {
	GroupID string          `json:"group_id"`
	Sender  ProtocolAddress `json:"sender"`
}

// String returns "group::name.device".
func (n SenderKeyName) String() string { return n.GroupID + "::" + n.Sender.String() }
