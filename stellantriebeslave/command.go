// Package stellantriebeslave implements the slave side of the
// Stellantriebe actuator sub-protocol (spec.md §4.I): a command table
// keyed by 1-based wire keys, introspection replies, and a
// structured-output facility that concatenates several commands' raw
// values into one reply.
//
// A Table implements slave.PacketProcessor and is meant to be installed
// as a slave.Config.Application.
package stellantriebeslave

import (
	"math"
	"sync"
)

// Kind is the wire storage width and interpretation hint of one command,
// grounded on TURAG_FELDBUS_STELLANTRIEBE_COMMAND_LENGTH_* in
// original_source/tina/tina/feldbus/protocol/turag_feldbus_fuer_stellantriebe.h.
// §9's re-architecture note asks for a tagged descriptor in place of the
// original's void* into a command struct; Kind plus Command.raw is that
// descriptor.
type Kind uint8

const (
	KindNone     Kind = 0x00
	KindChar     Kind = 0x01
	KindShort    Kind = 0x02
	KindLong     Kind = 0x04
	KindNoneText Kind = 0x05
	KindFloat    Kind = 0x06
)

// Width is the number of raw wire bytes a value of this kind occupies.
// None and NoneText commands carry no value and reject both read and
// write.
func (k Kind) Width() int {
	switch k {
	case KindChar:
		return 1
	case KindShort:
		return 2
	case KindLong, KindFloat:
		return 4
	default:
		return 0
	}
}

// Access mirrors TURAG_FELDBUS_STELLANTRIEBE_COMMAND_ACCESS_*.
type Access uint8

const (
	ReadOnly Access = 0x00
	Write    Access = 0x01
)

// ControlFactor is the special factor value (spec.md §4.I) signifying
// that a command's raw integer value has no physical scaling and is
// interpreted by the master as a plain control value rather than a
// scaled float.
const ControlFactor float32 = 0.0

// Command is one entry of a device's command table. Name is matched by
// the master during stellantriebe.Device.init (spec.md §4.I step c);
// Kind, Access and Factor are reported verbatim via the command-info
// subcommand and must match what the application-configured master-side
// Command declares.
type Command struct {
	Name   string
	Kind   Kind
	Access Access
	Factor float32

	// OnChanged, if set, runs synchronously right after a successful
	// write, mirroring turag_feldbus_stellantriebe_value_changed.
	OnChanged func()

	mu  sync.Mutex
	raw [4]byte
}

// NewCommand constructs a command entry. Use ControlFactor for a
// non-scaled control value.
func NewCommand(name string, kind Kind, access Access, factor float32) *Command {
	return &Command{Name: name, Kind: kind, Access: access, Factor: factor}
}

// Raw returns a copy of the command's current raw little-endian wire
// value.
func (c *Command) Raw() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, c.Kind.Width())
	copy(out, c.raw[:])
	return out
}

// SetRaw overwrites the command's raw wire value; len(value) must equal
// Kind.Width(). Invoked by Table.ProcessPacket on a valid write, or
// directly by application code updating a read-only sensor value.
func (c *Command) SetRaw(value []byte) {
	c.mu.Lock()
	copy(c.raw[:], value)
	c.mu.Unlock()
	if c.OnChanged != nil {
		c.OnChanged()
	}
}

// infoReply builds the 6-byte {access, kind, factor} reply for the
// command-info subcommand (original's `memcpy(response,
// &command->write_access, 6)`).
func (c *Command) infoReply() []byte {
	out := make([]byte, 6)
	out[0] = byte(c.Access)
	out[1] = byte(c.Kind)
	bits := math.Float32bits(c.Factor)
	out[2] = byte(bits)
	out[3] = byte(bits >> 8)
	out[4] = byte(bits >> 16)
	out[5] = byte(bits >> 24)
	return out
}
