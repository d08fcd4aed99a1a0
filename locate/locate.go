// Package locate implements the well-known address-discovery broadcast
// commands (DeviceLocator, spec.md §4.H) and the binary-tree UUID probing
// algorithm (BinaryAddressSearcher) built on top of them. The wire payload
// shapes are grounded directly on
// original_source/tina++/feldbus/host/feldbus_devicelocator.cpp, since
// spec.md's §4.H table names each operation without giving it a unique
// leading discriminator byte — several locate operations share the same
// first payload byte and are told apart only by total payload length.
package locate

import (
	"context"
	"encoding/binary"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/master"
	"github.com/turag-ev/feldbus/slave"
	"github.com/turag-ev/feldbus/transport"
)

// Locator issues address-discovery broadcasts (protocol ID 0,
// spec.md §4.H) over t. Every call is a single broadcast transaction;
// none of these commands memoize state, so Locator carries no per-device
// cache the way master.Device does.
type Locator struct {
	base  *master.BaseDevice
	t     transport.BusTransport
	codec frame.Codec
}

// NewLocator constructs a Locator broadcasting over t.
func NewLocator(width frame.Width, kind checksum.Kind, t transport.BusTransport, label string) *Locator {
	return &Locator{
		base:  master.NewBaseDevice(frame.Broadcast, width, kind, t, 1, label),
		t:     t,
		codec: frame.Codec{AddressWidth: width, ChecksumKind: kind},
	}
}

// broadcastPayload prepends the broadcast-all protocol ID (0x00) every
// locate operation rides on, ahead of the address-discovery payload
// proper.
func broadcastPayload(data ...byte) []byte {
	out := make([]byte, 0, 1+len(data))
	out = append(out, slave.ProtocolBroadcastAll)
	return append(out, data...)
}

// GetUUID asks whatever single device is listening (normally used only
// when exactly one slave without an address is on the bus) for its UUID.
func (l *Locator) GetUUID(ctx context.Context) (uint32, bool) {
	reply, ok := l.base.Transceive(ctx, broadcastPayload(0x00), 4)
	if !ok || len(reply) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(reply), true
}

// PingByUUID pings the single slave with the given UUID.
func (l *Locator) PingByUUID(ctx context.Context, uuid uint32) bool {
	args := make([]byte, 4)
	binary.LittleEndian.PutUint32(args, uuid)
	_, ok := l.base.Transceive(ctx, broadcastPayload(append([]byte{0x00}, args...)...), 0)
	return ok
}

// GetBusAddress asks the slave with the given UUID for its currently
// assigned bus address.
func (l *Locator) GetBusAddress(ctx context.Context, uuid uint32) (frame.Address, bool) {
	body := make([]byte, 6)
	body[0] = 0x00
	binary.LittleEndian.PutUint32(body[1:5], uuid)
	body[5] = 0x00
	reply, ok := l.base.Transceive(ctx, broadcastPayload(body...), 1)
	if !ok || len(reply) < 1 {
		return 0, false
	}
	return frame.Address(reply[0]), true
}

// SetBusAddress assigns addr to the slave with the given UUID. It returns
// true iff the slave accepted the assignment.
func (l *Locator) SetBusAddress(ctx context.Context, uuid uint32, addr frame.Address) bool {
	body := make([]byte, 7)
	body[0] = 0x00
	binary.LittleEndian.PutUint32(body[1:5], uuid)
	body[5] = 0x00
	body[6] = byte(addr)
	reply, ok := l.base.Transceive(ctx, broadcastPayload(body...), 1)
	return ok && len(reply) >= 1 && reply[0] == 1
}

// ResetBusAddress clears the bus address assigned to the slave with the
// given UUID.
func (l *Locator) ResetBusAddress(ctx context.Context, uuid uint32) bool {
	body := make([]byte, 6)
	body[0] = 0x00
	binary.LittleEndian.PutUint32(body[1:5], uuid)
	body[5] = 0x01
	_, ok := l.base.Transceive(ctx, broadcastPayload(body...), 0)
	return ok
}

// EnableNeighbors re-enables participation in address discovery for every
// slave currently disabled.
func (l *Locator) EnableNeighbors(ctx context.Context) bool {
	_, ok := l.base.Transceive(ctx, broadcastPayload(0x01), 0)
	return ok
}

// DisableNeighbors suppresses every currently-enabled slave's
// participation in further address-discovery broadcasts.
func (l *Locator) DisableNeighbors(ctx context.Context) bool {
	_, ok := l.base.Transceive(ctx, broadcastPayload(0x02), 0)
	return ok
}

// ResetAllAddresses clears every slave's assigned bus address.
func (l *Locator) ResetAllAddresses(ctx context.Context) bool {
	_, ok := l.base.Transceive(ctx, broadcastPayload(0x03), 0)
	return ok
}

// GoToSleep broadcasts the low-power-sleep directive.
func (l *Locator) GoToSleep(ctx context.Context) bool {
	_, ok := l.base.Transceive(ctx, broadcastPayload(0x06), 0)
	return ok
}

// RequestBusAssertion issues a single bus-assertion probe and reports
// detected_assertion directly from the transport result, bypassing
// BaseDevice's retry loop and frame-level checksum verification entirely:
// spec.md §4.H defines detected_assertion as "result != TransmissionError",
// which includes the ChecksumError case — an assertion produces
// deliberately meaningless reply bytes, matching
// feldbus_devicelocator.cpp's requestBusAssertion comment that a CRC
// failure here is an expected, not exceptional, outcome.
func (l *Locator) RequestBusAssertion(ctx context.Context, maskLen uint8, searchAddr uint32) bool {
	return l.requestBusAssertion(ctx, maskLen, searchAddr, false)
}

// RequestBusAssertionUnassignedOnly is RequestBusAssertion's 0x05 variant:
// only slaves with no bus address assigned yet may assert.
func (l *Locator) RequestBusAssertionUnassignedOnly(ctx context.Context, maskLen uint8, searchAddr uint32) bool {
	return l.requestBusAssertion(ctx, maskLen, searchAddr, true)
}

func (l *Locator) requestBusAssertion(ctx context.Context, maskLen uint8, searchAddr uint32, excludeAssigned bool) bool {
	key := byte(0x04)
	if excludeAssigned {
		key = 0x05
	}
	body := make([]byte, 6)
	body[0] = key
	body[1] = maskLen
	binary.LittleEndian.PutUint32(body[2:], searchAddr)
	payload := broadcastPayload(body...)

	tx := make([]byte, l.codec.HeaderLength()+len(payload)+l.codec.ChecksumKind.Width())
	copy(tx[l.codec.HeaderLength():], payload)
	if err := l.codec.Encode(tx, frame.Broadcast); err != nil {
		return false
	}
	rx := make([]byte, l.codec.HeaderLength()+1+l.codec.ChecksumKind.Width())

	l.t.ClearBuffer()
	_, _, result := l.t.Transceive(ctx, tx, rx, uint16(frame.Broadcast), l.codec.ChecksumKind)
	return result != transport.TransmissionError
}
