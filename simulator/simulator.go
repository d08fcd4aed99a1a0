// Package simulator provides an in-memory transport.BusTransport that
// drives a real slave.Device directly, with no serial hardware involved.
// It is grounded on the way bmc.go's tests fake a BMC transport in-process
// rather than spin up real IPMI hardware, adapted here to front an actual
// protocol state machine instead of a canned byte-for-byte fixture.
package simulator

import (
	"context"
	"sync"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/slave"
	"github.com/turag-ev/feldbus/transport"
)

// Bus wires one or more slave.Device instances to a shared in-memory
// medium. Every Transceive call feeds tx byte-by-byte into every attached
// device's ByteReceived, ticks them, and collects whichever device staged
// a reply.
type Bus struct {
	// AddressWidth must match the width every attached device and caller
	// codec agree on; a simulated bus models one physical medium, which
	// has exactly one address width.
	AddressWidth frame.Width

	mu      sync.Mutex
	devices []*slave.Device

	// DropNextReply, when >0, makes the next N Transceive calls behave as
	// if the addressed slave never answered (transport.TransmissionError
	// with rxN=0), for exercising master retry/dysfunctional logic.
	DropNextReply int
	// CorruptNextReply, when >0, flips the last byte of the next N
	// replies, for exercising transport.Success-with-bad-checksum paths
	// the frame codec must reject.
	CorruptNextReply int
}

// NewBus constructs an empty simulated bus using the given address width.
func NewBus(width frame.Width) *Bus { return &Bus{AddressWidth: width} }

// Attach adds a slave device to the bus.
func (b *Bus) Attach(d *slave.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = append(b.devices, d)
}

// Transceive implements transport.BusTransport.
func (b *Bus) Transceive(ctx context.Context, tx []byte, rx []byte, address uint16, kind checksum.Kind) (txN int, rxN int, result transport.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.DropNextReply > 0 {
		b.DropNextReply--
		return len(tx), 0, transport.TransmissionError
	}

	for _, dev := range b.devices {
		for _, by := range tx {
			dev.ByteReceived(by)
		}
		dev.InterCharacterTimeout()
		dev.Tick()
	}

	for _, dev := range b.devices {
		reply, ok := dev.TakeReply()
		if !ok {
			continue
		}
		codec := frame.Codec{AddressWidth: b.AddressWidth, ChecksumKind: kind}
		wire := make([]byte, codec.HeaderLength()+len(reply)+kind.Width())
		copy(wire[codec.HeaderLength():], reply)
		if err := codec.Encode(wire, frame.Address(address)); err != nil {
			return len(tx), 0, transport.TransmissionError
		}
		if b.CorruptNextReply > 0 {
			b.CorruptNextReply--
			wire[len(wire)-1] ^= 0xFF
		}
		n := copy(rx, wire)
		return len(tx), n, transport.Success
	}
	return len(tx), 0, transport.TransmissionError
}

// ClearBuffer is a no-op: the simulated bus has no buffering between
// calls.
func (b *Bus) ClearBuffer() {}
