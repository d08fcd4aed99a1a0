package demobus

import (
	"context"
	"encoding/binary"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/transport"
)

// LocateFake answers the well-known DeviceLocator broadcast family
// (spec.md §4.H) for a fixed set of simulated UUIDs: bus-assertion probes
// for every device, and the UUID-targeted get/ping/address operations for
// whichever single device the payload names. The base slave dispatcher
// (package slave) has no reserved-broadcast responder for this
// protocol-ID-0/command-0 family — see DESIGN.md's locate section — so
// feldbus-locate exercises the real locate/BinaryAddressSearcher code
// against this fake instead of a simulator.Bus, the same way
// locate/binarysearcher_test.go and locate/locate_test.go do.
type LocateFake struct {
	codec frame.Codec
	uuids []uint32
	addrs map[uint32]frame.Address
}

// NewLocateFake mints count random-looking UUIDs and returns a fake bus
// exposing them to the locate protocol.
func NewLocateFake(width frame.Width, kind checksum.Kind, count int) *LocateFake {
	f := &LocateFake{
		codec: frame.Codec{AddressWidth: width, ChecksumKind: kind},
		addrs: make(map[uint32]frame.Address),
	}
	for i := 0; i < count; i++ {
		f.uuids = append(f.uuids, foldUUID())
	}
	return f
}

// UUIDs returns the fake's simulated device identifiers.
func (f *LocateFake) UUIDs() []uint32 { return f.uuids }

func lowBitsEqual(a, b uint32, maskLen uint8) bool {
	if maskLen == 0 {
		return true
	}
	mask := uint32(1)<<maskLen - 1
	return a&mask == b&mask
}

func (f *LocateFake) reply(rx []byte, address uint16, kind checksum.Kind, data []byte) (int, transport.Result) {
	out := make([]byte, f.codec.HeaderLength()+len(data)+kind.Width())
	copy(out[f.codec.HeaderLength():], data)
	if err := f.codec.Encode(out, frame.Address(address)); err != nil {
		return 0, transport.TransmissionError
	}
	return copy(rx, out), transport.Success
}

// Transceive implements transport.BusTransport.
func (f *LocateFake) Transceive(ctx context.Context, tx []byte, rx []byte, address uint16, kind checksum.Kind) (int, int, transport.Result) {
	_, payload, err := f.codec.Decode(tx)
	if err != nil || len(payload) < 1 || payload[0] != 0x00 {
		return len(tx), 0, transport.TransmissionError
	}
	body := payload[1:]

	if len(body) == 6 && (body[0] == 0x04 || body[0] == 0x05) {
		maskLen, searchAddr := body[1], binary.LittleEndian.Uint32(body[2:6])
		excludeAssigned := body[0] == 0x05
		for _, u := range f.uuids {
			if excludeAssigned {
				if _, assigned := f.addrs[u]; assigned {
					continue
				}
			}
			if lowBitsEqual(u, searchAddr, maskLen) {
				n, result := f.reply(rx, address, kind, []byte{0xAA})
				return len(tx), n, result
			}
		}
		return len(tx), 0, transport.TransmissionError
	}

	switch {
	case len(body) == 1 && body[0] == 0x00:
		if len(f.uuids) == 0 {
			return len(tx), 0, transport.TransmissionError
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, f.uuids[0])
		n, result := f.reply(rx, address, kind, buf)
		return len(tx), n, result

	case len(body) == 5 && body[0] == 0x00:
		uuid := binary.LittleEndian.Uint32(body[1:5])
		if !f.has(uuid) {
			return len(tx), 0, transport.TransmissionError
		}
		n, result := f.reply(rx, address, kind, nil)
		return len(tx), n, result

	case len(body) == 6 && body[0] == 0x00 && body[5] == 0x00:
		uuid := binary.LittleEndian.Uint32(body[1:5])
		addr, ok := f.addrs[uuid]
		if !f.has(uuid) || !ok {
			return len(tx), 0, transport.TransmissionError
		}
		n, result := f.reply(rx, address, kind, []byte{byte(addr)})
		return len(tx), n, result

	case len(body) == 6 && body[0] == 0x00 && body[5] == 0x01:
		uuid := binary.LittleEndian.Uint32(body[1:5])
		if !f.has(uuid) {
			return len(tx), 0, transport.TransmissionError
		}
		delete(f.addrs, uuid)
		n, result := f.reply(rx, address, kind, nil)
		return len(tx), n, result

	case len(body) == 7 && body[0] == 0x00:
		uuid := binary.LittleEndian.Uint32(body[1:5])
		if !f.has(uuid) || body[5] != 0x00 {
			return len(tx), 0, transport.TransmissionError
		}
		f.addrs[uuid] = frame.Address(body[6])
		n, result := f.reply(rx, address, kind, []byte{1})
		return len(tx), n, result

	default:
		return len(tx), 0, transport.TransmissionError
	}
}

func (f *LocateFake) has(uuid uint32) bool {
	for _, u := range f.uuids {
		if u == uuid {
			return true
		}
	}
	return false
}

// ClearBuffer is a no-op: the fake has no buffering between calls.
func (f *LocateFake) ClearBuffer() {}
