// Package frame implements the wire framing and checksum discipline shared
// by every TURAG Feldbus packet (spec.md §4.C, §6): an address prefix (1 or
// 2 little-endian bytes), a payload, and a trailing checksum byte. It is
// modelled directly on pkg/ipmi.Message's DecodeFromBytes/SerializeTo pair:
// a gopacket.DecodingLayer that slices a checksum off the tail, verifies it
// immediately, and only then looks at the rest of the frame.
package frame

import (
	"fmt"

	"github.com/google/gopacket"

	"github.com/turag-ev/feldbus/checksum"
)

// Width is the configured address width in bytes: 1 or 2 (spec.md §6,
// ADDRESS_LENGTH).
type Width int

const (
	Width1 Width = 1
	Width2 Width = 2
)

// Address is a bus address. Address 0 is the broadcast; an address with
// the high bit set (relative to the configured Width) is the master
// (0x80 for Width1, 0x8000 for Width2); any other value is a slave.
type Address uint16

const (
	Broadcast Address = 0
)

// MasterAddress returns the reserved master-address sentinel for w.
func MasterAddress(w Width) Address {
	if w == Width1 {
		return 0x80
	}
	return 0x8000
}

// IsBroadcast reports whether a is the broadcast address.
func (a Address) IsBroadcast() bool {
	return a == Broadcast
}

// IsMaster reports whether a is the reserved master address for w.
func (a Address) IsMaster(w Width) bool {
	return a == MasterAddress(w)
}

// IsSlave reports whether a addresses an individual slave (neither
// broadcast nor the master sentinel).
func (a Address) IsSlave(w Width) bool {
	return !a.IsBroadcast() && !a.IsMaster(w)
}

// put writes a little-endian into dst, which must have len(dst) == int(w).
func (w Width) put(dst []byte, a Address) {
	dst[0] = byte(a)
	if w == Width2 {
		dst[1] = byte(a >> 8)
	}
}

// get reads a little-endian address of width w from src.
func (w Width) get(src []byte) Address {
	a := Address(src[0])
	if w == Width2 {
		a |= Address(src[1]) << 8
	}
	return a
}

// PeekAddress reads the address prefix of width w from the front of buf
// without checking the checksum — used by the slave state machine's
// inter-character-timeout evaluation, which must classify a frame by
// address before the worker gets a chance to verify it (spec.md §4.D
// step 2 runs before step 3's checksum check).
func (w Width) PeekAddress(buf []byte) Address {
	return w.get(buf)
}

// Codec applies and strips the address prefix and checksum suffix for a
// single configured device. Two devices with different AddressWidth/
// ChecksumKind never share a Codec.
type Codec struct {
	AddressWidth Width
	ChecksumKind checksum.Kind
}

// MinLength is the smallest legal frame for this codec: a zero-payload
// frame is just address + checksum (a ping, a write-ack, any of the
// DeviceLocator broadcasts with an empty reply).
func (c Codec) MinLength() int {
	return int(c.AddressWidth) + c.ChecksumKind.Width()
}

// HeaderLength is the address-prefix width in bytes.
func (c Codec) HeaderLength() int {
	return int(c.AddressWidth)
}

// Encode writes addr into the first HeaderLength() bytes of buf and the
// checksum of buf[:len(buf)-checksumWidth] into its last byte(s). buf must
// already hold HeaderLength() bytes reserved at the front and
// ChecksumKind.Width() bytes reserved at the back, with the payload
// populated in between — mirroring how Message.SerializeTo expects its
// caller to have reserved the completion-code/body-code positions before
// the checksum is computed over everything that precedes it.
func (c Codec) Encode(buf []byte, addr Address) error {
	if len(buf) < c.HeaderLength()+c.ChecksumKind.Width() {
		return fmt.Errorf("frame: buffer too small to hold address and checksum")
	}
	c.AddressWidth.put(buf[:c.HeaderLength()], addr)
	if c.ChecksumKind != checksum.None {
		sum := checksum.Compute(c.ChecksumKind, buf[:len(buf)-c.ChecksumKind.Width()])
		buf[len(buf)-1] = sum
	}
	return nil
}

// ErrChecksum is returned by Decode when the trailing checksum does not
// match the computed value over the preceding bytes.
var ErrChecksum = fmt.Errorf("frame: checksum mismatch")

// ErrShortFrame is returned by Decode when buf is shorter than MinLength().
var ErrShortFrame = fmt.Errorf("frame: frame shorter than minimum length")

// Decode verifies the checksum over buf[:len(buf)-checksumWidth] against
// the trailing checksum byte, then splits off the address. It does not
// apply the address filter (not this device's address and not broadcast);
// callers that need that (package slave) check IsSlave/IsBroadcast/IsMaster
// themselves so the filter policy stays with the dispatcher, not the
// codec.
func (c Codec) Decode(buf []byte) (addr Address, payload []byte, err error) {
	if len(buf) < c.MinLength() {
		return 0, nil, ErrShortFrame
	}
	if c.ChecksumKind != checksum.None {
		claimed := buf[len(buf)-1]
		if !checksum.Verify(c.ChecksumKind, buf[:len(buf)-1], claimed) {
			return 0, nil, ErrChecksum
		}
	}
	addr = c.AddressWidth.get(buf[:c.HeaderLength()])
	payload = buf[c.HeaderLength() : len(buf)-c.ChecksumKind.Width()]
	return addr, payload, nil
}

// Frame is a gopacket.DecodingLayer view of a decoded packet, used where
// the rest of the stack wants layer-style composition (as
// pkg/ipmi.Message does for the IPMI message layer) instead of the plain
// Codec functions above. Address-targeted application code generally uses
// Codec directly; Frame exists for callers that want to plug frame
// decoding into a larger gopacket pipeline.
type Frame struct {
	gopacket.BaseLayer
	Codec    Codec
	Address  Address
	Checksum uint8
}

// layerTypeFeldbusFrame is an arbitrary ID in gopacket's user-defined layer
// range (above its registered well-known protocols), the same way a
// project vendoring its own protocol picks an unused LayerType number.
const layerTypeFeldbusFrame = 12001

var LayerTypeFrame = gopacket.RegisterLayerType(
	layerTypeFeldbusFrame,
	gopacket.LayerTypeMetadata{Name: "FeldbusFrame", Decoder: nil},
)

func (f *Frame) LayerType() gopacket.LayerType { return LayerTypeFrame }

func (f *Frame) CanDecode() gopacket.LayerClass { return f.LayerType() }

func (f *Frame) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// DecodeFromBytes decodes data using f.Codec, populating Address, Checksum
// and BaseLayer.{Contents,Payload}.
func (f *Frame) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	addr, payload, err := f.Codec.Decode(data)
	if err != nil {
		if err == ErrShortFrame {
			df.SetTruncated()
		}
		return err
	}
	f.Address = addr
	f.Checksum = data[len(data)-1]
	f.BaseLayer.Contents = data[:len(data)-f.Codec.ChecksumKind.Width()]
	f.BaseLayer.Payload = payload
	return nil
}

// SerializeTo writes f.Address and a freshly computed checksum around
// whatever payload has already been prepended into b, the way
// Message.SerializeTo prepends its header and appends Checksum2 last.
func (f *Frame) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	header, err := b.PrependBytes(f.Codec.HeaderLength())
	if err != nil {
		return err
	}
	f.Codec.AddressWidth.put(header, f.Address)

	if f.Codec.ChecksumKind == checksum.None {
		return nil
	}
	trailer, err := b.AppendBytes(f.Codec.ChecksumKind.Width())
	if err != nil {
		return err
	}
	if opts.ComputeChecksums {
		f.Checksum = checksum.Compute(f.Codec.ChecksumKind, b.Bytes()[:len(b.Bytes())-len(trailer)])
	}
	trailer[0] = f.Checksum
	return nil
}
