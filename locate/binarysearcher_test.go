package locate_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/locate"
	"github.com/turag-ev/feldbus/transport"
)

// assertionFake answers only bus-assertion probes, matching spec.md §8
// scenario 5: a probe with (mask_len, search_addr) asserts iff some
// enabled uuid's low mask_len bits equal search_addr's low mask_len bits
// — the bit convention BinaryAddressSearcher itself builds search_addr
// under (see binarysearcher.go; grounded on
// feldbus_binaryaddresssearcher.cpp's SearchAddress, which decides bit
// (level-1) at level, growing the address from bit 0 upward).
type assertionFake struct {
	codec frame.Codec
	uuids []uint32
}

func lowBitsEqual(a, b uint32, maskLen uint8) bool {
	if maskLen == 0 {
		return true
	}
	mask := uint32(1)<<maskLen - 1
	return a&mask == b&mask
}

func (f *assertionFake) Transceive(ctx context.Context, tx []byte, rx []byte, address uint16, kind checksum.Kind) (int, int, transport.Result) {
	_, payload, err := f.codec.Decode(tx)
	if err != nil || len(payload) < 7 {
		return len(tx), 0, transport.TransmissionError
	}
	// payload = [protocolBroadcastAll, key(0x04/0x05), maskLen, searchAddr(4)]
	maskLen := payload[2]
	searchAddr := binary.LittleEndian.Uint32(payload[3:7])

	for _, u := range f.uuids {
		if lowBitsEqual(u, searchAddr, maskLen) {
			n := copy(rx, []byte{0xAA, 0xAA})
			return len(tx), n, transport.Success
		}
	}
	return len(tx), 0, transport.TransmissionError
}

func (f *assertionFake) ClearBuffer() {}

func TestBinaryAddressSearcherFindsBothDevices(t *testing.T) {
	width := frame.Width1
	kind := checksum.Xor
	fake := &assertionFake{
		codec: frame.Codec{AddressWidth: width, ChecksumKind: kind},
		uuids: []uint32{0x00000001, 0x80000000},
	}
	loc := locate.NewLocator(width, kind, fake, "searcher")
	searcher := locate.NewBinaryAddressSearcher(loc)
	searcher.MinRequestInterval = 0

	found := searcher.FindAll(context.Background())
	if len(found) != 2 {
		t.Fatalf("found %d devices, want 2: %v", len(found), found)
	}
	seen := map[uint32]bool{}
	for _, u := range found {
		if seen[u] {
			t.Errorf("duplicate uuid reported: %#x", u)
		}
		seen[u] = true
	}
	if !seen[0x00000001] || !seen[0x80000000] {
		t.Errorf("expected uuids {0x1, 0x80000000}, got %v", found)
	}
}
