package frame

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/turag-ev/feldbus/checksum"
)

func roundTrip(t *testing.T, c Codec, addr Address, payload []byte) {
	t.Helper()
	buf := make([]byte, c.HeaderLength()+len(payload)+c.ChecksumKind.Width())
	copy(buf[c.HeaderLength():], payload)
	if err := c.Encode(buf, addr); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotAddr, gotPayload, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotAddr != addr {
		t.Errorf("address round-trip: got %#x, want %#x", gotAddr, addr)
	}
	if diff := cmp.Diff(payload, gotPayload); diff != "" {
		t.Errorf("payload round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, width := range []Width{Width1, Width2} {
		for _, kind := range []checksum.Kind{checksum.Xor, checksum.Crc8ICode} {
			c := Codec{AddressWidth: width, ChecksumKind: kind}
			roundTrip(t, c, 0x05, []byte{})
			roundTrip(t, c, 0x05, []byte{0x00})
			roundTrip(t, c, 0x05, []byte{0x01, 0x02, 0x03, 0x04})
			roundTrip(t, c, MasterAddress(width), []byte{0xAB})
			roundTrip(t, c, Broadcast, []byte{0x01, 0x02})
		}
	}
}

func TestPingFrame(t *testing.T) {
	// spec.md §8 scenario 1: MY_ADDR=0x05, XOR checksum. Master sends
	// [05, xor(05)] = [05, 05]; slave responds [85, 85].
	c := Codec{AddressWidth: Width1, ChecksumKind: checksum.Xor}
	buf := make([]byte, c.HeaderLength()+c.ChecksumKind.Width())
	if err := c.Encode(buf, 0x05); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x05, 0x05}, buf); diff != "" {
		t.Errorf("ping request mismatch (-want +got):\n%s", diff)
	}
	response := make([]byte, c.HeaderLength()+c.ChecksumKind.Width())
	if err := c.Encode(response, 0x85); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x85, 0x85}, response); diff != "" {
		t.Errorf("ping response mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	c := Codec{AddressWidth: Width1, ChecksumKind: checksum.Xor}
	buf := []byte{0x05, 0x00, 0xFF} // bad checksum
	if _, _, err := c.Decode(buf); err != ErrChecksum {
		t.Errorf("Decode() error = %v, want ErrChecksum", err)
	}
}

func TestDecodeShortFrame(t *testing.T) {
	c := Codec{AddressWidth: Width2, ChecksumKind: checksum.Crc8ICode}
	if _, _, err := c.Decode([]byte{0x00}); err != ErrShortFrame {
		t.Errorf("Decode() error = %v, want ErrShortFrame", err)
	}
}

func TestAddressClassification(t *testing.T) {
	if !Broadcast.IsBroadcast() {
		t.Error("Broadcast.IsBroadcast() = false")
	}
	if !MasterAddress(Width1).IsMaster(Width1) {
		t.Error("MasterAddress(Width1).IsMaster(Width1) = false")
	}
	if !Address(0x05).IsSlave(Width1) {
		t.Error("Address(0x05).IsSlave(Width1) = false")
	}
	if Address(0x8000).IsSlave(Width2) {
		t.Error("master address classified as slave for Width2")
	}
}
