package slave

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
)

func feedFrame(d *Device, data []byte) {
	for _, b := range data {
		d.ByteReceived(b)
	}
	d.InterCharacterTimeout()
}

func TestPingRoundTrip(t *testing.T) {
	// spec.md §8 scenario 1.
	cfg := Config{
		MyAddress:    0x05,
		AddressWidth: frame.Width1,
		ChecksumKind: checksum.Xor,
		BufferSize:   32,
	}
	d := NewDevice(cfg)
	feedFrame(d, []byte{0x05, 0x05})
	d.Tick()
	reply, ok := d.TakeReply()
	if !ok {
		t.Fatalf("expected a reply")
	}
	if diff := cmp.Diff([]byte{}, reply); diff != "" {
		t.Errorf("ping reply payload mismatch (-want +got):\n%s", diff)
	}
}

func TestDeviceInfoLegacyLayout(t *testing.T) {
	// spec.md §8 scenario 2.
	cfg := Config{
		MyAddress:         0x05,
		AddressWidth:      frame.Width1,
		ChecksumKind:      checksum.Crc8ICode,
		BufferSize:        64,
		DeviceProtocolID:  0x01,
		DeviceTypeID:      0x42,
		DeviceName:        "foo",
		DeviceVersionInfo: "v1",
		UptimeFrequencyHz: 1000,
	}
	d := NewDevice(cfg)
	codec := frame.Codec{AddressWidth: frame.Width1, ChecksumKind: checksum.Crc8ICode}
	req := make([]byte, codec.HeaderLength()+1+codec.ChecksumKind.Width())
	req[1] = 0x00 // device-info meta command
	if err := codec.Encode(req, 0x05); err != nil {
		t.Fatal(err)
	}
	feedFrame(d, req)
	d.Tick()
	reply, ok := d.TakeReply()
	if !ok {
		t.Fatalf("expected a reply")
	}
	want := []byte{0x01, 0x42, 0x01, 0x40, 0x00, 0x00, 0x00, 0x03, 0x02, 0xE8, 0x03}
	if diff := cmp.Diff(want, reply); diff != "" {
		t.Errorf("device-info payload mismatch (-want +got):\n%s", diff)
	}
}

func TestBroadcastDeliveredToMatchingProtocol(t *testing.T) {
	var got []byte
	var gotProtocol byte
	cfg := Config{
		MyAddress:           0x05,
		AddressWidth:        frame.Width1,
		ChecksumKind:         checksum.Xor,
		BufferSize:           32,
		DeviceProtocolID:     ProtocolStellantriebe,
		BroadcastsAvailable:  true,
		Broadcasts: BroadcastProcessorFunc(func(protocolID byte, data []byte) {
			gotProtocol = protocolID
			got = append([]byte{}, data...)
		}),
	}
	d := NewDevice(cfg)
	codec := frame.Codec{AddressWidth: frame.Width1, ChecksumKind: checksum.Xor}
	req := make([]byte, codec.HeaderLength()+2+codec.ChecksumKind.Width())
	req[1] = ProtocolStellantriebe
	req[2] = 0xAB
	if err := codec.Encode(req, frame.Broadcast); err != nil {
		t.Fatal(err)
	}
	feedFrame(d, req)
	d.Tick()
	if gotProtocol != ProtocolStellantriebe {
		t.Errorf("protocol = %#x, want %#x", gotProtocol, ProtocolStellantriebe)
	}
	if diff := cmp.Diff([]byte{0xAB}, got); diff != "" {
		t.Errorf("broadcast payload mismatch (-want +got):\n%s", diff)
	}
	if _, ok := d.TakeReply(); ok {
		t.Errorf("broadcasts must never produce a reply")
	}
}

func TestBroadcastIgnoredForOtherProtocol(t *testing.T) {
	called := false
	cfg := Config{
		MyAddress:          0x05,
		AddressWidth:       frame.Width1,
		ChecksumKind:        checksum.Xor,
		BufferSize:          32,
		DeviceProtocolID:    ProtocolStellantriebe,
		BroadcastsAvailable: true,
		Broadcasts:          BroadcastProcessorFunc(func(byte, []byte) { called = true }),
	}
	d := NewDevice(cfg)
	codec := frame.Codec{AddressWidth: frame.Width1, ChecksumKind: checksum.Xor}
	req := make([]byte, codec.HeaderLength()+2+codec.ChecksumKind.Width())
	req[1] = ProtocolASEB
	if err := codec.Encode(req, frame.Broadcast); err != nil {
		t.Fatal(err)
	}
	feedFrame(d, req)
	d.Tick()
	if called {
		t.Errorf("broadcast for a different protocol must not be delivered")
	}
}

func TestBufferOverflowCounted(t *testing.T) {
	cfg := Config{
		MyAddress:           0x05,
		AddressWidth:        frame.Width1,
		ChecksumKind:        checksum.Xor,
		BufferSize:          4,
		StatisticsAvailable: true,
	}
	d := NewDevice(cfg)
	// Overflow the 4-byte buffer while addressed to us.
	data := []byte{0x05, 0x01, 0x02, 0x03, 0x04, 0x05}
	feedFrame(d, data)
	if d.bufOverflowCnt != 1 {
		t.Errorf("bufOverflowCnt = %d, want 1", d.bufOverflowCnt)
	}
	if _, ok := d.TakeReply(); ok {
		t.Errorf("an overflowed frame must not produce a reply")
	}
}

func TestPacketLostCounted(t *testing.T) {
	cfg := Config{MyAddress: 0x05, AddressWidth: frame.Width1, ChecksumKind: checksum.Xor, BufferSize: 32}
	d := NewDevice(cfg)
	feedFrame(d, []byte{0x05, 0x05}) // latches a complete ping, not yet Tick()ed
	feedFrame(d, []byte{0x05, 0x05}) // ISR sees the old one still latched
	if d.lostCount != 1 {
		t.Errorf("lostCount = %d, want 1", d.lostCount)
	}
}

func TestChecksumMismatchDropsPacket(t *testing.T) {
	cfg := Config{MyAddress: 0x05, AddressWidth: frame.Width1, ChecksumKind: checksum.Xor, BufferSize: 32}
	d := NewDevice(cfg)
	feedFrame(d, []byte{0x05, 0xFF}) // bad checksum
	d.Tick()
	if _, ok := d.TakeReply(); ok {
		t.Errorf("checksum mismatch must not produce a reply")
	}
	if d.crcMismatchCnt != 1 {
		t.Errorf("crcMismatchCnt = %d, want 1", d.crcMismatchCnt)
	}
}

func TestUnaddressedUnicastIgnored(t *testing.T) {
	cfg := Config{MyAddress: 0x05, AddressWidth: frame.Width1, ChecksumKind: checksum.Xor, BufferSize: 32}
	d := NewDevice(cfg)
	codec := frame.Codec{AddressWidth: frame.Width1, ChecksumKind: checksum.Xor}
	req := make([]byte, codec.HeaderLength()+codec.ChecksumKind.Width())
	if err := codec.Encode(req, 0x06); err != nil {
		t.Fatal(err)
	}
	feedFrame(d, req)
	if d.hasCompletePacket {
		t.Errorf("a frame addressed to another slave must never latch")
	}
}

func TestStatisticsPacketCountAll(t *testing.T) {
	cfg := Config{
		MyAddress:           0x05,
		AddressWidth:        frame.Width1,
		ChecksumKind:        checksum.Xor,
		BufferSize:          32,
		StatisticsAvailable: true,
	}
	d := NewDevice(cfg)
	feedFrame(d, []byte{0x05, 0x05}) // warm up: one correct ping
	d.Tick()
	d.TakeReply()

	codec := frame.Codec{AddressWidth: frame.Width1, ChecksumKind: checksum.Xor}
	readAll := make([]byte, codec.HeaderLength()+2+codec.ChecksumKind.Width())
	readAll[1], readAll[2] = 0x00, cmdPacketCountAll
	if err := codec.Encode(readAll, 0x05); err != nil {
		t.Fatal(err)
	}
	feedFrame(d, readAll)
	d.Tick()
	reply, ok := d.TakeReply()
	if !ok || len(reply) != 16 {
		t.Fatalf("PACKET_COUNT_ALL reply = %v, ok=%v", reply, ok)
	}
}
