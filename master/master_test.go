package master_test

import (
	"context"
	"testing"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/master"
	"github.com/turag-ev/feldbus/simulator"
	"github.com/turag-ev/feldbus/slave"
)

func newTestDevice(t *testing.T, bus *simulator.Bus, addr frame.Address) *master.Device {
	t.Helper()
	sd := slave.NewDevice(slave.Config{
		MyAddress:         addr,
		AddressWidth:      frame.Width1,
		ChecksumKind:      checksum.Xor,
		BufferSize:        64,
		DeviceProtocolID:  0x01,
		DeviceTypeID:      0x42,
		DeviceName:        "foo",
		DeviceVersionInfo: "v1",
		UptimeFrequencyHz: 1000,
		StatisticsAvailable: true,
	})
	bus.Attach(sd)
	return master.NewDevice(addr, frame.Width1, checksum.Xor, bus, 3, "foo")
}

func TestIsAvailable(t *testing.T) {
	bus := simulator.NewBus(frame.Width1)
	dev := newTestDevice(t, bus, 0x05)
	if !dev.IsAvailable(context.Background(), false) {
		t.Fatalf("expected device to be available")
	}
}

func TestDeviceInfoMemoized(t *testing.T) {
	bus := simulator.NewBus(frame.Width1)
	dev := newTestDevice(t, bus, 0x05)
	info, ok := dev.DeviceInfo(context.Background())
	if !ok {
		t.Fatalf("expected DeviceInfo to succeed")
	}
	if info.DeviceProtocolID != 0x01 || info.DeviceTypeID != 0x42 {
		t.Errorf("unexpected device info: %+v", info)
	}
	if info.ChecksumKind != checksum.Xor {
		t.Errorf("ChecksumKind = %v, want Xor", info.ChecksumKind)
	}

	// A second DeviceInfo call must return the memoized value without
	// touching the bus again.
	info2, ok2 := dev.DeviceInfo(context.Background())
	if !ok2 || info2 != info {
		t.Errorf("expected memoized DeviceInfo to be returned unchanged")
	}
}

func TestTransceiveRetriesThenSucceeds(t *testing.T) {
	bus := simulator.NewBus(frame.Width1)
	dev := newTestDevice(t, bus, 0x05)
	bus.DropNextReply = 2
	if !dev.IsAvailable(context.Background(), false) {
		t.Fatalf("expected retry to eventually succeed")
	}
}

func TestDysfunctionalAfterRepeatedFailures(t *testing.T) {
	bus := simulator.NewBus(frame.Width1)
	dev := newTestDevice(t, bus, 0x05)
	bus.DropNextReply = 100
	// maxAttempts=3 in newTestDevice: one IsAvailable call exhausts all 3
	// attempts, incrementing NoAnswerError by 3 in a single call.
	dev.IsAvailable(context.Background(), true)
	if !dev.Dysfunctional() {
		t.Errorf("expected device to be dysfunctional after repeated failures")
	}
	if dev.IsAvailable(context.Background(), false) {
		t.Errorf("IsAvailable(force=false) must short-circuit once dysfunctional")
	}
}

func TestPacketCounters(t *testing.T) {
	bus := simulator.NewBus(frame.Width1)
	dev := newTestDevice(t, bus, 0x05)
	dev.IsAvailable(context.Background(), false)
	counters, ok := dev.PacketCounters(context.Background())
	if !ok {
		t.Fatalf("expected PacketCounters to succeed")
	}
	if counters.Correct == 0 {
		t.Errorf("expected at least one correct packet counted")
	}
}
