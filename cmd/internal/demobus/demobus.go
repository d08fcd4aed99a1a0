// Package demobus assembles an in-memory simulator.Bus standing in for a
// real RS-485 segment, for the cmd/ tools' -simulate flag. transport is
// the seam the core leaves to the embedder (package transport's doc
// comment); none of these tools link against real UART hardware, so
// -simulate is the only mode they currently support, mirroring how
// bmc.go's own tests never dial a real BMC either.
package demobus

import (
	"fmt"

	"github.com/rs/xid"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/simulator"
	"github.com/turag-ev/feldbus/slave"
	"github.com/turag-ev/feldbus/stellantriebeslave"
)

// ParseWidth translates a --width flag value ("1" or "2") into a
// frame.Width.
func ParseWidth(s string) (frame.Width, error) {
	switch s {
	case "1":
		return frame.Width1, nil
	case "2":
		return frame.Width2, nil
	default:
		return 0, fmt.Errorf("invalid address width %q (want 1 or 2)", s)
	}
}

// ParseChecksum translates a --checksum flag value into a checksum.Kind.
func ParseChecksum(s string) (checksum.Kind, error) {
	switch s {
	case "none":
		return checksum.None, nil
	case "xor":
		return checksum.Xor, nil
	case "crc8":
		return checksum.Crc8ICode, nil
	default:
		return 0, fmt.Errorf("invalid checksum kind %q (want none, xor or crc8)", s)
	}
}

// foldUUID turns an xid into a plausible 32-bit auto-address UUID by
// XOR-folding its bytes.
func foldUUID() uint32 {
	raw := xid.New().Bytes()
	var u uint32
	for i, b := range raw {
		u ^= uint32(b) << uint((i%4)*8)
	}
	return u
}

// Build assembles a demo bus with count plain slaves (device-info/ping
// only, no application protocol) at sequential addresses starting at 1,
// plus one Stellantriebe actuator at the address right after them, with
// a couple of representative commands. width/kind are the address width
// and checksum algorithm every simulated device is configured with.
func Build(width frame.Width, kind checksum.Kind, plainCount int) (*simulator.Bus, []frame.Address, frame.Address) {
	bus := simulator.NewBus(width)

	addrs := make([]frame.Address, 0, plainCount)
	for i := 0; i < plainCount; i++ {
		addr := frame.Address(i + 1)
		bus.Attach(slave.NewDevice(slave.Config{
			MyAddress:           addr,
			AddressWidth:        width,
			ChecksumKind:        kind,
			BufferSize:          32,
			DeviceProtocolID:    slave.ProtocolBroadcastAll,
			DeviceTypeID:        0x01,
			DeviceName:          "demo-node",
			DeviceVersionInfo:   "demobus/1",
			StatisticsAvailable: true,
			UUID:                foldUUID(),
		}))
		addrs = append(addrs, addr)
	}

	actuatorAddr := frame.Address(plainCount + 1)
	table := stellantriebeslave.NewTable(8, 32,
		stellantriebeslave.NewCommand("velocity", stellantriebeslave.KindFloat, stellantriebeslave.Write, 0.1),
		stellantriebeslave.NewCommand("battery_voltage", stellantriebeslave.KindShort, stellantriebeslave.ReadOnly, 0.01),
	)
	bus.Attach(slave.NewDevice(slave.Config{
		MyAddress:           actuatorAddr,
		AddressWidth:        width,
		ChecksumKind:        kind,
		BufferSize:          32,
		DeviceProtocolID:    slave.ProtocolStellantriebe,
		DeviceTypeID:        0x02,
		DeviceName:          "demo-actuator",
		DeviceVersionInfo:   "demobus/1",
		StatisticsAvailable: true,
		UUID:                foldUUID(),
		Application:         table,
	}))

	return bus, addrs, actuatorAddr
}
