package stellantriebe_test

import (
	"context"
	"testing"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/simulator"
	"github.com/turag-ev/feldbus/slave"
	"github.com/turag-ev/feldbus/stellantriebe"
	"github.com/turag-ev/feldbus/stellantriebeslave"
)

func newScenarioBus(t *testing.T) (*simulator.Bus, *stellantriebeslave.Command) {
	t.Helper()
	angle := stellantriebeslave.NewCommand("desiredAngle", stellantriebeslave.KindShort, stellantriebeslave.Write, 2.0)
	angle.SetRaw([]byte{0x00, 0x00})
	table := stellantriebeslave.NewTable(8, 64, angle)

	sd := slave.NewDevice(slave.Config{
		MyAddress:        0x05,
		AddressWidth:     frame.Width1,
		ChecksumKind:     checksum.Xor,
		BufferSize:       64,
		DeviceProtocolID: 0x01,
		DeviceTypeID:     0x42,
		Application:      table,
	})

	bus := simulator.NewBus(frame.Width1)
	bus.Attach(sd)
	return bus, angle
}

func TestDeviceInitAndFloatRoundTrip(t *testing.T) {
	bus, _ := newScenarioBus(t)
	ctx := context.Background()

	dev := stellantriebe.NewDevice(0x05, frame.Width1, checksum.Xor, bus, 3, "actuator")
	cmd := dev.AddCommand("desiredAngle", stellantriebeslave.KindShort, stellantriebeslave.Write, stellantriebe.Real)

	if !dev.Init(ctx) {
		t.Fatalf("Init failed to resolve declared commands")
	}

	if !cmd.SetFloat(ctx, 90.0) {
		t.Fatalf("SetFloat failed")
	}
	got, ok := cmd.GetFloat(ctx)
	if !ok {
		t.Fatalf("GetFloat failed")
	}
	if got != 90.0 {
		t.Errorf("GetFloat = %v, want 90.0 (factor 2.0, raw 45)", got)
	}
}

func TestGetRawBeforeInitFails(t *testing.T) {
	bus, _ := newScenarioBus(t)
	dev := stellantriebe.NewDevice(0x05, frame.Width1, checksum.Xor, bus, 3, "actuator")
	cmd := dev.AddCommand("desiredAngle", stellantriebeslave.KindShort, stellantriebeslave.Write, stellantriebe.Real)

	if _, ok := cmd.GetRaw(context.Background()); ok {
		t.Errorf("GetRaw before Init succeeded, want failure (command not resolved)")
	}
}

func TestInitFailsOnNameMismatch(t *testing.T) {
	bus, _ := newScenarioBus(t)
	dev := stellantriebe.NewDevice(0x05, frame.Width1, checksum.Xor, bus, 3, "actuator")
	dev.AddCommand("doesNotExist", stellantriebeslave.KindShort, stellantriebeslave.Write, stellantriebe.Real)

	if dev.Init(context.Background()) {
		t.Errorf("Init succeeded despite no matching command name on the device")
	}
}
