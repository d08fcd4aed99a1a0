// feldbus-actuator resolves a Stellantriebe actuator's command table and
// reads/writes its demo commands, the way a real motor-control client
// initializes against a device before issuing setpoints.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/alecthomas/kingpin"

	"github.com/turag-ev/feldbus/cmd/internal/demobus"
	"github.com/turag-ev/feldbus/stellantriebe"
	"github.com/turag-ev/feldbus/stellantriebeslave"
)

var (
	flgWidth    = kingpin.Flag("width", "Bus address width (1 or 2).").Default("1").String()
	flgChecksum = kingpin.Flag("checksum", "Checksum kind (none, xor, crc8).").Default("crc8").String()
	flgCount    = kingpin.Flag("count", "Number of simulated plain devices sharing the bus with the actuator.").Default("2").Int()
	flgAttempts = kingpin.Flag("attempts", "Transceive attempts per request.").Default("3").Int()
	flgTimeout  = kingpin.Flag("timeout", "Overall deadline for the run.").Default("5s").Duration()
	flgVelocity = kingpin.Flag("velocity", "Velocity setpoint to write before reading it back.").Default("1.5").Float64()
	flgSimulate = kingpin.Flag("simulate", "Use an in-memory simulated bus (the only mode currently supported).").Default("true").Bool()
)

func main() {
	kingpin.Parse()

	if !*flgSimulate {
		log.Fatal("feldbus-actuator: only -simulate is supported; a real transport.BusTransport is an integration the embedder supplies")
	}

	width, err := demobus.ParseWidth(*flgWidth)
	if err != nil {
		log.Fatal(err)
	}
	kind, err := demobus.ParseChecksum(*flgChecksum)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flgTimeout)
	defer cancel()

	bus, _, actuatorAddr := demobus.Build(width, kind, *flgCount)

	dev := stellantriebe.NewDevice(actuatorAddr, width, kind, bus, *flgAttempts, "actuator")
	velocity := dev.AddCommand("velocity", stellantriebeslave.KindFloat, stellantriebeslave.Write, stellantriebe.Real)
	battery := dev.AddCommand("battery_voltage", stellantriebeslave.KindShort, stellantriebeslave.ReadOnly, stellantriebe.Real)

	if !dev.Init(ctx) {
		log.Fatalf("feldbus-actuator: init failed against device at address %d", actuatorAddr)
	}
	fmt.Printf("resolved command table against device %d\n", actuatorAddr)

	if !velocity.SetFloat(ctx, float32(*flgVelocity)) {
		log.Fatal("feldbus-actuator: velocity write failed")
	}
	got, ok := velocity.GetFloat(ctx)
	if !ok {
		log.Fatal("feldbus-actuator: velocity readback failed")
	}
	fmt.Printf("velocity: wrote %.3f, read back %.3f (cached, write-access)\n", float32(*flgVelocity), got)

	voltage, ok := battery.GetFloat(ctx)
	if !ok {
		log.Fatal("feldbus-actuator: battery_voltage read failed")
	}
	fmt.Printf("battery_voltage: %.3f\n", voltage)
}
