// feldbus-ping pings every device on a bus and prints whatever device
// info it can retrieve, the way chassis-control dials a single BMC and
// reports its IPMI version before issuing a command.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/alecthomas/kingpin"

	"github.com/turag-ev/feldbus/cmd/internal/demobus"
	"github.com/turag-ev/feldbus/master"
)

var (
	flgWidth    = kingpin.Flag("width", "Bus address width (1 or 2).").Default("1").String()
	flgChecksum = kingpin.Flag("checksum", "Checksum kind (none, xor, crc8).").Default("crc8").String()
	flgCount    = kingpin.Flag("count", "Number of simulated plain devices to attach.").Default("3").Int()
	flgAttempts = kingpin.Flag("attempts", "Transceive attempts per ping.").Default("3").Int()
	flgTimeout  = kingpin.Flag("timeout", "Overall deadline for the run.").Default("5s").Duration()
	flgSimulate = kingpin.Flag("simulate", "Use an in-memory simulated bus (the only mode currently supported).").Default("true").Bool()
)

func main() {
	kingpin.Parse()

	if !*flgSimulate {
		log.Fatal("feldbus-ping: only -simulate is supported; a real transport.BusTransport is an integration the embedder supplies")
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

	bus, addrs, actuatorAddr := demobus.Build(width, kind, *flgCount)
	addrs = append(addrs, actuatorAddr)

	for _, addr := range addrs {
		dev := master.NewDevice(addr, width, kind, bus, *flgAttempts, fmt.Sprintf("ping-%d", addr))
		if !dev.IsAvailable(ctx, true) {
			fmt.Printf("%d: no answer\n", addr)
			continue
		}

		name, _ := dev.Name(ctx)
		version, _ := dev.VersionInfo(ctx)
		info, ok := dev.DeviceInfo(ctx)
		if !ok {
			fmt.Printf("%d: available, name=%q version=%q\n", addr, name, version)
			continue
		}
		fmt.Printf("%d: available, name=%q version=%q protocol=0x%02x type=0x%02x checksum=%s\n",
			addr, name, version, info.DeviceProtocolID, info.DeviceTypeID, info.ChecksumKind)
	}
}
