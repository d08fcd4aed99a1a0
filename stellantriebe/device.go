// Package stellantriebe implements the master side of the Stellantriebe
// actuator sub-protocol (spec.md §4.I): a typed Command table, the
// name-matching init handshake, and cached write access.
package stellantriebe

import (
	"context"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/master"
	"github.com/turag-ev/feldbus/stellantriebeslave"
	"github.com/turag-ev/feldbus/transport"
)

// command-info subcommand selectors, matching stellantriebeslave's wire
// constants (duplicated intentionally: master and slave are separate
// protocol roles even though they agree on the same byte values).
const (
	infoGet               byte = 0x00
	infoGetCommandsetSize byte = 0x01
	infoGetNameLength     byte = 0x02
	infoGetName           byte = 0x03
)

// Device is a Stellantriebe actuator session: a BaseDevice plus the
// application's declared Command table (spec.md §4.I).
type Device struct {
	base     *master.BaseDevice
	commands []*Command
}

// NewDevice constructs a Stellantriebe master session.
func NewDevice(addr frame.Address, width frame.Width, kind checksum.Kind, t transport.BusTransport, maxAttempts int, label string) *Device {
	return &Device{base: master.NewBaseDevice(addr, width, kind, t, maxAttempts, label)}
}

// AddCommand declares one application-expected command. It must be
// called before Init; Init resolves each declared command against the
// device's reported command set by exact name match (spec.md §4.I step
// c).
func (d *Device) AddCommand(name string, kind stellantriebeslave.Kind, access stellantriebeslave.Access, typ CommandType) *Command {
	c := &Command{Name: name, Kind: kind, Access: access, Type: typ, dev: d}
	d.commands = append(d.commands, c)
	return c
}

// Init performs StellantriebeDevice::init: query the device's
// commandset_size, then for each declared Command search the device's
// reported names for an exact match, verifying kind/access/control
// classification before recording the wire key and factor. Init returns
// false if the commandset_size query fails or if any declared Command
// was not found or failed verification; already-matched commands are
// still usable even if a later one fails.
func (d *Device) Init(ctx context.Context) bool {
	sizeRaw, ok := d.commandInfoRequest(ctx, 1, infoGetCommandsetSize, 1)
	if !ok {
		return false
	}
	commandSetSize := int(sizeRaw[0])

	allOK := true
	for _, cmd := range d.commands {
		if !d.resolveCommand(ctx, cmd, commandSetSize) {
			allOK = false
		}
	}
	return allOK
}

func (d *Device) resolveCommand(ctx context.Context, cmd *Command, commandSetSize int) bool {
	for i := 1; i <= commandSetSize; i++ {
		key := byte(i)

		nameLenRaw, ok := d.commandInfoRequest(ctx, key, infoGetNameLength, 1)
		if !ok {
			continue
		}
		nameLen := int(nameLenRaw[0])
		if nameLen == 0 {
			continue
		}

		nameRaw, ok := d.commandInfoRequest(ctx, key, infoGetName, nameLen)
		if !ok || len(nameRaw) != nameLen {
			continue
		}
		if string(nameRaw) != cmd.Name {
			continue
		}

		infoRaw, ok := d.commandInfoRequest(ctx, key, infoGet, 6)
		if !ok {
			continue
		}
		access := stellantriebeslave.Access(infoRaw[0])
		kind := stellantriebeslave.Kind(infoRaw[1])
		factor := decodeFactor(infoRaw[2:6])

		if kind != cmd.Kind || access != cmd.Access {
			continue
		}
		devControl := factor == stellantriebeslave.ControlFactor
		cmdControl := cmd.Type == Control
		if devControl != cmdControl {
			continue
		}

		cmd.setKey(key, factor)
		return true
	}
	return false
}

// commandInfoRequest issues one command-info subcommand: `key | selector
// | selector | selector` (the original redundantly repeats the selector
// across cmd0/cmd1/cmd2; see stellantriebedevice.cpp's GetCommandInfo).
// key must be a valid 1-based command-table index for the device to
// route the request into its length==4 info branch at all.
func (d *Device) commandInfoRequest(ctx context.Context, key, selector byte, replyLen int) ([]byte, bool) {
	payload := []byte{key, selector, selector, selector}
	return d.base.Transceive(ctx, payload, replyLen)
}
