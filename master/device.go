package master

import (
	"context"
	"sync"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/transport"
)

// Reserved base-protocol subcommands, mirroring package slave's dispatch
// table (spec.md §4.E/§4.G).
const (
	cmdDeviceName         byte = 0x00
	cmdUptime             byte = 0x01
	cmdVersionInfo        byte = 0x02
	cmdPacketCountCorrect byte = 0x03
	cmdPacketCountBufov   byte = 0x04
	cmdPacketCountLost    byte = 0x05
	cmdPacketCountCrc     byte = 0x06
	cmdPacketCountAll     byte = 0x07
	cmdResetStatistics    byte = 0x08
	cmdUUID               byte = 0x09
	cmdExtendedInfo       byte = 0x0A
)

// DysfunctionalThreshold is the number of transport failures (summed
// across every error counter since the counters were last cleared) after
// which a Device is considered dysfunctional and is_available(false)
// short-circuits without touching the bus (spec.md §4.G).
const DysfunctionalThreshold = 3

// Device is a single master-side session addressing one slave. It
// memoizes DeviceInfo/ExtendedDeviceInfo after the first successful
// query. Once the device looks dysfunctional, IsAvailable(ctx, false)
// answers false without bus traffic; the other queries and Transceive
// are not gated and still go to the bus.
type Device struct {
	base *BaseDevice

	mu            sync.Mutex
	deviceInfo    *DeviceInfo
	extDeviceInfo *ExtendedDeviceInfo
	name          string
	versionInfo   string
	uuid          uint32
	haveUUID      bool
	errObserver   *CheapErrorObserver
}

// NewDevice constructs a Device talking to addr over t, retrying each
// transaction up to maxAttempts times.
func NewDevice(addr frame.Address, width frame.Width, kind checksum.Kind, t transport.BusTransport, maxAttempts int, label string) *Device {
	return &Device{
		base:        NewBaseDevice(addr, width, kind, t, maxAttempts, label),
		errObserver: NewCheapErrorObserver(label),
	}
}

// IsAvailable reports whether the device currently answers the bus. When
// force is false and the device is already known dysfunctional, no bus
// traffic is generated. When force is true, a fresh ping is always sent
// and, on success, clears the dysfunctional gate (spec.md §4.G).
func (d *Device) IsAvailable(ctx context.Context, force bool) bool {
	if !force && d.Dysfunctional() {
		return false
	}
	_, ok := d.base.Transceive(ctx, nil, 0)
	if ok {
		d.base.ClearTransmissionCounters()
		d.errObserver.Reset()
	} else {
		d.errObserver.Observe()
	}
	return ok
}

// Dysfunctional reports whether the accumulated error counters have
// reached DysfunctionalThreshold since they were last cleared. Only a
// successful IsAvailable ping or ClearTransmissionCounters clears them;
// other successful transactions leave them as they are.
func (d *Device) Dysfunctional() bool {
	b := d.base
	total := b.TransmitError + b.NoAnswerError + b.MissingDataError + b.ChecksumError
	return total >= DysfunctionalThreshold
}

// DeviceInfo returns the memoized DeviceInfo, querying the bus only on
// first use (spec.md §4.G).
func (d *Device) DeviceInfo(ctx context.Context) (DeviceInfo, bool) {
	d.mu.Lock()
	if d.deviceInfo != nil {
		info := *d.deviceInfo
		d.mu.Unlock()
		return info, true
	}
	d.mu.Unlock()

	reply, ok := d.base.Transceive(ctx, []byte{0x00}, 11)
	if !ok {
		return DeviceInfo{}, false
	}
	info, err := ParseDeviceInfo(reply)
	if err != nil {
		return DeviceInfo{}, false
	}
	d.mu.Lock()
	d.deviceInfo = &info
	d.mu.Unlock()
	return info, true
}

// ExtendedDeviceInfo returns the memoized ExtendedDeviceInfo, valid only
// for new-variant devices (spec.md §3).
func (d *Device) ExtendedDeviceInfo(ctx context.Context) (ExtendedDeviceInfo, bool) {
	d.mu.Lock()
	if d.extDeviceInfo != nil {
		info := *d.extDeviceInfo
		d.mu.Unlock()
		return info, true
	}
	d.mu.Unlock()

	reply, ok := d.base.Transceive(ctx, []byte{0x00, cmdExtendedInfo}, 4)
	if !ok {
		return ExtendedDeviceInfo{}, false
	}
	info, err := ParseExtendedDeviceInfo(reply)
	if err != nil {
		return ExtendedDeviceInfo{}, false
	}
	d.mu.Lock()
	d.extDeviceInfo = &info
	d.mu.Unlock()
	return info, true
}

// Name returns the memoized device name string.
func (d *Device) Name(ctx context.Context) (string, bool) {
	d.mu.Lock()
	if d.name != "" {
		name := d.name
		d.mu.Unlock()
		return name, true
	}
	d.mu.Unlock()

	reply, ok := d.base.Transceive(ctx, []byte{0x00, cmdDeviceName}, 64)
	if !ok {
		return "", false
	}
	d.mu.Lock()
	d.name = string(reply)
	name := d.name
	d.mu.Unlock()
	return name, true
}

// VersionInfo returns the memoized version-info string.
func (d *Device) VersionInfo(ctx context.Context) (string, bool) {
	d.mu.Lock()
	if d.versionInfo != "" {
		v := d.versionInfo
		d.mu.Unlock()
		return v, true
	}
	d.mu.Unlock()

	reply, ok := d.base.Transceive(ctx, []byte{0x00, cmdVersionInfo}, 64)
	if !ok {
		return "", false
	}
	d.mu.Lock()
	d.versionInfo = string(reply)
	v := d.versionInfo
	d.mu.Unlock()
	return v, true
}

// UUID returns the memoized 32-bit identifier. New-variant devices report
// it as part of DeviceInfo; legacy devices expose it only through the
// reserved UUID subcommand (spec.md §4.G legacy fallback, DESIGN.md).
func (d *Device) UUID(ctx context.Context) (uint32, bool) {
	d.mu.Lock()
	if d.haveUUID {
		u := d.uuid
		d.mu.Unlock()
		return u, true
	}
	d.mu.Unlock()

	if info, ok := d.DeviceInfo(ctx); ok && info.NewVariant {
		d.mu.Lock()
		d.uuid, d.haveUUID = info.UUID, true
		u := d.uuid
		d.mu.Unlock()
		return u, true
	}

	reply, ok := d.base.Transceive(ctx, []byte{0x00, cmdUUID}, 4)
	if !ok || len(reply) < 4 {
		return 0, false
	}
	u := uint32(reply[0]) | uint32(reply[1])<<8 | uint32(reply[2])<<16 | uint32(reply[3])<<24
	d.mu.Lock()
	d.uuid, d.haveUUID = u, true
	d.mu.Unlock()
	return u, true
}

// Uptime queries the live uptime counter. Unlike DeviceInfo, this value
// is never memoized.
func (d *Device) Uptime(ctx context.Context) (uint32, bool) {
	reply, ok := d.base.Transceive(ctx, []byte{0x00, cmdUptime}, 4)
	if !ok || len(reply) < 4 {
		return 0, false
	}
	return uint32(reply[0]) | uint32(reply[1])<<8 | uint32(reply[2])<<16 | uint32(reply[3])<<24, true
}

// PacketCounters queries the four packet-statistics counters in a single
// transaction (reserved subcommand 0x07, spec.md §4.E).
type PacketCounters struct {
	Correct, BufferOverflow, Lost, ChecksumMismatch uint32
}

// PacketCounters returns the live, un-memoized statistics counters.
func (d *Device) PacketCounters(ctx context.Context) (PacketCounters, bool) {
	reply, ok := d.base.Transceive(ctx, []byte{0x00, cmdPacketCountAll}, 16)
	if !ok || len(reply) < 16 {
		return PacketCounters{}, false
	}
	u32 := func(b []byte) uint32 {
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	}
	return PacketCounters{
		Correct:          u32(reply[0:4]),
		BufferOverflow:   u32(reply[4:8]),
		Lost:             u32(reply[8:12]),
		ChecksumMismatch: u32(reply[12:16]),
	}, true
}

// ResetStatistics clears the slave's packet counters (reserved subcommand
// 0x08).
func (d *Device) ResetStatistics(ctx context.Context) bool {
	_, ok := d.base.Transceive(ctx, []byte{0x00, cmdResetStatistics}, 0)
	return ok
}

// Transceive exposes the underlying BaseDevice transaction for
// higher-level sub-protocols (package stellantriebe) that need to send
// application-specific payloads through the same retry/counter machinery.
func (d *Device) Transceive(ctx context.Context, payload []byte, maxReplyPayload int) ([]byte, bool) {
	return d.base.Transceive(ctx, payload, maxReplyPayload)
}

// Address returns the bus address this Device talks to.
func (d *Device) Address() frame.Address { return d.base.Address }
