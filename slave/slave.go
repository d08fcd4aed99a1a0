// Package slave implements the slave-side packet state machine and the
// base device dispatcher shared by every TURAG Feldbus slave (spec.md
// §4.D, §4.E): byte ingestion, inter-character gap detection, address
// filtering, buffer-overflow accounting, and single-packet hand-off to the
// application layer.
//
// The two execution contexts the spec describes (an interrupt-level byte/
// timeout handler and a main-loop worker) are modelled as two methods a
// caller drives itself: ByteReceived (the producer) and Tick (the
// consumer), exactly the "coroutine-like pseudo-async... keep the two-phase
// split" guidance in spec.md §9. A host-side Go process has no real ISR,
// so the mutex inside Device plays the role the spec's single-producer/
// single-consumer lock-free discipline plays on embedded targets: it is
// held only across the few field reads/writes each method needs, never
// across the (potentially slow) application dispatch call.
package slave

import (
	"sync"
	"time"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
)

// IgnorePacket is returned by a PacketProcessor to suppress a reply
// entirely (spec.md §4.D, dispatch policy).
var IgnorePacket = []byte(nil)

// PacketProcessor handles a unicast application-level request (one whose
// first payload byte is not the reserved 0x00) and returns the response
// payload, or IgnorePacket to send no reply.
type PacketProcessor interface {
	ProcessPacket(request []byte) (response []byte)
}

// PacketProcessorFunc adapts a function to a PacketProcessor.
type PacketProcessorFunc func(request []byte) []byte

func (f PacketProcessorFunc) ProcessPacket(request []byte) []byte { return f(request) }

// BroadcastProcessor handles a broadcast delivered to this device's
// configured protocol (or the all-protocols broadcast, §3 Protocol IDs).
type BroadcastProcessor interface {
	ProcessBroadcast(protocolID byte, data []byte)
}

// BroadcastProcessorFunc adapts a function to a BroadcastProcessor.
type BroadcastProcessorFunc func(protocolID byte, data []byte)

func (f BroadcastProcessorFunc) ProcessBroadcast(protocolID byte, data []byte) { f(protocolID, data) }

// ProtocolID values (spec.md §3).
const (
	ProtocolBroadcastAll           byte = 0x00
	ProtocolStellantriebe          byte = 0x01
	ProtocolLokalisierungssensoren byte = 0x02
	ProtocolASEB                   byte = 0x03
	ProtocolBootloader             byte = 0x04
	ProtocolESCON                  byte = 0x05
)

// Config is the compile-time configuration of a real device translated
// into constructor arguments (spec.md §6).
type Config struct {
	MyAddress    frame.Address
	AddressWidth frame.Width
	ChecksumKind checksum.Kind
	BufferSize   int

	// InterCharacterGap is the idle-time that terminates a frame
	// reception, nominally ~15 UART bit-times at the configured baud
	// rate (spec.md §4.D step 2, §6).
	InterCharacterGap time.Duration

	DeviceProtocolID byte
	DeviceTypeID     byte
	DeviceName       string
	DeviceVersionInfo string
	UptimeFrequencyHz uint16

	StatisticsAvailable bool
	BroadcastsAvailable bool

	// NewVariant selects the new DeviceInfo wire layout (extended_info_size
	// + inline uuid) over the legacy layout (buffer_size + reserved +
	// name_len + versioninfo_len), per the crc_field new-variant bit
	// (spec.md §3).
	NewVariant bool

	// UUID is this device's 32-bit auto-address-discovery identifier.
	UUID uint32

	// StaticStorage optionally backs the static-data-storage reserved
	// subcommands (0x0B..0x0D). Nil devices answer them with
	// IgnorePacket, matching an unimplemented reserved command.
	StaticStorage StaticStorage

	// OnEnterBootloader, if set, is invoked when the bootloader-enter
	// broadcast (§4.E) arrives. The core never calls os.Exit or resets
	// hardware itself — see DESIGN.md, Open Question 4.
	OnEnterBootloader func()

	Application PacketProcessor
	Broadcasts  BroadcastProcessor
}

func (c Config) codec() frame.Codec {
	return frame.Codec{AddressWidth: c.AddressWidth, ChecksumKind: c.ChecksumKind}
}

// Device is one slave's receive state machine plus its base-protocol
// counters (spec.md §3, Slave-side receive state / Master-side... no,
// slave-side per-device counters).
type Device struct {
	cfg   Config
	codec frame.Codec

	mu               sync.Mutex
	buf              []byte
	offset           int
	overflow         bool
	hasCompletePacket bool
	processing       bool
	pendingReply     []byte

	latchedFrame []byte

	startedAt time.Time

	correctCount   uint32
	bufOverflowCnt uint32
	lostCount      uint32
	crcMismatchCnt uint32

	metrics *metricsSet
}

// NewDevice constructs a slave state machine for the given configuration.
func NewDevice(cfg Config) *Device {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	d := &Device{
		cfg:       cfg,
		codec:     cfg.codec(),
		buf:       make([]byte, cfg.BufferSize),
		startedAt: time.Now(),
		metrics:   newMetricsSet(cfg.DeviceName),
	}
	return d
}

// ByteReceived is the producer side: called once per received byte, from
// whatever context owns the UART (an interrupt handler on embedded
// targets; a reader goroutine here). It never blocks and never calls into
// application code (spec.md §4.D step 1, §5 timing guarantees).
func (d *Device) ByteReceived(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hasCompletePacket {
		// A complete packet is still waiting for the worker: overwrite
		// it and count the loss (spec.md §4.D step 1).
		d.lostCount++
		d.metrics.lost.Inc()
		d.hasCompletePacket = false
		d.offset = 0
		d.overflow = false
	}

	if d.offset >= len(d.buf) {
		d.overflow = true
		return
	}
	d.buf[d.offset] = b
	d.offset++
}

// InterCharacterTimeout is the producer side's second half: called when
// InterCharacterGap has elapsed since the last received byte (spec.md
// §4.D step 2). It evaluates the just-received frame and either latches
// hasCompletePacket or drops it, then unconditionally resets offset and
// the overflow flag for the next frame.
func (d *Device) InterCharacterTimeout() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evaluateReceivedFrameLocked()
}

func (d *Device) evaluateReceivedFrameLocked() {
	length := d.offset
	defer func() {
		d.offset = 0
		d.overflow = false
	}()
	if length == 0 {
		return
	}

	addr := d.cfg.AddressWidth.PeekAddress(d.buf[:length])
	addressedToUs := addr == d.cfg.MyAddress && length > d.codec.HeaderLength()
	isBroadcast := addr.IsBroadcast()

	if d.overflow {
		if addressedToUs {
			d.bufOverflowCnt++
			d.metrics.bufferOverflow.Inc()
		}
		return
	}

	if addressedToUs || isBroadcast {
		d.pendingReply = nil
		d.hasCompletePacket = true
		// copy so the next ISR-side frame doesn't clobber what the
		// worker is about to read.
		latched := make([]byte, length)
		copy(latched, d.buf[:length])
		d.latchedFrame = latched
	}
}
