// Package transport declares the BusTransport contract the core consumes
// but never implements (spec.md §1, §4.B): a platform-provided send/receive
// primitive with the atomicity of a single transaction. A real
// implementation talks to a UART/RS-485 driver; this package only defines
// the seam, the way bmc.go consumes an internal/pkg/transport.Transport it
// never defines either.
package transport

import (
	"context"

	"github.com/turag-ev/feldbus/checksum"
)

// Result classifies the outcome of a single Transceive call. The three-way
// split (as opposed to a plain error) is load-bearing: locate's
// bus-assertion detection depends on telling TransmissionError apart from
// ChecksumError (spec.md §4.H, §9 Open Questions).
type Result uint8

const (
	// Success means exactly len(rx) bytes (or the expected_rx_len the
	// caller requested) were read back and the checksum, if any, was
	// valid by the transport's own reckoning. Frame-level checksum
	// verification still happens one layer up in package frame/master.
	Success Result = iota
	// TransmissionError means fewer bytes were written or read than
	// requested: a short write, a timeout with zero bytes received, or
	// a partial read.
	TransmissionError
	// ChecksumError means the expected number of bytes was received but
	// failed a checksum the transport itself is able to verify early
	// (e.g. a UART framing/parity check). Most implementations never
	// return this and instead let the frame codec catch checksum
	// failures; it exists for transports capable of cheaper detection.
	ChecksumError
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case TransmissionError:
		return "transmission-error"
	case ChecksumError:
		return "checksum-error"
	default:
		return "unknown"
	}
}

// BusTransport is the platform seam. One call to Transceive is atomic: no
// other transaction may interleave with it on the same bus. Implementations
// are typically backed by a mutex or semaphore so that multiple Device
// instances sharing a physical bus remain safely usable from different
// goroutines (spec.md §5, Master core).
type BusTransport interface {
	// Transceive writes tx, then reads back up to len(rx) bytes tagged for
	// address/checksumKind. txN and rxN report how many bytes were
	// actually transferred even on failure, so the caller (package
	// master's BaseDevice) can classify a TransmissionError into a short
	// write, a zero-byte timeout, or a partial read (spec.md §4.F).
	Transceive(ctx context.Context, tx []byte, rx []byte, address uint16, checksumKind checksum.Kind) (txN int, rxN int, result Result)

	// ClearBuffer discards any pending received bytes before the next
	// attempt, so a stale reply from a previous, abandoned transaction
	// cannot be misread as the next one's response.
	ClearBuffer()
}
