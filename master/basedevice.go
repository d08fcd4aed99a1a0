// Package master implements the master-side transaction engine shared by
// every TURAG Feldbus device session (spec.md §4.F, §4.G): address+checksum
// generation, the retry loop with per-class error counting, the
// dysfunctional-device gate, and the memoized DeviceInfo/ExtendedDeviceInfo
// queries.
package master

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/turag-ev/feldbus/checksum"
	"github.com/turag-ev/feldbus/frame"
	"github.com/turag-ev/feldbus/transport"
)

// BaseDevice performs the transceive retry loop every master-side device
// shares (spec.md §4.F): build the frame, retry up to MaxAttempts on
// transport failure, classify each failure into the right counter.
type BaseDevice struct {
	Address      frame.Address
	AddressWidth frame.Width
	ChecksumKind checksum.Kind
	Transport    transport.BusTransport
	MaxAttempts  int

	codec frame.Codec

	TotalTransmissions uint64
	TransmitError      uint64
	NoAnswerError      uint64
	MissingDataError   uint64
	ChecksumError      uint64

	metrics *baseMetrics
}

// NewBaseDevice constructs a BaseDevice. maxAttempts<=0 defaults to 1 (no
// retry).
func NewBaseDevice(addr frame.Address, width frame.Width, kind checksum.Kind, t transport.BusTransport, maxAttempts int, label string) *BaseDevice {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &BaseDevice{
		Address:      addr,
		AddressWidth: width,
		ChecksumKind: kind,
		Transport:    t,
		MaxAttempts:  maxAttempts,
		codec:        frame.Codec{AddressWidth: width, ChecksumKind: kind},
		metrics:      newBaseMetrics(label),
	}
}

// Transceive builds a request frame around payload (the bytes between the
// address prefix and the checksum suffix), sends it up to MaxAttempts
// times, and decodes the reply into at most maxReplyPayload bytes. It
// returns the decoded reply payload and whether any attempt succeeded.
//
// Transceive is reentrant but not safe to call concurrently on the same
// BaseDevice from multiple goroutines (spec.md §5, Master core) unless the
// underlying BusTransport itself serializes bus access.
func (b *BaseDevice) Transceive(ctx context.Context, payload []byte, maxReplyPayload int) (reply []byte, ok bool) {
	tx := make([]byte, b.codec.HeaderLength()+len(payload)+b.codec.ChecksumKind.Width())
	copy(tx[b.codec.HeaderLength():], payload)
	if err := b.codec.Encode(tx, b.Address); err != nil {
		return nil, false
	}

	rxLen := b.codec.HeaderLength() + maxReplyPayload + b.codec.ChecksumKind.Width()
	rx := make([]byte, rxLen)

	attempts := 0
	// backoff.WithMaxRetries bounds the loop to MaxAttempts calls of
	// Attempt() with zero inter-attempt delay: the spec's retry budget is
	// a plain attempt count, not a timed backoff, so the constant policy
	// supplies no wait of its own.
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), uint64(b.MaxAttempts-1))

	var lastResult transport.Result
	var lastN int
	op := func() error {
		attempts++
		b.Transport.ClearBuffer()
		txN, rxN, result := b.Transport.Transceive(ctx, tx, rx, uint16(b.Address), b.ChecksumKind)
		lastResult = result
		lastN = rxN
		if result == transport.Success {
			return nil
		}
		b.classify(result, txN, rxN, len(tx), len(rx))
		return errRetry
	}
	_ = backoff.Retry(op, policy)
	b.TotalTransmissions += uint64(attempts)
	b.metrics.totalTransmissions.Add(float64(attempts))

	if lastResult != transport.Success {
		return nil, false
	}
	_, replyPayload, err := b.codec.Decode(rx[:lastN])
	if err != nil {
		b.ChecksumError++
		b.metrics.checksumError.Inc()
		return nil, false
	}
	return replyPayload, true
}

var errRetry = &retryError{}

type retryError struct{}

func (*retryError) Error() string { return "feldbus: transceive attempt failed" }

func (b *BaseDevice) classify(result transport.Result, txN, rxN, wantTx, wantRx int) {
	switch result {
	case transport.ChecksumError:
		b.ChecksumError++
		b.metrics.checksumError.Inc()
	case transport.TransmissionError:
		switch {
		case txN < wantTx:
			b.TransmitError++
			b.metrics.transmitError.Inc()
		case rxN == 0:
			b.NoAnswerError++
			b.metrics.noAnswerError.Inc()
		default:
			b.MissingDataError++
			b.metrics.missingDataError.Inc()
		}
	}
}

type baseMetrics struct {
	totalTransmissions prometheus.Counter
	transmitError      prometheus.Counter
	noAnswerError      prometheus.Counter
	missingDataError   prometheus.Counter
	checksumError      prometheus.Counter
}

var (
	totalTransmissionsVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feldbus", Subsystem: "master", Name: "transmissions_total",
		Help: "Transport-level attempts made across all Transceive calls.",
	}, []string{"device"})
	transmitErrorVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feldbus", Subsystem: "master", Name: "transmit_error_total",
		Help: "Attempts that failed to write the full request.",
	}, []string{"device"})
	noAnswerErrorVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feldbus", Subsystem: "master", Name: "no_answer_error_total",
		Help: "Attempts that received zero reply bytes.",
	}, []string{"device"})
	missingDataErrorVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feldbus", Subsystem: "master", Name: "missing_data_error_total",
		Help: "Attempts that received a partial reply.",
	}, []string{"device"})
	checksumErrorVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feldbus", Subsystem: "master", Name: "checksum_error_total",
		Help: "Replies that failed checksum verification.",
	}, []string{"device"})
)

func init() {
	prometheus.MustRegister(totalTransmissionsVec, transmitErrorVec, noAnswerErrorVec, missingDataErrorVec, checksumErrorVec)
}

func newBaseMetrics(label string) *baseMetrics {
	if label == "" {
		label = "default"
	}
	return &baseMetrics{
		totalTransmissions: totalTransmissionsVec.WithLabelValues(label),
		transmitError:      transmitErrorVec.WithLabelValues(label),
		noAnswerError:      noAnswerErrorVec.WithLabelValues(label),
		missingDataError:   missingDataErrorVec.WithLabelValues(label),
		checksumError:      checksumErrorVec.WithLabelValues(label),
	}
}

// ClearTransmissionCounters resets every error counter to zero, matching
// the explicit reset spec.md §4.G calls out as the only other way (besides
// a successful sendPing) to clear a dysfunctional device.
func (b *BaseDevice) ClearTransmissionCounters() {
	b.TransmitError, b.NoAnswerError, b.MissingDataError, b.ChecksumError = 0, 0, 0, 0
}
