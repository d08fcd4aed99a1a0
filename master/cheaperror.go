package master

import (
	"log"
	"sync/atomic"
)

// CheapErrorObserver rate-limits the warning log line emitted for a
// device that keeps failing, so a dysfunctional device on a busy bus
// cannot flood the log once per Transceive attempt (spec.md §4.G).
type CheapErrorObserver struct {
	label string
	count uint64
}

// NewCheapErrorObserver constructs an observer that prefixes its log
// lines with label.
func NewCheapErrorObserver(label string) *CheapErrorObserver {
	return &CheapErrorObserver{label: label}
}

// Observe records one more failure and logs every 10th, 100th, 1000th...
// occurrence, so the warning rate decays logarithmically instead of
// repeating at a fixed interval.
func (o *CheapErrorObserver) Observe() {
	n := atomic.AddUint64(&o.count, 1)
	if isPowerOfTenOrOne(n) {
		log.Printf("feldbus: device %q has failed %d consecutive transactions", o.label, n)
	}
}

// Reset clears the failure count, called whenever a transaction
// succeeds.
func (o *CheapErrorObserver) Reset() {
	atomic.StoreUint64(&o.count, 0)
}

func isPowerOfTenOrOne(n uint64) bool {
	if n == 1 {
		return true
	}
	for n > 1 {
		if n%10 != 0 {
			return false
		}
		n /= 10
	}
	return true
}
