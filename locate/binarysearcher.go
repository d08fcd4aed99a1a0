package locate

import (
	"context"
	"time"
)

// searchAddress is one node in the binary-tree probe (spec.md §4.H),
// grounded directly on
// original_source/tina++/feldbus/host/feldbus_binaryaddresssearcher.cpp's
// SearchAddress: addr's bit (level-1) is the most recently decided branch
// bit; level is how many branch decisions have been made so far.
type searchAddress struct {
	addr  uint32
	level uint8
}

// BinaryAddressSearcher discovers every slave UUID on the bus by probing
// a complete binary tree over the 32-bit UUID space, depth-first on a hit
// and breadth-resuming on a miss (spec.md §4.H). It never assigns bus
// addresses itself; pair it with Locator.SetBusAddress to do so.
type BinaryAddressSearcher struct {
	locator *Locator
	queue   []searchAddress // front = index 0; push-front/push-back as described in TryFindNextDevice

	// MinRequestInterval is the minimum spacing between bus-assertion
	// probes (default 5ms, spec.md §4.H step 2).
	MinRequestInterval time.Duration
	// ExcludeAssigned, when true, only considers slaves with no bus
	// address yet (the 0x05 probe variant).
	ExcludeAssigned bool

	lastRequest time.Time
}

// NewBinaryAddressSearcher starts a fresh search over the whole UUID
// space.
func NewBinaryAddressSearcher(l *Locator) *BinaryAddressSearcher {
	return &BinaryAddressSearcher{
		locator:            l,
		queue:              []searchAddress{{addr: 0, level: 0}},
		MinRequestInterval: 5 * time.Millisecond,
	}
}

func (s *BinaryAddressSearcher) pushFront(sa searchAddress) {
	s.queue = append([]searchAddress{sa}, s.queue...)
}

func (s *BinaryAddressSearcher) pushBack(sa searchAddress) {
	s.queue = append(s.queue, sa)
}

func (s *BinaryAddressSearcher) popFront() (searchAddress, bool) {
	if len(s.queue) == 0 {
		return searchAddress{}, false
	}
	sa := s.queue[0]
	s.queue = s.queue[1:]
	return sa, true
}

func (s *BinaryAddressSearcher) waitForInterval() {
	if s.lastRequest.IsZero() {
		return
	}
	if elapsed := time.Since(s.lastRequest); elapsed < s.MinRequestInterval {
		time.Sleep(s.MinRequestInterval - elapsed)
	}
}

func (s *BinaryAddressSearcher) probe(ctx context.Context, level uint8, addr uint32) bool {
	s.waitForInterval()
	var hit bool
	if s.ExcludeAssigned {
		hit = s.locator.RequestBusAssertionUnassignedOnly(ctx, level, addr)
	} else {
		hit = s.locator.RequestBusAssertion(ctx, level, addr)
	}
	s.lastRequest = time.Now()
	return hit
}

// TryFindNextDevice runs one step of the search (spec.md §4.H,
// try_find_next_device / SearchAddress::getNextAddresses). ok is false
// once the queue is exhausted and no further probing is possible; found
// is true only when this step's probe isolated a single device's full
// 32-bit UUID.
func (s *BinaryAddressSearcher) TryFindNextDevice(ctx context.Context) (uuid uint32, found bool, ok bool) {
	sa, ok := s.popFront()
	if !ok {
		return 0, false, false
	}

	hit := s.probe(ctx, sa.level, sa.addr)

	if sa.level == 0 {
		if hit {
			s.pushFront(searchAddress{addr: 0, level: 1})
		}
		return 0, false, true
	}

	leftBranch := sa.addr&(1<<(sa.level-1)) == 0

	if hit {
		deeper := searchAddress{addr: sa.addr, level: sa.level + 1}
		if deeper.level > 32 {
			uuid, found = deeper.addr, true
		} else {
			s.pushFront(deeper)
		}
		if leftBranch {
			s.pushBack(searchAddress{addr: sa.addr | (1 << (sa.level - 1)), level: sa.level})
		}
		return uuid, found, true
	}

	if leftBranch {
		sibling := searchAddress{addr: sa.addr | (1 << (sa.level - 1)), level: sa.level}
		s.pushFront(sibling)
	}
	return 0, false, true
}

// FindAll drains the search to completion, returning every discovered
// UUID. It is a convenience wrapper; callers needing to interleave other
// bus traffic between probes should call TryFindNextDevice directly.
func (s *BinaryAddressSearcher) FindAll(ctx context.Context) []uint32 {
	var result []uint32
	for len(s.queue) > 0 {
		uuid, found, _ := s.TryFindNextDevice(ctx)
		if found {
			result = append(result, uuid)
		}
	}
	return result
}
