package messaging

import (
	"log"
	"sync"
)

// DataSink receives pushes from a peer's DataProvider. Arrivals whose
// length doesn't exactly match Size are rejected (spec.md §4.J, "validated
// against the configured sink's declared buffer length").
type DataSink struct {
	id     uint8
	Size   int
	notify func(peer uint8, data []byte)

	mu   sync.Mutex
	data []byte
}

func newDataSink(id uint8, size int, notify func(peer uint8, data []byte)) *DataSink {
	return &DataSink{id: id, Size: size, notify: notify, data: make([]byte, size)}
}

func (s *DataSink) store(data []byte) {
	s.mu.Lock()
	copy(s.data, data)
	s.mu.Unlock()
}

// Data returns a copy of the sink's most recently stored value.
func (s *DataSink) Data() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

// AddDataSink registers a sink at wire index id (the discriminator byte
// minus 64). notify, if non-nil, is invoked on the worker goroutine once
// per arrival, with duplicate pending notifications for the same sink id
// coalesced (spec.md §4.J).
func (h *Hub) AddDataSink(id uint8, size int, notify func(peer uint8, data []byte)) *DataSink {
	if id >= rpcDiscriminatorLimit {
		log.Printf("messaging: sink id %d out of range, not registered", id)
		return nil
	}
	sink := newDataSink(id, size, notify)
	h.mu.Lock()
	h.sinks[id] = sink
	h.mu.Unlock()
	return sink
}

// DataProvider pushes this side's data into a peer's correspondingly
// numbered DataSink.
type DataProvider struct {
	id uint8
	h  *Hub
}

// AddDataProvider declares a provider at wire index id, used to address
// the peer's DataSink of the same id.
func (h *Hub) AddDataProvider(id uint8) *DataProvider {
	if id >= rpcDiscriminatorLimit {
		log.Printf("messaging: sink id %d out of range, not registered", id)
		return nil
	}
	return &DataProvider{id: id, h: h}
}

// Push enqueues data for peer's DataSink id, coalescing with any
// already-queued, not-yet-sent push to the same peer and sink id (spec.md
// §4.J, outQueue.postUnique). Push on a nil DataProvider (one returned by
// an out-of-range AddDataProvider call) always returns false.
func (p *DataProvider) Push(peer uint8, data []byte) bool {
	if p == nil {
		return false
	}
	item := outboundItem{peer: peer, isRPC: false, sinkID: p.id, data: data}
	ok := p.h.outQueue.pushUniqueOrReplace(item, func(o outboundItem) bool {
		return !o.isRPC && o.peer == peer && o.sinkID == p.id
	})
	if !ok {
		p.h.logQueueFull("outbound")
	}
	return ok
}
