package messaging

import (
	"context"
	"log"
	"sync"
	"time"
)

// defaultQueueCapacity and defaultRPCReserve size the outbound queue: up
// to 32 pending items, with the top 4 slots reserved so a burst of
// DataProvider pushes can never fully block a CallRPC (spec.md §4.J).
const (
	defaultQueueCapacity = 32
	defaultRPCReserve    = 4

	defaultRetryInterval = 50 * time.Millisecond
)

// Hub is one messaging-layer endpoint: the RPC and DataSink/DataProvider
// registries, the bounded outbound/inbound queues, and the peer state
// table, driven by Run's main/worker goroutine pair (spec.md §4.J, §5).
type Hub struct {
	transport     Transport
	retryInterval time.Duration

	mu    sync.Mutex
	rpcs  [rpcDiscriminatorLimit]RPCFunction
	sinks [rpcDiscriminatorLimit]*DataSink
	peers map[uint8]*peerState

	decodersMu sync.Mutex
	decoders   map[uint8]*StreamDecoder

	outQueue *boundedQueue[outboundItem]
	inQueue  *boundedQueue[inboundItem]
}

// NewHub constructs a Hub over transport with the default queue sizing.
func NewHub(transport Transport) *Hub {
	return &Hub{
		transport:     transport,
		retryInterval: defaultRetryInterval,
		peers:         make(map[uint8]*peerState),
		decoders:      make(map[uint8]*StreamDecoder),
		outQueue:      newBoundedQueue[outboundItem](defaultQueueCapacity, defaultRPCReserve),
		inQueue:       newBoundedQueue[inboundItem](defaultQueueCapacity, 0),
	}
}

func (h *Hub) peer(id uint8) *peerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[id]
	if !ok {
		p = &peerState{id: id, lastStatus: Disconnected}
		h.peers[id] = p
	}
	return p
}

func (h *Hub) logQueueFull(which string) {
	log.Printf("messaging: %s queue full, dropping enqueue", which)
}

// Feed decodes one incoming byte from peer's transport stream, dispatching
// a complete frame into the inbound queue when STX...ETX closes (spec.md
// §4.J).
func (h *Hub) Feed(peer uint8, b byte) {
	h.decodersMu.Lock()
	d, ok := h.decoders[peer]
	if !ok {
		d = NewStreamDecoder()
		h.decoders[peer] = d
	}
	h.decodersMu.Unlock()

	raw, complete := d.Feed(b)
	if !complete {
		return
	}
	h.dispatchInbound(peer, raw)
}

func (h *Hub) dispatchInbound(peer uint8, raw []byte) {
	var env Envelope
	if err := env.DecodeFromBytes(raw, nil); err != nil {
		return
	}

	if env.NextLayerType() == LayerTypeRPCCall {
		var call RPCCall
		if err := call.DecodeFromBytes(env.BaseLayer.Payload, nil); err != nil {
			return
		}
		item := inboundItem{peer: peer, isRPC: true, rpcID: call.ID, param: call.Param}
		if !h.inQueue.pushPriority(item) {
			h.logQueueFull("inbound")
		}
		return
	}

	var push DataSinkPush
	if err := push.DecodeFromBytes(env.BaseLayer.Payload, nil); err != nil {
		return
	}

	h.mu.Lock()
	sink := h.sinks[push.SinkID]
	h.mu.Unlock()
	if sink == nil || len(push.Data) != sink.Size {
		return
	}
	sink.store(push.Data)
	if sink.notify == nil {
		return
	}

	item := inboundItem{peer: peer, isRPC: false, sinkID: push.SinkID}
	matches := func(o inboundItem) bool { return !o.isRPC && o.peer == peer && o.sinkID == push.SinkID }
	if !h.inQueue.pushUniqueOrReplace(item, matches) {
		h.logQueueFull("inbound")
	}
}

// Run drives the outbound and worker goroutines until ctx is done. It
// blocks until both have returned.
func (h *Hub) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.outboundLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		h.workerLoop(ctx)
	}()
	wg.Wait()
}

// outboundLoop is the main thread: pop, gate on enablement and connection
// status, write, and only dequeue on success (spec.md §4.J).
func (h *Hub) outboundLoop(ctx context.Context) {
	ticker := time.NewTicker(h.retryInterval)
	defer ticker.Stop()

	waitOrDone := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-h.outQueue.notify:
			return true
		case <-ticker.C:
			return true
		}
	}

	for {
		item, ok := h.outQueue.head()
		if !ok {
			if !waitOrDone() {
				return
			}
			continue
		}

		if !h.PeerEnabled(item.peer) {
			h.outQueue.popHead()
			continue
		}
		if h.pollStatus(item.peer) != Connected {
			if !waitOrDone() {
				return
			}
			continue
		}

		if h.transport.Write(item.peer, EncodeFrame(item.raw())) {
			h.outQueue.popHead()
		} else if !waitOrDone() {
			return
		}
	}
}

// workerLoop is the worker thread: pop and dispatch to the registered RPC
// or DataSink handler (spec.md §4.J).
func (h *Hub) workerLoop(ctx context.Context) {
	for {
		item, ok := h.inQueue.head()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-h.inQueue.notify:
			}
			continue
		}
		h.inQueue.popHead()
		h.dispatch(item)
	}
}

func (h *Hub) dispatch(item inboundItem) {
	if item.isRPC {
		h.mu.Lock()
		fn := h.rpcs[item.rpcID]
		h.mu.Unlock()
		if fn != nil {
			fn(item.peer, item.param)
		}
		return
	}

	h.mu.Lock()
	sink := h.sinks[item.sinkID]
	h.mu.Unlock()
	if sink != nil && sink.notify != nil {
		sink.notify(item.peer, sink.Data())
	}
}
