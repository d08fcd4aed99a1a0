package messaging

import "log"

// RPCFunction is an inbound RPC callback: invoked on the worker goroutine
// when a peer calls one of our registered rpc_ids (spec.md §4.J).
type RPCFunction func(peer uint8, param uint64)

// RegisterRPC installs fn as the handler for rpc_id id, replacing any
// previous registration. id must be below rpcDiscriminatorLimit (64), the
// same bound the wire discriminator enforces (spec.md §6); an out-of-range
// id is logged and ignored.
func (h *Hub) RegisterRPC(id uint8, fn RPCFunction) {
	if id >= rpcDiscriminatorLimit {
		log.Printf("messaging: rpc id %d out of range, not registered", id)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rpcs[id] = fn
}

// CallRPC enqueues an RPC call to peer's rpc_id id with the given param.
// It returns false immediately if the outbound queue is full (spec.md §7,
// "RPC call returns failure"); the call itself does not block on the
// transport.
func (h *Hub) CallRPC(peer uint8, id uint8, param uint64) bool {
	if id >= rpcDiscriminatorLimit {
		return false
	}
	ok := h.outQueue.pushPriority(outboundItem{peer: peer, isRPC: true, rpcID: id, param: param})
	if !ok {
		h.logQueueFull("outbound")
	}
	return ok
}
