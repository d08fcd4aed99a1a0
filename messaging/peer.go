package messaging

import (
	"log"
	"sync/atomic"
)

// Status mirrors Bluetooth::Status: the platform transport's view of one
// peer's link state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Transport is the platform hook a Hub drives: writing one already-framed
// message and querying a peer's current link status. Write may block for
// the duration of one transport-level send (spec.md §5, "may block on the
// transport").
type Transport interface {
	Write(peer uint8, frame []byte) bool
	Status(peer uint8) Status
}

// peerState tracks one peer's enablement and connection history. enabled
// and connectedOnce are atomic per spec.md §5; lastStatus is touched only
// from the outbound goroutine, which is the sole reader of Transport's
// per-peer status, so it needs no synchronization of its own.
type peerState struct {
	id            uint8
	enabled       atomic.Bool
	connectedOnce atomic.Bool
	lastStatus    Status
}

// SetPeerEnabled toggles whether outbound items for peer are sent; a
// disabled peer's queued outbound items are dropped rather than sent
// (spec.md §4.J). Inbound frames from peer are processed either way.
func (h *Hub) SetPeerEnabled(peer uint8, enabled bool) {
	h.peer(peer).enabled.Store(enabled)
}

// PeerEnabled reports whether peer is currently enabled.
func (h *Hub) PeerEnabled(peer uint8) bool {
	return h.peer(peer).enabled.Load()
}

// ConnectionWasSuccessfulOnce reports whether peer has ever reached
// Connected since the Hub started, even if it has since disconnected
// (the "connected_once" sticky flag, spec.md §4.J).
func (h *Hub) ConnectionWasSuccessfulOnce(peer uint8) bool {
	return h.peer(peer).connectedOnce.Load()
}

// pollStatus reads the transport's current status for peer, updates
// connectedOnce, and logs disconnected<->connected transitions exactly
// once each (spec.md §4.J "Transitions... are logged once").
func (h *Hub) pollStatus(peer uint8) Status {
	p := h.peer(peer)
	status := h.transport.Status(peer)

	if status == Connected {
		p.connectedOnce.Store(true)
	}

	if status != p.lastStatus {
		switch {
		case status == Connected:
			log.Printf("messaging: peer %d connected", peer)
		case p.lastStatus == Connected:
			log.Printf("messaging: peer %d disconnected", peer)
		}
		p.lastStatus = status
	}
	return status
}
