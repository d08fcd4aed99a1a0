package messaging_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/turag-ev/feldbus/messaging"
)

// pipeTransport feeds every written frame, byte by byte, straight into a
// peer Hub's Feed, simulating a connected point-to-point link.
type pipeTransport struct {
	peer   *messaging.Hub
	peerID uint8
}

func (p *pipeTransport) Write(peer uint8, frame []byte) bool {
	for _, b := range frame {
		p.peer.Feed(p.peerID, b)
	}
	return true
}

func (p *pipeTransport) Status(peer uint8) messaging.Status {
	return messaging.Connected
}

func TestRPCRoundTrip(t *testing.T) {
	const localPeerID = 1

	received := make(chan uint64, 1)
	hubB := messaging.NewHub(&pipeTransport{})
	hubB.RegisterRPC(5, func(peer uint8, param uint64) {
		received <- param
	})

	hubA := messaging.NewHub(&pipeTransport{peer: hubB, peerID: localPeerID})
	hubA.SetPeerEnabled(localPeerID, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); hubA.Run(ctx) }()
	go func() { defer wg.Done(); hubB.Run(ctx) }()

	if !hubA.CallRPC(localPeerID, 5, 0x1122334455667788) {
		t.Fatalf("CallRPC rejected")
	}

	select {
	case got := <-received:
		if got != 0x1122334455667788 {
			t.Errorf("param = %#x, want 0x1122334455667788", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RPC dispatch")
	}

	cancel()
	wg.Wait()
}

func TestDataSinkPushRoundTrip(t *testing.T) {
	const localPeerID = 1

	notified := make(chan []byte, 1)
	hubB := messaging.NewHub(&pipeTransport{})
	hubB.AddDataSink(3, 4, func(peer uint8, data []byte) {
		notified <- data
	})

	hubA := messaging.NewHub(&pipeTransport{peer: hubB, peerID: localPeerID})
	hubA.SetPeerEnabled(localPeerID, true)
	provider := hubA.AddDataProvider(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); hubA.Run(ctx) }()
	go func() { defer wg.Done(); hubB.Run(ctx) }()

	if !provider.Push(localPeerID, []byte{1, 2, 3, 4}) {
		t.Fatalf("Push rejected")
	}

	select {
	case got := <-notified:
		if string(got) != string([]byte{1, 2, 3, 4}) {
			t.Errorf("data = %v, want [1 2 3 4]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for DataSink notification")
	}

	cancel()
	wg.Wait()
}

func TestDataSinkPushRejectsWrongLength(t *testing.T) {
	const localPeerID = 1

	notified := make(chan []byte, 1)
	hubB := messaging.NewHub(&pipeTransport{})
	hubB.AddDataSink(3, 4, func(peer uint8, data []byte) {
		notified <- data
	})

	hubA := messaging.NewHub(&pipeTransport{peer: hubB, peerID: localPeerID})
	hubA.SetPeerEnabled(localPeerID, true)
	provider := hubA.AddDataProvider(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); hubA.Run(ctx) }()
	go func() { defer wg.Done(); hubB.Run(ctx) }()

	if !provider.Push(localPeerID, []byte{1, 2, 3}) {
		t.Fatalf("Push rejected at enqueue time")
	}

	select {
	case got := <-notified:
		t.Fatalf("unexpected notification for undersized push: %v", got)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	wg.Wait()
}

func TestCallRPCDropsWhenDisabled(t *testing.T) {
	const localPeerID = 1

	calls := make(chan uint64, 1)
	hubB := messaging.NewHub(&pipeTransport{})
	hubB.RegisterRPC(1, func(peer uint8, param uint64) { calls <- param })

	hubA := messaging.NewHub(&pipeTransport{peer: hubB, peerID: localPeerID})
	// localPeerID left disabled.

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); hubA.Run(ctx) }()
	go func() { defer wg.Done(); hubB.Run(ctx) }()

	if !hubA.CallRPC(localPeerID, 1, 42) {
		t.Fatalf("CallRPC rejected at enqueue time")
	}

	select {
	case <-calls:
		t.Fatalf("RPC dispatched to a disabled peer")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	wg.Wait()
}

func TestStreamDecoderResyncsOnOverflow(t *testing.T) {
	d := messaging.NewStreamDecoder()
	d.Feed(0x02)
	for i := 0; i < messaging.MaxRawPayload*2; i++ {
		if _, complete := d.Feed('A'); complete {
			t.Fatalf("unexpected complete frame mid-overflow")
		}
	}

	raw := messaging.EncodeRPC(7, 99)
	frame := messaging.EncodeFrame(raw)
	var got []byte
	var ok bool
	for _, b := range frame {
		got, ok = d.Feed(b)
	}
	if !ok {
		t.Fatalf("decoder failed to resync after overflow")
	}
	if string(got) != string(raw) {
		t.Errorf("decoded = %v, want %v", got, raw)
	}
}
