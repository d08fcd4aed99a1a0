// Package messaging implements the higher-level messaging layer (spec.md
// §4.J, §6): a byte-stream framing of STX/base64/ETX around small RPC
// calls and DataSink pushes, a peer enablement/connection state machine,
// and the bounded inbound/outbound queues a main/worker goroutine pair
// drain.
//
// It is modelled on original_source/tina/tina++/bluetooth/bluetooth_base.cpp's
// highlevelParseIncomingData decoder and its main_thread_func/
// worker_thread_func split, generalized the way package frame generalizes
// pkg/ipmi.Message into a gopacket.DecodingLayer: the payload discriminator
// is expressed as two registered gopacket layer types so callers that want
// to plug this into a larger decoding pipeline can.
package messaging

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
)

const (
	stx = 0x02
	etx = 0x03
)

// MaxRawPayload bounds an encoded frame's decoded payload to 70 bytes
// (spec.md §4.J); its padded base64 expansion, maxEncodedLen, is 96 bytes.
const MaxRawPayload = 70

// rpcDiscriminatorLimit is BLUETOOTH_NUMBER_OF_RPCS: a payload whose first
// byte is below this is an RPC call; at or above, a DataSink push (spec.md
// §4.J, §6).
const rpcDiscriminatorLimit = 64

// EncodeFrame wraps raw as STX | base64(raw) | ETX, the wire shape every
// outbound message uses (spec.md §6).
func EncodeFrame(raw []byte) []byte {
	n := base64.StdEncoding.EncodedLen(len(raw))
	out := make([]byte, 0, n+2)
	out = append(out, stx)
	enc := make([]byte, n)
	base64.StdEncoding.Encode(enc, raw)
	out = append(out, enc...)
	out = append(out, etx)
	return out
}

// EncodeRPC builds the raw payload for an RPC call: {rpc_id, param}.
// rpcID must be below rpcDiscriminatorLimit; Hub's own RPC methods enforce
// this before ever calling EncodeRPC.
func EncodeRPC(rpcID uint8, param uint64) []byte {
	out := make([]byte, 9)
	out[0] = rpcID
	binary.LittleEndian.PutUint64(out[1:], param)
	return out
}

// EncodeSinkPush builds the raw payload for a DataSink push: {sinkID+64,
// data...}. sinkID must be below rpcDiscriminatorLimit; Hub's own sink
// methods enforce this before ever calling EncodeSinkPush.
func EncodeSinkPush(sinkID uint8, data []byte) []byte {
	out := make([]byte, 1+len(data))
	out[0] = rpcDiscriminatorLimit + sinkID
	copy(out[1:], data)
	return out
}

// StreamDecoder reassembles STX/base64/ETX frames out of a byte stream,
// one byte at a time, mirroring highlevelParseIncomingData: any STX resets
// the in-progress frame, and a frame that overruns MaxRawPayload's base64
// expansion is discarded and resynchronizes on the next STX.
type StreamDecoder struct {
	buf      []byte
	inFrame  bool
	overflow bool
}

// NewStreamDecoder constructs a decoder.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// maxEncodedLen is the longest legal base64 body between STX and ETX.
var maxEncodedLen = base64.StdEncoding.EncodedLen(MaxRawPayload)

// Feed processes one incoming byte. It returns a decoded raw payload and
// true when b completes a frame (an ETX arrives on a well-formed,
// non-overflowed buffer); otherwise it returns nil, false.
func (d *StreamDecoder) Feed(b byte) ([]byte, bool) {
	switch {
	case b == stx:
		d.buf = d.buf[:0]
		d.inFrame = true
		d.overflow = false
		return nil, false
	case !d.inFrame:
		return nil, false
	case b == etx:
		d.inFrame = false
		if d.overflow {
			d.overflow = false
			return nil, false
		}
		raw, err := base64.StdEncoding.DecodeString(string(d.buf))
		d.buf = d.buf[:0]
		if err != nil {
			return nil, false
		}
		return raw, true
	case d.overflow:
		return nil, false
	case len(d.buf) >= maxEncodedLen:
		d.overflow = true
		return nil, false
	default:
		d.buf = append(d.buf, b)
		return nil, false
	}
}

// Envelope is the gopacket.DecodingLayer view of one decoded raw payload:
// it reads the discriminator byte and routes to LayerTypeRPCCall or
// LayerTypeDataSinkPush, the way Bluetooth::highlevelParseIncomingData
// branches on `data[0] < BLUETOOTH_NUMBER_OF_RPCS` before handing the rest
// to the RPC or DataSink path.
type Envelope struct {
	gopacket.BaseLayer
	IsRPC  bool
	SinkID uint8
}

const layerTypeEnvelope = 12101

// LayerTypeEnvelope identifies a decoded messaging payload before its
// RPC/DataSink discriminator has been resolved into a concrete layer.
var LayerTypeEnvelope = gopacket.RegisterLayerType(
	layerTypeEnvelope,
	gopacket.LayerTypeMetadata{Name: "MessagingEnvelope", Decoder: nil},
)

const layerTypeRPCCall = 12102

// LayerTypeRPCCall identifies a decoded RPC call payload.
var LayerTypeRPCCall = gopacket.RegisterLayerType(
	layerTypeRPCCall,
	gopacket.LayerTypeMetadata{Name: "MessagingRPCCall", Decoder: nil},
)

const layerTypeDataSinkPush = 12103

// LayerTypeDataSinkPush identifies a decoded DataSink push payload.
var LayerTypeDataSinkPush = gopacket.RegisterLayerType(
	layerTypeDataSinkPush,
	gopacket.LayerTypeMetadata{Name: "MessagingDataSinkPush", Decoder: nil},
)

func (e *Envelope) LayerType() gopacket.LayerType { return LayerTypeEnvelope }

func (e *Envelope) CanDecode() gopacket.LayerClass { return e.LayerType() }

func (e *Envelope) NextLayerType() gopacket.LayerType {
	if e.IsRPC {
		return LayerTypeRPCCall
	}
	return LayerTypeDataSinkPush
}

// DecodeFromBytes reads data's discriminator byte and classifies the rest
// as payload for the appropriate next layer.
func (e *Envelope) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) == 0 {
		return fmt.Errorf("messaging: empty payload")
	}
	e.BaseLayer.Contents = data[:1]
	e.BaseLayer.Payload = data
	e.IsRPC = data[0] < rpcDiscriminatorLimit
	e.SinkID = data[0] - rpcDiscriminatorLimit
	return nil
}

// RPCCall is the decoded {rpc_id, param} layer.
type RPCCall struct {
	gopacket.BaseLayer
	ID    uint8
	Param uint64
}

func (r *RPCCall) LayerType() gopacket.LayerType { return LayerTypeRPCCall }

func (r *RPCCall) CanDecode() gopacket.LayerClass { return r.LayerType() }

func (r *RPCCall) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// DecodeFromBytes decodes a 9-byte {u8 rpc_id, u64 param} payload.
func (r *RPCCall) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) != 9 {
		return fmt.Errorf("messaging: RPC call payload must be 9 bytes, got %d", len(data))
	}
	r.BaseLayer.Contents = data
	r.ID = data[0]
	r.Param = binary.LittleEndian.Uint64(data[1:])
	return nil
}

// DataSinkPush is the decoded {sink_id+64, data...} layer.
type DataSinkPush struct {
	gopacket.BaseLayer
	SinkID uint8
	Data   []byte
}

func (s *DataSinkPush) LayerType() gopacket.LayerType { return LayerTypeDataSinkPush }

func (s *DataSinkPush) CanDecode() gopacket.LayerClass { return s.LayerType() }

func (s *DataSinkPush) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// DecodeFromBytes decodes a DataSink push: the first byte is sinkID+64,
// the rest is the sink's raw data.
func (s *DataSinkPush) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) == 0 {
		return fmt.Errorf("messaging: empty DataSink push")
	}
	s.BaseLayer.Contents = data[:1]
	s.BaseLayer.Payload = data[1:]
	s.SinkID = data[0] - rpcDiscriminatorLimit
	s.Data = data[1:]
	return nil
}
