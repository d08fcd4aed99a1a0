package stellantriebe

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/turag-ev/feldbus/stellantriebeslave"
)

// CommandType mirrors StellantriebeDevice::CommandType: whether factor
// scaling applies (Real) or the raw value is a plain control value
// (Control, factor exactly 0.0 on the device side).
type CommandType int

const (
	Real CommandType = iota
	Control
)

// Command is one application-declared command, resolved against a
// device's reported command set by Device.Init. Reads and writes are
// invalid until resolution assigns a wire key (spec.md §4.I).
type Command struct {
	Name   string
	Kind   stellantriebeslave.Kind
	Access stellantriebeslave.Access
	Type   CommandType

	dev *Device

	mu        sync.Mutex
	key       byte
	factor    float32
	cached    []byte
	hasCached bool
}

func (c *Command) setKey(key byte, factor float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = key
	c.factor = factor
}

func (c *Command) resolvedKey() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.key != 0
}

// GetRaw returns the command's current raw little-endian wire value.
// Write-access commands never touch the bus here: per
// StellantriebeDevice::Command's write-access specialization, a
// write-access command's value is whatever was last set locally, and is
// returned from that cache (spec.md §4.I "Master-side buffering").
// Read-only commands always issue a fresh bus transceive.
func (c *Command) GetRaw(ctx context.Context) ([]byte, bool) {
	if c.Access == stellantriebeslave.Write {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.hasCached {
			return nil, false
		}
		out := make([]byte, len(c.cached))
		copy(out, c.cached)
		return out, true
	}

	key, ok := c.resolvedKey()
	if !ok {
		return nil, false
	}
	reply, ok := c.dev.base.Transceive(ctx, []byte{key}, c.Kind.Width())
	if !ok || len(reply) != c.Kind.Width() {
		return nil, false
	}
	return reply, true
}

// SetRaw writes value's raw little-endian bytes and caches them for
// subsequent GetRaw calls. It fails if the command is not write-access or
// not yet resolved.
func (c *Command) SetRaw(ctx context.Context, value []byte) bool {
	if c.Access != stellantriebeslave.Write {
		return false
	}
	key, ok := c.resolvedKey()
	if !ok {
		return false
	}

	payload := make([]byte, 1+len(value))
	payload[0] = key
	copy(payload[1:], value)
	if _, ok := c.dev.base.Transceive(ctx, payload, 0); !ok {
		return false
	}

	c.mu.Lock()
	c.cached = append(c.cached[:0], value...)
	c.hasCached = true
	c.mu.Unlock()
	return true
}

func decodeFactor(raw []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(raw))
}

// GetFloat reads the command's value and applies factor scaling: a Real
// command's raw integer is multiplied by its device-reported factor; a
// Control command's raw integer is returned unscaled; a Float-kind
// command's 4 raw bytes are reinterpreted as an IEEE-754 float32
// directly.
func (c *Command) GetFloat(ctx context.Context) (float32, bool) {
	raw, ok := c.GetRaw(ctx)
	if !ok {
		return 0, false
	}
	if c.Kind == stellantriebeslave.KindFloat {
		return math.Float32frombits(binary.LittleEndian.Uint32(raw)), true
	}

	c.mu.Lock()
	factor := c.factor
	c.mu.Unlock()

	v := decodeSigned(c.Kind, raw)
	if c.Type == Control {
		return float32(v), true
	}
	return float32(v) * factor, true
}

// SetFloat applies the inverse of GetFloat's scaling and writes the
// result.
func (c *Command) SetFloat(ctx context.Context, value float32) bool {
	if c.Kind == stellantriebeslave.KindFloat {
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, math.Float32bits(value))
		return c.SetRaw(ctx, out)
	}

	c.mu.Lock()
	factor := c.factor
	c.mu.Unlock()

	var v int64
	if c.Type == Control {
		v = int64(value)
	} else {
		v = int64(value / factor)
	}
	return c.SetRaw(ctx, encodeSigned(c.Kind, v))
}

func decodeSigned(kind stellantriebeslave.Kind, raw []byte) int64 {
	switch kind {
	case stellantriebeslave.KindChar:
		return int64(int8(raw[0]))
	case stellantriebeslave.KindShort:
		return int64(int16(binary.LittleEndian.Uint16(raw)))
	case stellantriebeslave.KindLong:
		return int64(int32(binary.LittleEndian.Uint32(raw)))
	default:
		return 0
	}
}

func encodeSigned(kind stellantriebeslave.Kind, v int64) []byte {
	switch kind {
	case stellantriebeslave.KindChar:
		return []byte{byte(int8(v))}
	case stellantriebeslave.KindShort:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, uint16(int16(v)))
		return out
	case stellantriebeslave.KindLong:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, uint32(int32(v)))
		return out
	default:
		return nil
	}
}
