package master

import (
	"encoding/binary"
	"fmt"

	"github.com/turag-ev/feldbus/checksum"
)

// DeviceInfo mirrors the fixed-size structure every slave returns for the
// reserved meta-command with an empty payload (spec.md §3, §6).
type DeviceInfo struct {
	DeviceProtocolID byte
	DeviceTypeID     byte
	ChecksumKind     checksum.Kind
	NewVariant       bool
	StatisticsAvail  bool

	// BufferSize is only meaningful for the legacy layout.
	BufferSize uint16
	// NameLength/VersionInfoLength are only meaningful for the legacy
	// layout; the new-variant layout reports them via ExtendedDeviceInfo
	// instead.
	NameLength        byte
	VersionInfoLength byte
	// UUID is only meaningful for the new-variant layout.
	UUID uint32

	UptimeFrequencyHz uint16
}

// ErrShortDeviceInfo is returned when a reply is too small to hold a
// DeviceInfo structure.
var ErrShortDeviceInfo = fmt.Errorf("feldbus: device-info reply too short")

// ParseDeviceInfo decodes a raw DeviceInfo reply payload (spec.md §6).
func ParseDeviceInfo(payload []byte) (DeviceInfo, error) {
	if len(payload) < 11 {
		return DeviceInfo{}, ErrShortDeviceInfo
	}
	crcField := payload[2]
	info := DeviceInfo{
		DeviceProtocolID: payload[0],
		DeviceTypeID:     payload[1],
		ChecksumKind:     checksum.KindFromWireCode(crcField),
		NewVariant:       crcField&0x08 != 0,
		StatisticsAvail:  crcField&0x80 != 0,
	}
	if info.NewVariant {
		info.UUID = binary.LittleEndian.Uint32(payload[5:9])
	} else {
		info.BufferSize = binary.LittleEndian.Uint16(payload[3:5])
		info.NameLength = payload[7]
		info.VersionInfoLength = payload[8]
	}
	info.UptimeFrequencyHz = binary.LittleEndian.Uint16(payload[9:11])
	return info, nil
}

// ExtendedDeviceInfo mirrors the new-variant extended structure (spec.md
// §3, reserved subcommand 0x0A).
type ExtendedDeviceInfo struct {
	NameLength        byte
	VersionInfoLength byte
	BufferSize        uint16
}

// ErrShortExtendedDeviceInfo is returned when a reply is too small to hold
// an ExtendedDeviceInfo structure.
var ErrShortExtendedDeviceInfo = fmt.Errorf("feldbus: extended-device-info reply too short")

// ParseExtendedDeviceInfo decodes a raw ExtendedDeviceInfo reply payload.
func ParseExtendedDeviceInfo(payload []byte) (ExtendedDeviceInfo, error) {
	if len(payload) < 4 {
		return ExtendedDeviceInfo{}, ErrShortExtendedDeviceInfo
	}
	return ExtendedDeviceInfo{
		NameLength:        payload[0],
		VersionInfoLength: payload[1],
		BufferSize:        binary.LittleEndian.Uint16(payload[2:4]),
	}, nil
}
