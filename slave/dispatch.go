package slave

import (
	"encoding/binary"
	"time"
)

// Reserved base-protocol subcommands, recognized only when the first
// payload byte is 0x00 (spec.md §4.E).
const (
	cmdDeviceName         byte = 0x00
	cmdUptime             byte = 0x01
	cmdVersionInfo        byte = 0x02
	cmdPacketCountCorrect byte = 0x03
	cmdPacketCountBufov   byte = 0x04
	cmdPacketCountLost    byte = 0x05
	cmdPacketCountCrc     byte = 0x06
	cmdPacketCountAll     byte = 0x07
	cmdResetStatistics    byte = 0x08
	cmdUUID               byte = 0x09
	cmdExtendedInfo       byte = 0x0A
	cmdStaticStorageInfo  byte = 0x0B
	cmdStaticStorageRead  byte = 0x0C
	cmdStaticStorageWrite byte = 0x0D

	// cmdEnterBootloader is the command byte following the bootloader
	// protocol ID in the bootloader-enter broadcast (spec.md §4.E).
	cmdEnterBootloader byte = 0x01
)

// crcFieldBit positions within the DeviceInfo crc_field byte (§3).
const (
	crcFieldKindMask     = 0x07
	crcFieldNewVariant   = 1 << 3
	crcFieldStatsAvail   = 1 << 7
)

// Tick is the worker side: pick up a latched packet (if any), verify its
// checksum, dispatch it, and stage the reply for the caller to send.
// Applications must call this at >=50 Hz (spec.md §5, Slave core).
func (d *Device) Tick() {
	d.mu.Lock()
	if !d.hasCompletePacket {
		d.mu.Unlock()
		return
	}
	raw := d.latchedFrame
	d.latchedFrame = nil
	d.hasCompletePacket = false
	d.processing = true
	d.mu.Unlock()

	reply := d.dispatch(raw)

	d.mu.Lock()
	d.pendingReply = reply
	d.processing = false
	d.mu.Unlock()
}

// TakeReply returns and clears whatever reply Tick staged, if any. ok is
// false both when there was nothing to process and when the processor
// chose IgnorePacket.
func (d *Device) TakeReply() (reply []byte, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	reply, d.pendingReply = d.pendingReply, nil
	return reply, reply != nil
}

func (d *Device) dispatch(raw []byte) []byte {
	addr, payload, err := d.codec.Decode(raw)
	if err != nil {
		d.crcMismatchCnt++
		d.metrics.crcMismatch.Inc()
		return nil
	}
	d.correctCount++
	d.metrics.correct.Inc()

	if addr.IsBroadcast() {
		d.dispatchBroadcast(payload)
		return nil
	}
	return d.dispatchUnicast(payload)
}

func (d *Device) dispatchUnicast(payload []byte) []byte {
	if len(payload) == 0 {
		// Ping: empty payload, reply with just address+checksum.
		return []byte{}
	}
	if payload[0] == 0x00 {
		return d.dispatchReserved(payload[1:])
	}
	if d.cfg.Application == nil {
		return nil
	}
	return d.cfg.Application.ProcessPacket(payload)
}

func (d *Device) dispatchBroadcast(payload []byte) {
	if len(payload) == 0 {
		// Legacy broadcast with no protocol ID: deliver for backward
		// compatibility as Lokalisierungssensoren (spec.md §4.D).
		if d.cfg.Broadcasts != nil {
			d.cfg.Broadcasts.ProcessBroadcast(ProtocolLokalisierungssensoren, nil)
		}
		return
	}
	if !d.cfg.BroadcastsAvailable {
		return
	}
	protocolID := payload[0]
	if protocolID == ProtocolBootloader && len(payload) >= 2 && payload[1] == cmdEnterBootloader {
		if d.cfg.OnEnterBootloader != nil {
			d.cfg.OnEnterBootloader()
		}
		return
	}
	if protocolID == ProtocolBroadcastAll || protocolID == d.cfg.DeviceProtocolID {
		if d.cfg.Broadcasts != nil {
			d.cfg.Broadcasts.ProcessBroadcast(protocolID, payload[1:])
		}
	}
}

func (d *Device) dispatchReserved(rest []byte) []byte {
	if len(rest) == 0 {
		return d.deviceInfoPayload()
	}
	switch rest[0] {
	case cmdDeviceName:
		return []byte(d.cfg.DeviceName)
	case cmdUptime:
		return d.uptimePayload()
	case cmdVersionInfo:
		return []byte(d.cfg.DeviceVersionInfo)
	case cmdPacketCountCorrect:
		return counterPayload(d.statCounter(d.correctCount))
	case cmdPacketCountBufov:
		return counterPayload(d.statCounter(d.bufOverflowCnt))
	case cmdPacketCountLost:
		return counterPayload(d.statCounter(d.lostCount))
	case cmdPacketCountCrc:
		return counterPayload(d.statCounter(d.crcMismatchCnt))
	case cmdPacketCountAll:
		out := make([]byte, 0, 16)
		out = append(out, counterPayload(d.statCounter(d.correctCount))...)
		out = append(out, counterPayload(d.statCounter(d.bufOverflowCnt))...)
		out = append(out, counterPayload(d.statCounter(d.lostCount))...)
		out = append(out, counterPayload(d.statCounter(d.crcMismatchCnt))...)
		return out
	case cmdResetStatistics:
		d.correctCount, d.bufOverflowCnt, d.lostCount, d.crcMismatchCnt = 0, 0, 0, 0
		return []byte{}
	case cmdUUID:
		return counterPayload(d.cfg.UUID)
	case cmdExtendedInfo:
		return []byte{
			byte(len(d.cfg.DeviceName)),
			byte(len(d.cfg.DeviceVersionInfo)),
			byte(d.cfg.BufferSize), byte(d.cfg.BufferSize >> 8),
		}
	case cmdStaticStorageInfo, cmdStaticStorageRead, cmdStaticStorageWrite:
		if d.cfg.StaticStorage == nil {
			return nil
		}
		return d.dispatchStaticStorage(rest)
	default:
		return nil
	}
}

// statCounter returns 0 when statistics are compiled out, matching
// "counter commands return zeros of the declared width" (spec.md §4.E).
func (d *Device) statCounter(v uint32) uint32 {
	if !d.cfg.StatisticsAvailable {
		return 0
	}
	return v
}

func counterPayload(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

func (d *Device) uptimePayload() []byte {
	var count uint32
	if d.cfg.UptimeFrequencyHz != 0 {
		count = uint32(time.Since(d.startedAt).Seconds() * float64(d.cfg.UptimeFrequencyHz))
	}
	return counterPayload(count)
}

func (d *Device) deviceInfoPayload() []byte {
	crcField := d.cfg.ChecksumKind.WireCode()
	if d.cfg.NewVariant {
		crcField |= crcFieldNewVariant
	}
	if d.cfg.StatisticsAvailable {
		crcField |= crcFieldStatsAvail
	}

	out := make([]byte, 11)
	out[0] = d.cfg.DeviceProtocolID
	out[1] = d.cfg.DeviceTypeID
	out[2] = crcField

	if d.cfg.NewVariant {
		// new-variant layout: [3..4] extended_info_size, [5..8] uuid.
		extInfoSize := uint16(1 + 1 + 2) // name_len + versioninfo_len + buffer_size (§3 ExtendedDeviceInfo)
		binary.LittleEndian.PutUint16(out[3:5], extInfoSize)
		binary.LittleEndian.PutUint32(out[5:9], d.cfg.UUID)
	} else {
		// legacy layout: [3..4] buffer_size, [5..6] reserved, [7] name_len,
		// [8] versioninfo_len (spec.md §6, §8 scenario 2).
		binary.LittleEndian.PutUint16(out[3:5], uint16(d.cfg.BufferSize))
		out[5], out[6] = 0, 0
		out[7] = byte(len(d.cfg.DeviceName))
		out[8] = byte(len(d.cfg.DeviceVersionInfo))
	}
	binary.LittleEndian.PutUint16(out[9:11], d.cfg.UptimeFrequencyHz)
	return out
}
