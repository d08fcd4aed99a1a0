package stellantriebeslave

import (
	"sync"

	"github.com/turag-ev/feldbus/slave"
)

// command-info subcommand selectors (message[1] when message_length==4),
// grounded on feldbus_stellantriebe.c's process_package: 0x00 is the
// {access,kind,factor} info request, 0x01/0x02/0x03 return the command
// set's size and a command's name length/bytes.
const (
	infoGet               byte = 0x00
	infoGetCommandsetSize byte = 0x01
	infoGetNameLength     byte = 0x02
	infoGetName           byte = 0x03
)

// STRUCTURED_OUTPUT_CONTROL doubles as both the wire key that selects the
// structured-output facility and, combined with a second selector byte,
// its sub-operations (spec.md §4.I).
const (
	structuredOutputKey byte = 0xFF
	structSetStructure  byte = 0x00
	structGetBufferSize byte = 0x01

	tableRejected byte = 0x00
	tableOK       byte = 0x01
)

// Table is a device's command set plus its structured-output
// configuration. It implements slave.PacketProcessor.
type Table struct {
	commands []*Command

	// maxKeys bounds how many keys a single structured-output table may
	// reference (the value Table reports from GET_BUFFER_SIZE).
	maxKeys int
	// maxReplyBytes bounds a structured-output table: setStructure rejects
	// a table once the summed raw widths of its commands reach this value.
	// Address and checksum bytes are not counted.
	maxReplyBytes int

	structMu    sync.Mutex
	structTable []*Command
}

// NewTable builds a command table. maxKeys is the structured-output slot
// limit advertised via GET_BUFFER_SIZE; a structured-output table is
// rejected once the summed raw widths of its commands reach
// maxReplyBytes (address and checksum bytes are not counted).
func NewTable(maxKeys, maxReplyBytes int, commands ...*Command) *Table {
	return &Table{commands: commands, maxKeys: maxKeys, maxReplyBytes: maxReplyBytes}
}

// Command returns the command at 1-based key, or nil if key is out of
// range.
func (t *Table) Command(key byte) *Command {
	idx := int(key) - 1
	if idx < 0 || idx >= len(t.commands) {
		return nil
	}
	return t.commands[idx]
}

// Len returns the command set size (the GET_COMMANDSET_SIZE reply).
func (t *Table) Len() int { return len(t.commands) }

// ProcessPacket implements slave.PacketProcessor (spec.md §4.I).
func (t *Table) ProcessPacket(request []byte) []byte {
	if len(request) == 0 {
		return slave.IgnorePacket
	}
	key := request[0]
	idx := int(key) - 1

	if idx >= 0 && idx < len(t.commands) {
		cmd := t.commands[idx]
		switch {
		case len(request) == 1:
			return t.readCommand(cmd)
		case len(request) == 4:
			return t.commandInfo(cmd, idx, request[1])
		default:
			return t.writeCommand(cmd, request[1:])
		}
	}

	if key == structuredOutputKey {
		return t.structuredOutput(request[1:])
	}
	return slave.IgnorePacket
}

func (t *Table) readCommand(cmd *Command) []byte {
	if cmd.Kind.Width() == 0 {
		return slave.IgnorePacket
	}
	return cmd.Raw()
}

func (t *Table) writeCommand(cmd *Command, value []byte) []byte {
	if cmd.Access != Write {
		return slave.IgnorePacket
	}
	width := cmd.Kind.Width()
	if width == 0 || len(value) != width {
		return slave.IgnorePacket
	}
	cmd.SetRaw(value)
	return []byte{}
}

func (t *Table) commandInfo(cmd *Command, idx int, selector byte) []byte {
	switch selector {
	case infoGetCommandsetSize:
		return []byte{byte(len(t.commands))}
	case infoGetNameLength:
		return []byte{byte(len(cmd.Name))}
	case infoGetName:
		return []byte(cmd.Name)
	case infoGet:
		return cmd.infoReply()
	default:
		return slave.IgnorePacket
	}
}

func (t *Table) structuredOutput(rest []byte) []byte {
	if len(rest) == 0 {
		return t.structuredRead()
	}
	switch rest[0] {
	case structSetStructure:
		return t.setStructure(rest[1:])
	case structGetBufferSize:
		return []byte{byte(t.maxKeys)}
	default:
		return slave.IgnorePacket
	}
}

// setStructure validates and replaces the structured-output table
// atomically (spec.md §4.I "Structured-output set-structure
// validation"). A rejected request clears the table and returns
// tableRejected, per spec.md §9's documented (preserved) bug/behavior.
func (t *Table) setStructure(keys []byte) []byte {
	t.structMu.Lock()
	defer t.structMu.Unlock()

	if len(keys) > t.maxKeys {
		t.structTable = nil
		return []byte{tableRejected}
	}

	newTable := make([]*Command, 0, len(keys))
	size := 0
	for _, k := range keys {
		cmd := t.Command(k)
		if cmd == nil || cmd.Kind.Width() == 0 {
			t.structTable = nil
			return []byte{tableRejected}
		}
		size += cmd.Kind.Width()
		if size >= t.maxReplyBytes {
			t.structTable = nil
			return []byte{tableRejected}
		}
		newTable = append(newTable, cmd)
	}

	t.structTable = newTable
	return []byte{tableOK}
}

func (t *Table) structuredRead() []byte {
	t.structMu.Lock()
	table := t.structTable
	t.structMu.Unlock()

	out := make([]byte, 0, t.maxReplyBytes)
	for _, cmd := range table {
		out = append(out, cmd.Raw()...)
	}
	return out
}
