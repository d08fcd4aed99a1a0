package stellantriebeslave_test

import (
	"bytes"
	"testing"

	"github.com/turag-ev/feldbus/stellantriebeslave"
)

func newScenarioTable() *stellantriebeslave.Table {
	c1 := stellantriebeslave.NewCommand("one", stellantriebeslave.KindShort, stellantriebeslave.Write, stellantriebeslave.ControlFactor)
	c2 := stellantriebeslave.NewCommand("two", stellantriebeslave.KindShort, stellantriebeslave.Write, stellantriebeslave.ControlFactor)
	c3 := stellantriebeslave.NewCommand("three", stellantriebeslave.KindShort, stellantriebeslave.Write, stellantriebeslave.ControlFactor)
	c1.SetRaw([]byte{0x11, 0x11})
	c2.SetRaw([]byte{0x22, 0x22})
	c3.SetRaw([]byte{0x33, 0x33})
	return stellantriebeslave.NewTable(8, 64, c1, c2, c3)
}

// TestStructuredOutput reproduces spec.md §8 scenario 6 exactly.
func TestStructuredOutput(t *testing.T) {
	table := newScenarioTable()

	if reply := table.ProcessPacket([]byte{0xFF, 0x00, 1, 3}); !bytes.Equal(reply, []byte{0x01}) {
		t.Fatalf("set structure [1,3] = %v, want [0x01] (ok)", reply)
	}
	if reply := table.ProcessPacket([]byte{0xFF}); !bytes.Equal(reply, []byte{0x11, 0x11, 0x33, 0x33}) {
		t.Fatalf("structured read = %v, want [11,11,33,33]", reply)
	}

	if reply := table.ProcessPacket([]byte{0xFF, 0x00, 1, 2, 3}); !bytes.Equal(reply, []byte{0x01}) {
		t.Fatalf("set structure [1,2,3] = %v, want [0x01] (ok)", reply)
	}
	if reply := table.ProcessPacket([]byte{0xFF}); !bytes.Equal(reply, []byte{0x11, 0x11, 0x22, 0x22, 0x33, 0x33}) {
		t.Fatalf("structured read = %v, want [11,11,22,22,33,33]", reply)
	}

	// Unknown key (4) rejects and clears the table.
	if reply := table.ProcessPacket([]byte{0xFF, 0x00, 1, 4}); !bytes.Equal(reply, []byte{0x00}) {
		t.Fatalf("set structure with bad key = %v, want [0x00] (rejected)", reply)
	}
	if reply := table.ProcessPacket([]byte{0xFF}); len(reply) != 0 {
		t.Fatalf("structured read after rejection = %v, want empty", reply)
	}
}

func TestReadWriteCommand(t *testing.T) {
	cmd := stellantriebeslave.NewCommand("speed", stellantriebeslave.KindShort, stellantriebeslave.Write, stellantriebeslave.ControlFactor)
	table := stellantriebeslave.NewTable(4, 64, cmd)

	reply := table.ProcessPacket([]byte{1, 0x34, 0x12})
	if len(reply) != 0 {
		t.Fatalf("write ack = %v, want empty ack", reply)
	}
	if reply := table.ProcessPacket([]byte{1}); !bytes.Equal(reply, []byte{0x34, 0x12}) {
		t.Fatalf("read after write = %v, want [0x34,0x12]", reply)
	}
}

func TestWriteRejectedOnReadOnly(t *testing.T) {
	cmd := stellantriebeslave.NewCommand("temp", stellantriebeslave.KindChar, stellantriebeslave.ReadOnly, 1.0)
	table := stellantriebeslave.NewTable(4, 64, cmd)

	if reply := table.ProcessPacket([]byte{1, 0x05}); reply != nil {
		t.Fatalf("write to read-only command = %v, want IgnorePacket (nil)", reply)
	}
}

func TestReadRejectedOnNoneKind(t *testing.T) {
	cmd := stellantriebeslave.NewCommand("unused", stellantriebeslave.KindNone, stellantriebeslave.Write, stellantriebeslave.ControlFactor)
	table := stellantriebeslave.NewTable(4, 64, cmd)

	if reply := table.ProcessPacket([]byte{1}); reply != nil {
		t.Fatalf("read of None-kind command = %v, want IgnorePacket (nil)", reply)
	}
}

func TestCommandInfo(t *testing.T) {
	cmd := stellantriebeslave.NewCommand("angle", stellantriebeslave.KindLong, stellantriebeslave.Write, 2.0)
	table := stellantriebeslave.NewTable(4, 64, cmd)

	reply := table.ProcessPacket([]byte{1, 0x00, 0x00, 0x00})
	if len(reply) != 6 {
		t.Fatalf("commandInfo reply length = %d, want 6", len(reply))
	}
	if reply[0] != byte(stellantriebeslave.Write) || reply[1] != byte(stellantriebeslave.KindLong) {
		t.Errorf("commandInfo access/kind = %v", reply[:2])
	}

	if reply := table.ProcessPacket([]byte{1, 0x01, 0, 0}); !bytes.Equal(reply, []byte{1}) {
		t.Errorf("GET_COMMANDSET_SIZE = %v, want [1]", reply)
	}
	if reply := table.ProcessPacket([]byte{1, 0x02, 0, 0}); !bytes.Equal(reply, []byte{byte(len("angle"))}) {
		t.Errorf("GET_NAME_LENGTH = %v, want [%d]", reply, len("angle"))
	}
	if reply := table.ProcessPacket([]byte{1, 0x03, 0, 0}); string(reply) != "angle" {
		t.Errorf("GET_NAME = %q, want %q", reply, "angle")
	}
}

func TestUnknownKeyIgnored(t *testing.T) {
	table := stellantriebeslave.NewTable(4, 64)
	if reply := table.ProcessPacket([]byte{1}); reply != nil {
		t.Fatalf("read of out-of-range key = %v, want IgnorePacket (nil)", reply)
	}
}
