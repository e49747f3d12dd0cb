package loader

import (
	"bytes"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/hotswap"
	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/errors"
)

// sliceMemory is a fixed-size guest memory.
type sliceMemory []byte

func (m sliceMemory) Read(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(m)) {
		return nil, errors.OutOfBounds(errors.PhaseCall, "memory read", offset, length, m.Size())
	}
	return bytes.Clone(m[offset : offset+length]), nil
}

func (m sliceMemory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m)) {
		return errors.OutOfBounds(errors.PhaseCall, "memory write", offset, uint32(len(data)), m.Size())
	}
	copy(m[offset:], data)
	return nil
}

func (m sliceMemory) Size() uint32 { return uint32(len(m)) }

var _ hotswap.Memory = sliceMemory(nil)

func TestUnit_StateWindow(t *testing.T) {
	mem := make(sliceMemory, 64)
	u := &Unit{mem: mem, log: zap.NewNop(), statePtr: 16, stateSize: 4}

	state := contract.State{1, 2, 3, 4}
	if err := u.attach(state); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !bytes.Equal(mem[16:20], state) {
		t.Fatalf("window = %v", mem[16:20])
	}

	mem[17] = 9
	if err := u.sync(state); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !bytes.Equal(state, []byte{1, 9, 3, 4}) {
		t.Fatalf("state = %v", state)
	}
}

func TestUnit_Read(t *testing.T) {
	mem := make(sliceMemory, 64)
	copy(mem[40:], "view")
	u := &Unit{mem: mem, log: zap.NewNop()}

	tests := []struct {
		name   string
		packed uint64
		want   []byte
		kind   errors.Kind
	}{
		{"no output", 0, nil, ""},
		{"in bounds", contract.Pack(40, 4), []byte("view"), ""},
		{"out of bounds", contract.Pack(60, 8), nil, errors.KindOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := u.read(tt.packed, contract.ExportView)
			if errors.KindOf(err) != tt.kind {
				t.Fatalf("err = %v, want kind %q", err, tt.kind)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("read = %q, want %q", got, tt.want)
			}
		})
	}
}
