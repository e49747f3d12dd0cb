package wasm

import "strings"

// Module is the subset of a WebAssembly module needed to describe Logic
// Units: functions, one memory, exports and active data segments.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Memories []MemoryType
	Exports  []Export
	Code     []FuncBody
	Data     []DataSegment
}

// FuncType represents a WebAssembly function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two function types are identical.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

func (f FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	b.WriteString(")->(")
	for i, r := range f.Results {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}

// ValType represents a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Import represents an imported function or memory.
type Import struct {
	Module  string
	Name    string
	Memory  *MemoryType
	TypeIdx uint32
	Kind    byte
}

// MemoryType describes linear memory limits in pages.
type MemoryType struct {
	Max *uint32
	Min uint32
}

// Export represents an exported definition.
type Export struct {
	Name string
	Idx  uint32
	Kind byte
}

// FuncBody is a function body: local declarations plus encoded instructions
// ending with OpEnd.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count uint32
	Type  ValType
}

// DataSegment is an active data segment for memory 0.
type DataSegment struct {
	Init   []byte
	Offset uint32
}
