package wasm

import (
	"github.com/wippyai/hotswap/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	w := binary.NewWriter()

	// Magic number and version
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		writeSection(w, SectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Kind)
			switch imp.Kind {
			case KindFunc:
				sec.WriteU32(imp.TypeIdx)
			case KindMemory:
				if imp.Memory != nil {
					writeMemoryType(sec, *imp.Memory)
				}
			}
		}
		writeSection(w, SectionImport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec.WriteU32(typeIdx)
		}
		writeSection(w, SectionFunction, sec)
	}

	if len(m.Memories) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeMemoryType(sec, mem)
		}
		writeSection(w, SectionMemory, sec)
	}

	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(exp.Kind)
			sec.WriteU32(exp.Idx)
		}
		writeSection(w, SectionExport, sec)
	}

	if len(m.Code) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			fn := binary.NewWriter()
			fn.WriteU32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				fn.WriteU32(l.Count)
				fn.Byte(byte(l.Type))
			}
			fn.WriteBytes(body.Code)
			sec.WriteSized(fn)
		}
		writeSection(w, SectionCode, sec)
	}

	if len(m.Data) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Data)))
		for _, seg := range m.Data {
			// flag 0: active, memory 0, offset expression follows
			sec.WriteU32(0)
			sec.Byte(OpI32Const)
			sec.WriteS32(int32(seg.Offset))
			sec.Byte(OpEnd)
			sec.WriteU32(uint32(len(seg.Init)))
			sec.WriteBytes(seg.Init)
		}
		writeSection(w, SectionData, sec)
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, sec *binary.Writer) {
	w.Byte(id)
	w.WriteSized(sec)
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeMemoryType(w *binary.Writer, m MemoryType) {
	if m.Max != nil {
		w.Byte(0x01)
		w.WriteU32(m.Min)
		w.WriteU32(*m.Max)
	} else {
		w.Byte(0x00)
		w.WriteU32(m.Min)
	}
}
