package wasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	wbin "github.com/wippyai/hotswap/wasm/internal/binary"
)

var (
	ErrNoHeader       = errors.New("wasm: missing magic header")
	ErrBadVersion     = errors.New("wasm: unsupported binary version")
	ErrSectionOrder   = errors.New("wasm: section out of order")
	ErrTypeIndex      = errors.New("wasm: type index out of range")
	ErrFunctionIndex  = errors.New("wasm: function index out of range")
	ErrSectionOverrun = errors.New("wasm: section overruns module")
)

// HasHeader reports whether data starts with the WebAssembly magic number
// and a supported version.
func HasHeader(data []byte) bool {
	if len(data) < HeaderSize {
		return false
	}
	return binary.LittleEndian.Uint32(data[0:4]) == Magic &&
		binary.LittleEndian.Uint32(data[4:8]) == Version
}

// Summary is the exported surface of a module, gathered without compiling it.
type Summary struct {
	Exports  map[string]ExportInfo
	Imports  []Import
	Sections map[byte]int // section id -> payload size
	Memories []MemoryType
	Size     int
}

// ExportInfo describes one export. Type is set for function exports.
type ExportInfo struct {
	Type *FuncType
	Name string
	Kind byte
}

// Names returns export names in sorted order.
func (s *Summary) Names() []string {
	names := make([]string, 0, len(s.Exports))
	for name := range s.Exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func returns the signature of an exported function.
func (s *Summary) Func(name string) (FuncType, bool) {
	e, ok := s.Exports[name]
	if !ok || e.Kind != KindFunc || e.Type == nil {
		return FuncType{}, false
	}
	return *e.Type, true
}

// Scan reads the type, import, function, memory and export sections of a
// module. Other sections are skipped by size. It does not validate code.
func Scan(data []byte) (*Summary, error) {
	if len(data) < HeaderSize || binary.LittleEndian.Uint32(data[0:4]) != Magic {
		return nil, ErrNoHeader
	}
	if binary.LittleEndian.Uint32(data[4:8]) != Version {
		return nil, ErrBadVersion
	}

	s := &Summary{
		Exports:  make(map[string]ExportInfo),
		Sections: make(map[byte]int),
		Size:     len(data),
	}

	var (
		types     []FuncType
		funcTypes []uint32 // imported functions first, then declared
		exports   []Export
		lastRank  int
	)

	r := wbin.NewReader(data[HeaderSize:])
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		if int(size) > r.Len() {
			return nil, fmt.Errorf("section %d: %w", id, ErrSectionOverrun)
		}
		payload, _ := r.ReadBytes(int(size))

		if id != SectionCustom {
			if sectionRank(id) <= lastRank {
				return nil, fmt.Errorf("section %d: %w", id, ErrSectionOrder)
			}
			lastRank = sectionRank(id)
		}
		s.Sections[id] += int(size)

		sr := wbin.NewReader(payload)
		switch id {
		case SectionType:
			types, err = readTypes(sr)
		case SectionImport:
			s.Imports, err = readImports(sr)
			for _, imp := range s.Imports {
				if imp.Kind == KindFunc {
					funcTypes = append(funcTypes, imp.TypeIdx)
				}
			}
		case SectionFunction:
			var declared []uint32
			declared, err = readU32Vec(sr)
			funcTypes = append(funcTypes, declared...)
		case SectionMemory:
			var n uint32
			if n, err = sr.ReadU32(); err == nil {
				for i := uint32(0); i < n && err == nil; i++ {
					var mt MemoryType
					mt, err = readMemoryType(sr)
					s.Memories = append(s.Memories, mt)
				}
			}
		case SectionExport:
			exports, err = readExports(sr)
		}
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
	}

	for _, exp := range exports {
		info := ExportInfo{Name: exp.Name, Kind: exp.Kind}
		if exp.Kind == KindFunc {
			if int(exp.Idx) >= len(funcTypes) {
				return nil, fmt.Errorf("export %q: %w", exp.Name, ErrFunctionIndex)
			}
			ti := funcTypes[exp.Idx]
			if int(ti) >= len(types) {
				return nil, fmt.Errorf("export %q: %w", exp.Name, ErrTypeIndex)
			}
			ft := types[ti]
			info.Type = &ft
		}
		s.Exports[exp.Name] = info
	}
	return s, nil
}

// sectionRank orders known sections. Tag and DataCount sit out of id order.
func sectionRank(id byte) int {
	switch id {
	case SectionTag:
		return int(SectionMemory)*2 + 1
	case SectionDataCount:
		return int(SectionElement)*2 + 1
	default:
		return int(id) * 2
	}
}

func readTypes(r *wbin.Reader) ([]FuncType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	types := make([]FuncType, 0, min(n, 1024))
	for i := uint32(0); i < n; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if form != FuncTypeByte {
			return nil, fmt.Errorf("type %d: unexpected form 0x%02x", i, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return nil, err
		}
		results, err := readValTypes(r)
		if err != nil {
			return nil, err
		}
		types = append(types, FuncType{Params: params, Results: results})
	}
	return types, nil
}

func readValTypes(r *wbin.Reader) ([]ValType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, wbin.ErrUnexpectedEOF
	}
	out := make([]ValType, n)
	for i := range out {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		out[i] = ValType(b)
	}
	return out, nil
}

func readImports(r *wbin.Reader) ([]Import, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	var imports []Import
	for i := uint32(0); i < n; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return nil, err
		}
		if imp.Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		if imp.Kind, err = r.ReadByte(); err != nil {
			return nil, err
		}
		switch imp.Kind {
		case KindFunc:
			imp.TypeIdx, err = r.ReadU32()
		case KindMemory:
			var mt MemoryType
			mt, err = readMemoryType(r)
			imp.Memory = &mt
		case KindTable:
			// reftype + limits
			if _, err = r.ReadByte(); err == nil {
				_, err = readMemoryType(r)
			}
		case KindGlobal:
			// valtype + mutability
			err = r.Skip(2)
		case KindTag:
			if _, err = r.ReadByte(); err == nil {
				_, err = r.ReadU32()
			}
		default:
			return nil, fmt.Errorf("import %q.%q: unknown kind %d", imp.Module, imp.Name, imp.Kind)
		}
		if err != nil {
			return nil, err
		}
		imports = append(imports, imp)
	}
	return imports, nil
}

func readMemoryType(r *wbin.Reader) (MemoryType, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return MemoryType{}, err
	}
	var mt MemoryType
	if mt.Min, err = r.ReadU32(); err != nil {
		return MemoryType{}, err
	}
	if flags&0x01 != 0 {
		hi, err := r.ReadU32()
		if err != nil {
			return MemoryType{}, err
		}
		mt.Max = &hi
	}
	return mt, nil
}

func readExports(r *wbin.Reader) ([]Export, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	var exports []Export
	for i := uint32(0); i < n; i++ {
		var exp Export
		if exp.Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		if exp.Kind, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if exp.Idx, err = r.ReadU32(); err != nil {
			return nil, err
		}
		exports = append(exports, exp)
	}
	return exports, nil
}

func readU32Vec(r *wbin.Reader) ([]uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, wbin.ErrUnexpectedEOF
	}
	out := make([]uint32, n)
	for i := range out {
		if out[i], err = r.ReadU32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
