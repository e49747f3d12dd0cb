package wasm

import (
	"errors"
	"testing"
)

func answerModule() *Module {
	return &Module{
		Types: []FuncType{
			{Results: []ValType{ValI32}},
			{Params: []ValType{ValI32, ValI64}, Results: []ValType{ValI64}},
		},
		Imports: []Import{
			{Module: "env", Name: "log", Kind: KindFunc, TypeIdx: 1},
		},
		Funcs:    []uint32{0, 1},
		Memories: []MemoryType{{Min: 1}},
		Exports: []Export{
			{Name: "memory", Kind: KindMemory, Idx: 0},
			{Name: "answer", Kind: KindFunc, Idx: 1},
			{Name: "step", Kind: KindFunc, Idx: 2},
		},
		Code: []FuncBody{
			NewCode().I32Const(42).Body(),
			NewCode().LocalGet(1).Body(),
		},
		Data: []DataSegment{{Offset: 0x100, Init: []byte("hi")}},
	}
}

func TestEncode_Header(t *testing.T) {
	data := (&Module{}).Encode()
	if len(data) != HeaderSize {
		t.Fatalf("empty module size = %d, want %d", len(data), HeaderSize)
	}
	if !HasHeader(data) {
		t.Fatal("HasHeader = false for encoded module")
	}
	want := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("byte %d = 0x%02x, want 0x%02x", i, data[i], want[i])
		}
	}
}

func TestHasHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"empty", nil, false},
		{"short", []byte{0x00, 0x61, 0x73}, false},
		{"text", []byte("not wasm at all"), false},
		{"bad version", []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}, false},
		{"ok", []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasHeader(tt.data); got != tt.want {
				t.Errorf("HasHeader = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScan_RoundTrip(t *testing.T) {
	sum, err := Scan(answerModule().Encode())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	names := sum.Names()
	if len(names) != 3 || names[0] != "answer" || names[1] != "memory" || names[2] != "step" {
		t.Fatalf("Names = %v", names)
	}

	ft, ok := sum.Func("answer")
	if !ok {
		t.Fatal("answer not found")
	}
	if ft.String() != "()->(i32)" {
		t.Errorf("answer type = %s", ft)
	}

	// index 2 resolves past the imported function
	ft, ok = sum.Func("step")
	if !ok {
		t.Fatal("step not found")
	}
	if ft.String() != "(i32,i64)->(i64)" {
		t.Errorf("step type = %s", ft)
	}

	if _, ok := sum.Func("memory"); ok {
		t.Error("memory reported as function")
	}
	if len(sum.Memories) != 1 || sum.Memories[0].Min != 1 {
		t.Errorf("Memories = %+v", sum.Memories)
	}
	if len(sum.Imports) != 1 || sum.Imports[0].Name != "log" {
		t.Errorf("Imports = %+v", sum.Imports)
	}
	if sum.Sections[SectionData] == 0 {
		t.Error("data section not recorded")
	}
}

func TestScan_Errors(t *testing.T) {
	valid := answerModule().Encode()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"no header", []byte("garbage!"), ErrNoHeader},
		{"bad version", []byte{0x00, 0x61, 0x73, 0x6D, 0x09, 0x00, 0x00, 0x00}, ErrBadVersion},
		{"overrun", append(append([]byte{}, valid[:HeaderSize]...), SectionType, 0x7F, 0x01), ErrSectionOverrun},
		{"order", func() []byte {
			m := &Module{Memories: []MemoryType{{Min: 1}}}
			data := m.Encode()
			// a type section after the memory section
			return append(data, SectionType, 0x01, 0x00)
		}(), ErrSectionOrder},
		{"function index", (&Module{
			Exports: []Export{{Name: "f", Kind: KindFunc, Idx: 3}},
		}).Encode(), ErrFunctionIndex},
		{"type index", (&Module{
			Funcs:   []uint32{5},
			Exports: []Export{{Name: "f", Kind: KindFunc, Idx: 0}},
		}).Encode(), ErrTypeIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Scan error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFuncType_Equal(t *testing.T) {
	a := FuncType{Params: []ValType{ValI32, ValI64}, Results: []ValType{ValI64}}
	b := FuncType{Params: []ValType{ValI32, ValI64}, Results: []ValType{ValI64}}
	c := FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI64}}
	d := FuncType{Params: []ValType{ValI32, ValI32}, Results: []ValType{ValI64}}

	if !a.Equal(b) {
		t.Error("identical types not equal")
	}
	if a.Equal(c) || a.Equal(d) {
		t.Error("different types reported equal")
	}
}

func TestCode_Encoding(t *testing.T) {
	got := NewCode().
		I32Const(-1).
		I64Const(300).
		LocalGet(0).
		If().Drop().Else().Return().End().
		Bytes()
	want := []byte{
		OpI32Const, 0x7F,
		OpI64Const, 0xAC, 0x02,
		OpLocalGet, 0x00,
		OpIf, BlockVoid, OpDrop, OpElse, OpReturn, OpEnd,
		OpEnd,
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (% x)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = 0x%02x, want 0x%02x", i, got[i], want[i])
		}
	}
}

func TestCode_MemoryImmediates(t *testing.T) {
	got := NewCode().I32Load(0x100).I64Store(8).Bytes()
	want := []byte{OpI32Load, 0x02, 0x80, 0x02, OpI64Store, 0x03, 0x08, OpEnd}
	if string(got) != string(want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}
