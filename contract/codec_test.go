package contract

import (
	"errors"
	"testing"
)

func TestOutputCodec(t *testing.T) {
	out := Output{Commands: []Command{
		{Op: OpSchedule, Arg: 250, Message: Message{Kind: KindTick, Arg: 7}},
		{Op: OpQuit},
	}}

	b := EncodeOutput(out)
	if len(b) != 4+2*commandSize {
		t.Fatalf("encoded length = %d", len(b))
	}

	got, err := DecodeOutput(b)
	if err != nil {
		t.Fatalf("DecodeOutput: %v", err)
	}
	if len(got.Commands) != 2 {
		t.Fatalf("got %d commands", len(got.Commands))
	}
	if got.Commands[0] != out.Commands[0] || got.Commands[1] != out.Commands[1] {
		t.Errorf("commands differ: %+v", got.Commands)
	}
}

func TestDecodeOutput_Errors(t *testing.T) {
	valid := EncodeOutput(Output{Commands: []Command{{Op: OpQuit}}})

	tests := []struct {
		want error
		name string
		in   []byte
	}{
		{ErrTruncated, "short header", []byte{1, 0}},
		{ErrTruncated, "missing command", valid[:len(valid)-1]},
		{ErrTrailing, "trailing", append(append([]byte{}, valid...), 0)},
		{ErrTooLarge, "huge count", []byte{0xff, 0xff, 0xff, 0x7f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeOutput(tt.in); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if out, err := DecodeOutput(nil); err != nil || len(out.Commands) != 0 {
		t.Errorf("empty input: %v %+v", err, out)
	}
}

func TestViewCodec(t *testing.T) {
	inc := Message{Kind: KindUser, Arg: 1}
	v := View{Elements: []Element{
		Text("Counter: "),
		Int(-3),
		Break(),
		Button("+", "increment", inc),
	}}

	got, err := DecodeView(EncodeView(v))
	if err != nil {
		t.Fatalf("DecodeView: %v", err)
	}
	if len(got.Elements) != len(v.Elements) {
		t.Fatalf("got %d elements", len(got.Elements))
	}
	for i := range v.Elements {
		if got.Elements[i] != v.Elements[i] {
			t.Errorf("element %d: got %+v, want %+v", i, got.Elements[i], v.Elements[i])
		}
	}

	if s := got.String(); s != "Counter: -3\n[+] increment" {
		t.Errorf("String() = %q", s)
	}
	if b := got.Buttons(); len(b) != 1 || b[0].Message != inc {
		t.Errorf("Buttons() = %+v", b)
	}
}

func TestDecodeView_Errors(t *testing.T) {
	valid := EncodeView(View{Elements: []Element{Text("hello")}})

	if _, err := DecodeView(valid[:len(valid)-2]); !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated: %v", err)
	}
	if _, err := DecodeView([]byte{1, 0, 0, 0, 99}); !errors.Is(err, ErrUnknownElement) {
		t.Errorf("unknown tag: %v", err)
	}
	if _, err := DecodeView(append(append([]byte{}, valid...), 1)); !errors.Is(err, ErrTrailing) {
		t.Errorf("trailing: %v", err)
	}
}

func TestSignature(t *testing.T) {
	ep, ok := Lookup(ExportUpdate)
	if !ok || !ep.Required {
		t.Fatalf("update entry point: %+v %v", ep, ok)
	}
	if s := ep.Signature.String(); s != "(i32,i64)->(i64)" {
		t.Errorf("String() = %q", s)
	}
	if ep.Signature.Equal(Signature{Params: []ValueType{I32}, Results: []ValueType{I64}}) {
		t.Error("signatures with different params should differ")
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("unknown export should not resolve")
	}
	if ep, _ := Lookup(ExportUnload); ep.Required {
		t.Error("unload must be optional")
	}
}

func TestPack(t *testing.T) {
	p, n := Unpack(Pack(0x200, 42))
	if p != 0x200 || n != 42 {
		t.Errorf("Unpack(Pack) = %#x, %d", p, n)
	}
	if p, n := Unpack(0); p != 0 || n != 0 {
		t.Error("zero should unpack to zero")
	}
}

func TestState(t *testing.T) {
	s := make(State, 12)
	s.PutInt32(0, -5)
	s.PutInt64(4, 1<<40)
	if s.Int32(0) != -5 || s.Int64(4) != 1<<40 {
		t.Errorf("state accessors: %d %d", s.Int32(0), s.Int64(4))
	}
	c := s.Clone()
	c.PutInt32(0, 9)
	if s.Int32(0) != -5 {
		t.Error("Clone shares memory")
	}
}
