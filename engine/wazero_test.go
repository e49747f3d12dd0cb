package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/units/counter"
	"github.com/wippyai/hotswap/wasm"
)

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	return e
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"default config", Config{}},
		{"16MB limit", Config{MemoryLimitPages: 256}},
		{"interpreter", Config{Interpreter: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(t, tc.cfg)
			if e.runtime == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestNew_CacheDir(t *testing.T) {
	e := newEngine(t, Config{CacheDir: t.TempDir()})
	if _, err := e.Compile(context.Background(), counter.A()); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestCompile_Signatures(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{})

	mod, err := e.Compile(ctx, counter.Build(counter.Options{Unload: true}))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer mod.Close(ctx)

	for _, ep := range contract.EntryPoints {
		sig, ok := mod.Signature(ep.Name)
		if ep.Name == contract.ExportReactorInit {
			if ok {
				t.Errorf("%s unexpectedly exported", ep.Name)
			}
			continue
		}
		if !ok {
			t.Fatalf("%s not exported", ep.Name)
		}
		if !sig.Equal(ep.Signature) {
			t.Errorf("%s: %s, want %s", ep.Name, sig, ep.Signature)
		}
	}
	if !mod.HasMemory(contract.ExportMemory) {
		t.Error("memory not exported")
	}
	if mod.NeedsWASI() {
		t.Error("generated unit does not import WASI")
	}
	if len(mod.ExportNames()) != 7 {
		t.Errorf("ExportNames = %v", mod.ExportNames())
	}
}

func TestCompile_Invalid(t *testing.T) {
	e := newEngine(t, Config{})
	_, err := e.Compile(context.Background(), []byte("\x00asm\x01\x00\x00\x00\x01\x05garbage"))
	if err == nil {
		t.Fatal("expected compile error")
	}
	if errors.KindOf(err) != errors.KindCompilation {
		t.Fatalf("kind = %q, want %q", errors.KindOf(err), errors.KindCompilation)
	}
}

func TestCompile_ContextDone(t *testing.T) {
	e := newEngine(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Compile(ctx, counter.A())
	if err == nil {
		// compilation may win the race against an already-cancelled context
		return
	}
	if errors.KindOf(err) != errors.KindTimeout {
		t.Fatalf("kind = %q, want timeout", errors.KindOf(err))
	}
}

func TestInstantiate_NamesAreIndependent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{})

	mod, err := e.Compile(ctx, counter.A())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	a, err := mod.Instantiate(ctx, InstanceConfig{Name: "unit-1"})
	if err != nil {
		t.Fatalf("Instantiate a: %v", err)
	}
	b, err := mod.Instantiate(ctx, InstanceConfig{Name: "unit-2"})
	if err != nil {
		t.Fatalf("Instantiate b: %v", err)
	}
	if _, err := mod.Instantiate(ctx, InstanceConfig{Name: "unit-1"}); err == nil {
		t.Fatal("duplicate name should fail")
	}

	for _, inst := range []*Instance{a, b} {
		if _, err := inst.Call(ctx, contract.ExportInit); err != nil {
			t.Fatalf("init %s: %v", inst.Name(), err)
		}
	}
	if _, err := a.Call(ctx, contract.ExportUpdate, uint64(counter.Increment), 0); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.Closed() {
		t.Error("a not closed")
	}
	if b.Closed() {
		t.Error("closing a closed b")
	}

	got, err := b.Memory().ReadU32(counter.DefaultStatePtr)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if got != 0 {
		t.Errorf("b counter = %d, want 0", got)
	}
}

func TestInstantiate_ReactorInit(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{})

	mod, err := e.Compile(ctx, counter.Build(counter.Options{Reactor: true}))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := mod.Instantiate(ctx, InstanceConfig{Name: "reactor"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)
}

func TestCall_Missing(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{})

	mod, _ := e.Compile(ctx, counter.A())
	inst, err := mod.Instantiate(ctx, InstanceConfig{})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	_, err = inst.Call(ctx, contract.ExportUnload)
	if errors.KindOf(err) != errors.KindMissingEntryPoint {
		t.Fatalf("err = %v", err)
	}
}

func TestCall_Timeout(t *testing.T) {
	e := newEngine(t, Config{})
	hang := contract.Kind(7)

	mod, err := e.Compile(context.Background(), counter.Build(counter.Options{HangOn: hang}))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := mod.Instantiate(context.Background(), InstanceConfig{Name: "hang"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = inst.Call(ctx, contract.ExportUpdate, uint64(hang), 0)
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if !inst.Closed() {
		t.Error("interrupted instance should be closed")
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{})

	mod, _ := e.Compile(ctx, counter.A())
	inst, err := mod.Instantiate(ctx, InstanceConfig{})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	mem := inst.Memory()
	if mem.Size() != wasm.PageSize {
		t.Fatalf("Size = %d, want %d", mem.Size(), wasm.PageSize)
	}

	if err := mem.Write(16, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := mem.Read(16, 3)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("Read = %v", got)
	}
	// Read returns a copy
	got[0] = 9
	again, _ := mem.Read(16, 1)
	if again[0] != 1 {
		t.Error("Read aliases guest memory")
	}

	if err := mem.WriteU32(32, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	if v, _ := mem.ReadU32(32); v != 0xdeadbeef {
		t.Fatalf("ReadU32 = %#x", v)
	}

	if _, err := mem.Read(wasm.PageSize-1, 2); errors.KindOf(err) != errors.KindOutOfBounds {
		t.Errorf("out of range read err = %v", err)
	}
	if err := mem.WriteU32(wasm.PageSize, 1); errors.KindOf(err) != errors.KindOutOfBounds {
		t.Errorf("out of range write err = %v", err)
	}
}

func TestLogger(t *testing.T) {
	if Logger() == nil {
		t.Fatal("default logger is nil")
	}
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("logger after reset is nil")
	}
}
