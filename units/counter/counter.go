// Package counter generates counter Logic Unit artifacts.
//
// The generated modules implement the Capability Interface directly in
// WebAssembly, so tests and the demo command can produce artifacts without
// a wasm toolchain. The state is a single little-endian i32 counter.
package counter

import (
	"time"

	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/wasm"
)

// Message kinds understood by generated units.
const (
	Increment = contract.KindUser
	Decrement = contract.KindUser + 1
	Exit      = contract.KindUser + 2
)

// Guest memory layout.
const (
	DefaultStatePtr  = 0x100
	DefaultStateSize = 4

	viewAddr   = 0x200
	outputAddr = 0x800
	quitAddr   = 0x880
)

// DefaultLabel prefixes the counter value in the view.
const DefaultLabel = "Counter: "

// Options selects the behavior of a generated unit.
type Options struct {
	// Label replaces DefaultLabel.
	Label string
	// Omit drops the named export from the module.
	Omit string
	// Version overrides the contract version tag when non-zero.
	Version uint32
	// StatePtr and StateSize override the declared state window.
	StatePtr  uint32
	StateSize uint32
	// Initial is the counter value set by hotswap_init.
	Initial int32
	// UnloadAdd is added to the counter by hotswap_unload.
	UnloadAdd int32
	// TrapOn and HangOn make update trap or spin forever for that kind.
	TrapOn contract.Kind
	HangOn contract.Kind
	// BadOutputOn makes update increment the counter and then return a
	// result pointer outside memory for that kind.
	BadOutputOn contract.Kind
	// TickAfter makes Increment schedule a KindTick message, which update
	// then handles like Increment without scheduling again.
	TickAfter time.Duration
	// Decrement adds the Decrement handler and button.
	Decrement bool
	// Unload exports hotswap_unload.
	Unload bool
	// Quit adds an Exit button whose update returns OpQuit.
	Quit bool
	// Reactor exports a no-op _initialize.
	Reactor bool
}

// A returns the Increment-only counter.
func A() []byte {
	return Build(Options{})
}

// B returns the counter with the added Decrement handler.
func B() []byte {
	return Build(Options{Decrement: true, Label: "Counter (B): "})
}

// View returns the view a unit built with opts renders for value.
func View(opts Options, value int32) contract.View {
	label := opts.Label
	if label == "" {
		label = DefaultLabel
	}
	elems := []contract.Element{
		contract.Text(label),
		contract.Int(int64(value)),
		contract.Break(),
		contract.Button("+", "Increment", contract.Message{Kind: Increment}),
	}
	if opts.Decrement {
		elems = append(elems, contract.Button("-", "Decrement", contract.Message{Kind: Decrement}))
	}
	if opts.Quit {
		elems = append(elems, contract.Button("x", "Exit", contract.Message{Kind: Exit}))
	}
	return contract.View{Elements: elems}
}

// function indices
const (
	fnVersion uint32 = iota
	fnStatePtr
	fnStateSize
	fnInit
	fnUpdate
	fnView
	fnUnload
	fnReactor
)

// type indices
const (
	tyI32 uint32 = iota
	tyVoid
	tyUpdate
	tyI64
)

// Build encodes a counter unit.
func Build(opts Options) []byte {
	if opts.Version == 0 {
		opts.Version = contract.Version
	}
	if opts.StatePtr == 0 {
		opts.StatePtr = DefaultStatePtr
	}
	if opts.StateSize == 0 {
		opts.StateSize = DefaultStateSize
	}
	state := int32(opts.StatePtr)

	view := contract.EncodeView(View(opts, 0))
	label := View(opts, 0).Elements[0]
	// the Int element follows the label; its value starts after the tag byte
	slot := int32(viewAddr + len(contract.EncodeView(contract.View{Elements: []contract.Element{label}})) + 1)

	data := []wasm.DataSegment{{Offset: viewAddr, Init: view}}

	var tick []byte
	if opts.TickAfter > 0 {
		tick = contract.EncodeOutput(contract.Output{Commands: []contract.Command{{
			Op:      contract.OpSchedule,
			Arg:     opts.TickAfter.Milliseconds(),
			Message: contract.Message{Kind: contract.KindTick},
		}}})
		data = append(data, wasm.DataSegment{Offset: outputAddr, Init: tick})
	}
	var quit []byte
	if opts.Quit {
		quit = contract.EncodeOutput(contract.Output{Commands: []contract.Command{{Op: contract.OpQuit}}})
		data = append(data, wasm.DataSegment{Offset: quitAddr, Init: quit})
	}

	add := func(c *wasm.Code, delta int32) {
		c.I32Const(state).I32Const(state).I32Load(0).I32Const(delta).I32Add().I32Store(0)
	}
	when := func(c *wasm.Code, kind contract.Kind) *wasm.Code {
		return c.LocalGet(0).I32Const(int32(kind)).I32Eq().If()
	}

	update := wasm.NewCode()
	when(update, Increment)
	add(update, 1)
	if tick != nil {
		update.I64Const(int64(contract.Pack(outputAddr, uint32(len(tick))))).Return()
	}
	update.End()
	if opts.Decrement {
		when(update, Decrement)
		add(update, -1)
		update.End()
	}
	if tick != nil {
		when(update, contract.KindTick)
		add(update, 1)
		update.End()
	}
	if quit != nil {
		when(update, Exit).I64Const(int64(contract.Pack(quitAddr, uint32(len(quit))))).Return().End()
	}
	if opts.TrapOn != 0 {
		when(update, opts.TrapOn).Unreachable().End()
	}
	if opts.BadOutputOn != 0 {
		when(update, opts.BadOutputOn)
		add(update, 1)
		update.I64Const(int64(contract.Pack(0xffff0000, 16))).Return().End()
	}
	if opts.HangOn != 0 {
		when(update, opts.HangOn).Loop().Br(0).End().End()
	}
	update.I64Const(0)

	unload := wasm.NewCode()
	if opts.UnloadAdd != 0 {
		add(unload, opts.UnloadAdd)
	}

	m := &wasm.Module{
		Types: []wasm.FuncType{
			tyI32:    {Results: []wasm.ValType{wasm.ValI32}},
			tyVoid:   {},
			tyUpdate: {Params: []wasm.ValType{wasm.ValI32, wasm.ValI64}, Results: []wasm.ValType{wasm.ValI64}},
			tyI64:    {Results: []wasm.ValType{wasm.ValI64}},
		},
		Funcs: []uint32{
			fnVersion:   tyI32,
			fnStatePtr:  tyI32,
			fnStateSize: tyI32,
			fnInit:      tyVoid,
			fnUpdate:    tyUpdate,
			fnView:      tyI64,
			fnUnload:    tyVoid,
			fnReactor:   tyVoid,
		},
		Memories: []wasm.MemoryType{{Min: 1}},
		Code: []wasm.FuncBody{
			fnVersion:   wasm.NewCode().I32Const(int32(opts.Version)).Body(),
			fnStatePtr:  wasm.NewCode().I32Const(state).Body(),
			fnStateSize: wasm.NewCode().I32Const(int32(opts.StateSize)).Body(),
			fnInit:      wasm.NewCode().I32Const(state).I32Const(opts.Initial).I32Store(0).Body(),
			fnUpdate:    update.Body(),
			fnView: wasm.NewCode().
				I32Const(slot).I32Const(state).I32Load(0).I64ExtendI32S().I64Store(0).
				I64Const(int64(contract.Pack(viewAddr, uint32(len(view))))).
				Body(),
			fnUnload:  unload.Body(),
			fnReactor: wasm.NewCode().Body(),
		},
		Data: data,
	}

	exports := []wasm.Export{
		{Name: contract.ExportMemory, Kind: wasm.KindMemory, Idx: 0},
		{Name: contract.ExportContractVersion, Kind: wasm.KindFunc, Idx: fnVersion},
		{Name: contract.ExportStatePtr, Kind: wasm.KindFunc, Idx: fnStatePtr},
		{Name: contract.ExportStateSize, Kind: wasm.KindFunc, Idx: fnStateSize},
		{Name: contract.ExportInit, Kind: wasm.KindFunc, Idx: fnInit},
		{Name: contract.ExportUpdate, Kind: wasm.KindFunc, Idx: fnUpdate},
		{Name: contract.ExportView, Kind: wasm.KindFunc, Idx: fnView},
	}
	if opts.Unload {
		exports = append(exports, wasm.Export{Name: contract.ExportUnload, Kind: wasm.KindFunc, Idx: fnUnload})
	}
	if opts.Reactor {
		exports = append(exports, wasm.Export{Name: contract.ExportReactorInit, Kind: wasm.KindFunc, Idx: fnReactor})
	}
	for _, e := range exports {
		if e.Name != opts.Omit {
			m.Exports = append(m.Exports, e)
		}
	}
	return m.Encode()
}
