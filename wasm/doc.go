// Package wasm builds and inspects WebAssembly binary modules.
//
// It covers the slice of the binary format a Logic Unit needs: function
// types, imports, functions, one linear memory, exports and active data
// segments. Modules are described with [Module] and emitted with
// [Module.Encode]; function bodies are assembled with [Code].
//
// # Building
//
//	m := &wasm.Module{
//	    Types:    []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
//	    Funcs:    []uint32{0},
//	    Memories: []wasm.MemoryType{{Min: 1}},
//	    Exports: []wasm.Export{
//	        {Name: "memory", Kind: wasm.KindMemory, Idx: 0},
//	        {Name: "answer", Kind: wasm.KindFunc, Idx: 0},
//	    },
//	    Code: []wasm.FuncBody{wasm.NewCode().I32Const(42).Body()},
//	}
//	data := m.Encode()
//
// # Inspecting
//
// [Scan] reads the export surface of an artifact without compiling it.
// The loader uses it to report missing entry points and signature
// mismatches with precise names before handing bytes to the engine.
//
//	sum, err := wasm.Scan(data)
//	ft, ok := sum.Func("hotswap_update")
package wasm
