// Package engine runs Logic Units on wazero.
//
// It wraps a single wazero runtime configured so that a call whose context
// ends is interrupted and closes its instance. That is what bounds load
// and call time for the loader.
//
// # Architecture
//
//	Engine   - Owns the wazero runtime and the compilation cache
//	Module   - A compiled unit; reports export signatures without running it
//	Instance - A running unit with its exported functions and memory
//
// # Instantiation
//
//  1. Engine.Compile compiles the artifact bytes, bounded by ctx
//  2. Module.Signature and Module.HasMemory let the caller check exports
//  3. Module.Instantiate creates a named Instance and runs _initialize
//  4. Instance.Call invokes exports; Instance.Memory exposes linear memory
//
// Several instances of different builds may be alive at once as long as
// their names differ. Closing one never affects another.
//
// # WASI
//
// Units built for wasip1 import wasi_snapshot_preview1. The engine
// instantiates it once, on the first instance that needs it. Guest stdout
// and stderr go to the writers in Config.
package engine
