// Package loader binds Logic Unit artifacts and swaps them at runtime.
//
// A Loader moves through three phases:
//
//	Unloaded --Load--> Loaded --Reload--> Reloading --> Loaded --Close--> Unloaded
//
// Load is the only place where a unit's initialize entry point runs. The
// state block it produces is owned by the Loader for the rest of the
// process and is attached, byte for byte, to every later build.
//
// # Reload Protocol
//
//  1. Read the artifact once its size and modification time are stable
//     and it carries the wasm header, retrying with exponential backoff.
//  2. Compile and instantiate the candidate under a fresh name while the
//     bound unit stays callable.
//  3. Bind the exports, check their types, the contract version, the
//     state size and the state window bounds.
//  4. On failure close the candidate, remember the artifact version as
//     rejected and return a recoverable error.
//  5. Run the old unit's unload hook and sync its state window back.
//  6. Attach the state block to the candidate and make it current.
//  7. Close the old unit; this waits for calls still inside it.
//  8. Record the new marker.
//
// A unit is closed exactly once and calls after that fail with
// ErrUnitClosed without reaching the instance.
package loader
