// Package contract defines the Shared Contract between the hotswap host
// and its Logic Units.
//
// A Logic Unit is a WebAssembly module that exports the Capability
// Interface:
//
//	memory                                       linear memory
//	hotswap_contract_version () -> i32           must equal Version
//	hotswap_state_ptr        () -> i32           state window address
//	hotswap_state_size       () -> i32           state window size
//	hotswap_init             () -> ()            build the first state
//	hotswap_update           (i32, i64) -> i64   kind, arg -> packed Output
//	hotswap_view             () -> i64           packed View
//	hotswap_unload           () -> ()            optional, before replacement
//
// Packed results are ptr<<32|len pointing into the unit's memory; zero
// means no data. Output and View are encoded with EncodeOutput and
// EncodeView.
//
// This package depends on the standard library only: it is compiled into
// guest units (GOOS=wasip1) as well as into the host.
package contract
