package contract

// Version is the contract version tag. Host and unit must agree on it
// exactly; bump it on any change to the exports, their signatures, or the
// Output/View wire formats.
const Version uint32 = 1

// Export names of the Capability Interface.
const (
	ExportMemory          = "memory"
	ExportContractVersion = "hotswap_contract_version"
	ExportStatePtr        = "hotswap_state_ptr"
	ExportStateSize       = "hotswap_state_size"
	ExportInit            = "hotswap_init"
	ExportUpdate          = "hotswap_update"
	ExportView            = "hotswap_view"
	ExportUnload          = "hotswap_unload"

	// ExportReactorInit is the wasip1 reactor initializer emitted by
	// toolchains for library-style modules. Called once per instance,
	// before any other export.
	ExportReactorInit = "_initialize"
)

// ValueType mirrors the wasm core value type encoding.
type ValueType byte

const (
	I32 ValueType = 0x7f
	I64 ValueType = 0x7e
)

func (v ValueType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	default:
		return "unknown"
	}
}

// Signature is the function type an export must have.
type Signature struct {
	Params  []ValueType
	Results []ValueType
}

func (s Signature) String() string {
	b := make([]byte, 0, 32)
	b = append(b, '(')
	for i, p := range s.Params {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, p.String()...)
	}
	b = append(b, ")->("...)
	for i, r := range s.Results {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, r.String()...)
	}
	b = append(b, ')')
	return string(b)
}

// Equal reports whether two signatures are identical.
func (s Signature) Equal(o Signature) bool {
	if len(s.Params) != len(o.Params) || len(s.Results) != len(o.Results) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range s.Results {
		if s.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// EntryPoint describes one function of the Capability Interface.
type EntryPoint struct {
	Name      string
	Signature Signature
	Required  bool
}

// EntryPoints lists every function export of the Capability Interface in
// binding order. The memory export is checked separately.
var EntryPoints = []EntryPoint{
	{Name: ExportContractVersion, Signature: Signature{Results: []ValueType{I32}}, Required: true},
	{Name: ExportStatePtr, Signature: Signature{Results: []ValueType{I32}}, Required: true},
	{Name: ExportStateSize, Signature: Signature{Results: []ValueType{I32}}, Required: true},
	{Name: ExportInit, Signature: Signature{}, Required: true},
	{Name: ExportUpdate, Signature: Signature{Params: []ValueType{I32, I64}, Results: []ValueType{I64}}, Required: true},
	{Name: ExportView, Signature: Signature{Results: []ValueType{I64}}, Required: true},
	{Name: ExportUnload, Signature: Signature{}},
	{Name: ExportReactorInit, Signature: Signature{}},
}

// Lookup returns the entry point with the given export name.
func Lookup(name string) (EntryPoint, bool) {
	for _, ep := range EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// Pack combines a guest pointer and length into the i64 returned by
// update and view.
func Pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// Unpack splits a packed i64 result. A zero value means no data.
func Unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}
