package hotswap

// Memory is a unit's linear memory as seen by the host.
// Read returns a copy; the guest may grow or reuse its memory after the call.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	// Size is the current size in bytes.
	Size() uint32
}
