package loader

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Marker identifies one observed version of the artifact.
type Marker struct {
	ModTime time.Time
	Size    int64
	// Sum is the xxhash64 of the content. Zero for markers built from a stat.
	Sum uint64
}

// MarkerOf fingerprints artifact bytes observed with st.
func MarkerOf(st FileStat, data []byte) Marker {
	return Marker{ModTime: st.ModTime, Size: st.Size, Sum: xxhash.Sum64(data)}
}

// IsZero reports whether no artifact was observed.
func (m Marker) IsZero() bool {
	return m.ModTime.IsZero() && m.Size == 0 && m.Sum == 0
}

// Matches reports whether a stat still describes the marked version.
func (m Marker) Matches(st FileStat) bool {
	return !m.IsZero() && m.Size == st.Size && m.ModTime.Equal(st.ModTime)
}

// SameContent reports whether both markers fingerprint identical bytes.
func (m Marker) SameContent(o Marker) bool {
	return m.Sum != 0 && m.Sum == o.Sum && m.Size == o.Size
}

func (m Marker) String() string {
	if m.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s/%d/%016x", m.ModTime.Format(time.RFC3339Nano), m.Size, m.Sum)
}
