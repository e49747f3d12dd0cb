package host

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hotswap/loader"
)

// watch polls the artifact and asks the loop to check it whenever its
// size or modification time moves. The baseline is the version the loader
// bound, so a build written before the watcher started is still seen. It
// never touches loader state.
func (r *Runtime) watch(ctx context.Context) error {
	loc := r.loader.Location()
	m := r.loader.Marker()
	last := loader.FileStat{ModTime: m.ModTime, Size: m.Size}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		st, err := loc.Stat()
		if err != nil {
			if !last.ModTime.IsZero() {
				r.log.Debug("artifact disappeared", zap.String("path", loc.Path()))
			}
			last = loader.FileStat{}
			continue
		}
		if st.Size == last.Size && st.ModTime.Equal(last.ModTime) {
			continue
		}
		last = st
		r.requestCheck()
	}
}
