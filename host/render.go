package host

import (
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hotswap/contract"
)

// Renderer presents view descriptions. Render is called from the runtime
// loop only, never concurrently.
type Renderer interface {
	Render(view contract.View)
}

// StatusRenderer is implemented by renderers that also show reload
// progress. The runtime checks for it with a type assertion.
type StatusRenderer interface {
	Status(st Status)
}

// Event is what a Status reports.
type Event int

const (
	EventLoaded Event = iota
	EventReloading
	EventReloaded
	EventUnchanged
	EventReloadFailed
	EventUpdateFailed
	EventStopped
)

func (e Event) String() string {
	switch e {
	case EventLoaded:
		return "loaded"
	case EventReloading:
		return "reloading"
	case EventReloaded:
		return "reloaded"
	case EventUnchanged:
		return "unchanged"
	case EventReloadFailed:
		return "reload failed"
	case EventUpdateFailed:
		return "update failed"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status describes the bound unit after a lifecycle event.
type Status struct {
	Time       time.Time
	Err        error
	Unit       string
	Generation uint64
	Event      Event
}

// LogRenderer renders views and status as log lines. It is used when no
// terminal is attached.
type LogRenderer struct {
	log *zap.Logger
}

// NewLogRenderer returns a renderer writing to l.
func NewLogRenderer(l *zap.Logger) *LogRenderer {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogRenderer{log: l.Named("view")}
}

func (r *LogRenderer) Render(view contract.View) {
	r.log.Info(view.String())
}

func (r *LogRenderer) Status(st Status) {
	fields := []zap.Field{
		zap.Stringer("event", st.Event),
		zap.Uint64("generation", st.Generation),
	}
	if st.Unit != "" {
		fields = append(fields, zap.String("unit", st.Unit))
	}
	if st.Err != nil {
		r.log.Warn("status", append(fields, zap.Error(st.Err))...)
		return
	}
	r.log.Info("status", fields...)
}
