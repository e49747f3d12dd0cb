package loader

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/ZenLiuCN/fn"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/wasm"
)

// Artifact is a fully written artifact read into memory.
type Artifact struct {
	Path   string
	Data   []byte
	Marker Marker
}

// ReadArtifact reads the artifact at loc once its size and modification
// time stay unchanged across settle and its content starts with the wasm
// header. Incomplete reads are retried with exponential backoff up to
// attempts times. A missing file is not retried.
//
// On error the returned Artifact carries no data; its Marker is the last
// stat an attempt proved incomplete, or zero when none was. A stat the
// reader did not inspect is never reported.
func ReadArtifact(ctx context.Context, loc Location, settle time.Duration, attempts uint, log *zap.Logger) (Artifact, error) {
	path := loc.Path()
	var bad FileStat

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(settle, time.Millisecond)
	b.MaxInterval = 20 * b.InitialInterval

	op := func() (Artifact, error) {
		before, err := loc.Stat()
		if err != nil {
			return Artifact{}, backoff.Permanent(err)
		}
		if before.Size == 0 {
			bad = before
			return Artifact{}, errors.IncompleteArtifact(path, "empty file")
		}
		if settle > 0 {
			t := time.NewTimer(settle)
			select {
			case <-ctx.Done():
				t.Stop()
				return Artifact{}, backoff.Permanent(ctx.Err())
			case <-t.C:
			}
		}

		data, err := readFile(path)
		if err != nil {
			return Artifact{}, errors.Wrap(errors.PhaseRead, errors.KindIncompleteArtifact, err, "read "+path)
		}
		after, err := loc.Stat()
		if err != nil {
			return Artifact{}, err
		}
		if !after.ModTime.Equal(before.ModTime) || after.Size != before.Size || int64(len(data)) != after.Size {
			// after may already describe the finished file
			bad = before
			return Artifact{}, errors.IncompleteArtifact(path, "file changed while reading")
		}
		if !wasm.HasHeader(data) {
			bad = after
			return Artifact{}, errors.IncompleteArtifact(path, "missing wasm header")
		}
		return Artifact{Path: path, Data: data, Marker: MarkerOf(after, data)}, nil
	}

	art, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(max(attempts, 1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug("artifact not ready", zap.String("path", path), zap.Duration("retry_in", next), zap.Error(err))
		}),
	)
	if err != nil {
		failed := Artifact{Path: path}
		if bad != (FileStat{}) {
			failed.Marker = Marker{ModTime: bad.ModTime, Size: bad.Size}
		}
		if ctx.Err() != nil && !errors.Is(err, &errors.Error{Kind: errors.KindMissingArtifact}) {
			return failed, errors.Timeout(errors.PhaseRead, "read "+path, err)
		}
		return failed, err
	}
	return art, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fn.IgnoreClose(f)
	return io.ReadAll(f)
}
