package loader

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wippyai/hotswap/errors"
)

// ArtifactExt is the file extension of Logic Unit artifacts.
const ArtifactExt = ".wasm"

// Build profile directories, as laid out by the unit's build.
const (
	ProfileDebug   = "debug"
	ProfileRelease = "release"
)

// ResolveFileName maps a logical unit name to the artifact file name.
// Units are portable wasm modules, so the suffix is the same on every
// platform; a name that already carries an extension is used as is.
// This is the only place that knows the naming rule.
func ResolveFileName(name string) string {
	if filepath.Ext(name) != "" {
		return name
	}
	return name + ArtifactExt
}

// Location is where the Logic Unit artifact lives.
type Location struct {
	Dir     string
	Profile string
	Name    string
	// File is the resolved file name; see ResolveFileName.
	File string
}

// Locate builds a Location for name under dir. A non-empty profile is
// inserted as a subdirectory (dir/profile/name.wasm).
func Locate(dir, name, profile string) Location {
	return Location{
		Dir:     dir,
		Profile: profile,
		Name:    name,
		File:    ResolveFileName(name),
	}
}

// Path returns the artifact path.
func (l Location) Path() string {
	if l.Profile != "" {
		return filepath.Join(l.Dir, l.Profile, l.File)
	}
	return filepath.Join(l.Dir, l.File)
}

func (l Location) String() string {
	return l.Path()
}

// Validate checks that the location names an artifact.
func (l Location) Validate() error {
	if l.Name == "" || l.File == "" {
		return errors.InvalidInput(errors.PhaseLocate, "artifact name is empty")
	}
	if strings.ContainsAny(l.Profile, `/\`) {
		return errors.InvalidInput(errors.PhaseLocate, "profile must be a single directory name")
	}
	return nil
}

// FileStat is the cheap part of a Marker, observed without reading the file.
type FileStat struct {
	ModTime time.Time
	Size    int64
}

// Stat observes the artifact. A missing file is reported as a missing
// artifact error.
func (l Location) Stat() (FileStat, error) {
	path := l.Path()
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileStat{}, errors.MissingArtifact(path, err)
		}
		return FileStat{}, errors.Wrap(errors.PhaseLocate, errors.KindMissingArtifact, err, "stat "+path)
	}
	if fi.IsDir() {
		return FileStat{}, errors.New(errors.PhaseLocate, errors.KindMissingArtifact).
			Artifact(path).
			Detail("is a directory").
			Build()
	}
	return FileStat{ModTime: fi.ModTime(), Size: fi.Size()}, nil
}
