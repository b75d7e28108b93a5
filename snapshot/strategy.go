package snapshot

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/andreyvit/cacheable"
)

// Strategy decides whether a recorded file has changed since it was added.
type Strategy interface {
	validate(h *helper, path string) Result
}

type Result int

const (
	Unchanged Result = iota
	Modified
	Deleted
)

func (r Result) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "invalid"
	}
}

// CompileTime treats the file as modified if its mtime is after the time of
// the build that recorded it.
type CompileTime struct {
	UnixMilli int64
}

// LibVersion treats the file as modified if the version of the package it
// belongs to changed.
type LibVersion struct {
	Version string
}

var (
	compileTimeArchiver = cacheable.NewStruct(func(b *cacheable.StructBuilder[CompileTime]) {
		cacheable.AddField(b, "UnixMilli", func(v *CompileTime) *int64 { return &v.UnixMilli }, cacheable.Int64)
	})
	libVersionArchiver = cacheable.NewStruct(func(b *cacheable.StructBuilder[LibVersion]) {
		cacheable.AddField(b, "Version", func(v *LibVersion) *string { return &v.Version }, cacheable.String)
	})
	strategyArchiver = cacheable.Dyn[Strategy]()
)

func init() {
	cacheable.RegisterDyn[Strategy](compileTimeArchiver)
	cacheable.RegisterDyn[Strategy](libVersionArchiver)
}

func encodeStrategy(s Strategy) ([]byte, error) {
	return cacheable.SerializeWith(s, strategyArchiver, nil)
}

func decodeStrategy(data []byte) (Strategy, error) {
	return cacheable.DeserializeWith(data, strategyArchiver, nil)
}

func (s CompileTime) validate(h *helper, path string) Result {
	stat, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Deleted
	} else if err != nil {
		return Modified
	}
	if stat.ModTime().UnixMilli() > s.UnixMilli {
		return Modified
	}
	return Unchanged
}

func (s LibVersion) validate(h *helper, path string) Result {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Deleted
	}
	if v := h.libVersion(path); v == "" || v != s.Version {
		return Modified
	}
	return Unchanged
}

// helper memoizes package.json lookups within one Add or CalcModifiedFiles call.
type helper struct {
	versions map[string]string
}

func newHelper() *helper {
	return &helper{versions: make(map[string]string)}
}

// libVersion returns the version from the package.json nearest to path, or ""
// if there is none.
func (h *helper) libVersion(path string) string {
	var visited []string
	version := ""
	dir := filepath.Dir(path)
	for {
		if v, ok := h.versions[dir]; ok {
			version = v
			break
		}
		visited = append(visited, dir)
		if v, ok := readPackageVersion(filepath.Join(dir, "package.json")); ok {
			version = v
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	for _, d := range visited {
		h.versions[d] = version
	}
	return version
}

func readPackageVersion(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil || pkg.Version == "" {
		return "", false
	}
	return pkg.Version, true
}
