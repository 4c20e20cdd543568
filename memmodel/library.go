package memmodel

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed models
var builtin embed.FS

// Builtin returns the chip models compiled into the binary.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtin, "models")
	if err != nil {
		panic(err)
	}
	return sub
}

// NotFoundError is returned when no layer of the library holds a model.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return "memmodel: no chip model at " + e.Path
}

func (e *NotFoundError) Kind() string { return "unknown chip model" }

// Library resolves chip models by <vendor>/<deviceClass>/<chip>. Layers are
// searched in order, so earlier layers override later ones.
type Library struct {
	layers []fs.FS
	log    *zap.Logger
}

// NewLibrary creates a library over the given layers.
func NewLibrary(log *zap.Logger, layers ...fs.FS) *Library {
	if log == nil {
		log = zap.NewNop()
	}
	return &Library{layers: layers, log: log}
}

// DefaultLibrary layers the directory named by overlayDir (if non-empty) over
// the built-in models.
func DefaultLibrary(log *zap.Logger, overlayDir string) *Library {
	layers := make([]fs.FS, 0, 2)
	if overlayDir != "" {
		layers = append(layers, os.DirFS(overlayDir))
	}
	layers = append(layers, Builtin())
	return NewLibrary(log, layers...)
}

func (l *Library) listDirs(dir string) []string {
	set := make(map[string]struct{})
	for _, layer := range l.layers {
		entries, err := fs.ReadDir(layer, dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				set[e.Name()] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

// Vendors lists all vendors with at least one model directory.
func (l *Library) Vendors() []string {
	return l.listDirs(".")
}

// Classes lists the device class directories present under vendor.
func (l *Library) Classes(vendor string) []string {
	return l.listDirs(vendor)
}

// Chips lists the chip names available for vendor and class.
func (l *Library) Chips(vendor, class string) []string {
	set := make(map[string]struct{})
	dir := path.Join(vendor, class)
	for _, layer := range l.layers {
		entries, err := fs.ReadDir(layer, dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			set[strings.TrimSuffix(e.Name(), ".json")] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Load reads, parses and validates the named chip model.
func (l *Library) Load(vendor, class, chip string) (*Model, error) {
	p := modelPath(vendor, class, chip)
	for _, layer := range l.layers {
		data, err := fs.ReadFile(layer, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "memmodel: read %s", p)
		}

		m, err := Parse(p, data)
		if err != nil {
			l.log.Warn("memmodel: load", zap.String("path", p), zap.Error(err))
			return nil, err
		}
		l.log.Debug("memmodel: loaded", zap.String("path", p), zap.Int("sequences", len(m.Sequences)))
		return m, nil
	}
	return nil, &NotFoundError{Path: p}
}

// LoadPath loads a model by its "<vendor>/<deviceClass>/<chip>" path; the
// ".json" suffix is optional.
func (l *Library) LoadPath(p string) (*Model, error) {
	parts := strings.Split(strings.TrimSuffix(p, ".json"), "/")
	if len(parts) != 3 {
		return nil, errors.Errorf("memmodel: model path %q is not <vendor>/<deviceClass>/<chip>", p)
	}
	return l.Load(parts[0], parts[1], parts[2])
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
