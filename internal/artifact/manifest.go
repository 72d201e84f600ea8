package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ercot-nodemap/internal/calibrate"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

// Input is one file that feeds a reconciliation.
type Input struct {
	Role string // e.g. "node_registry", "contour_page"
	Path string
}

// InputDigest records the content hash of an input, or Absent.
type InputDigest struct {
	Role   string `json:"role" yaml:"role"`
	Name   string `json:"name" yaml:"name"`
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Absent bool   `json:"absent,omitempty" yaml:"absent,omitempty"`
}

// KeyParams is everything that determines reconciliation output.
type KeyParams struct {
	EngineVersion string
	Tunables      map[string]string
	Inputs        []Input
}

// Manifest describes a committed bundle.
type Manifest struct {
	CacheKey      string                `json:"cache_key" yaml:"cache_key"`
	EngineVersion string                `json:"engine_version" yaml:"engine_version"`
	GeneratedAt   time.Time             `json:"generated_at" yaml:"generated_at"`
	RunID         string                `json:"run_id" yaml:"run_id"`
	Inputs        []InputDigest         `json:"inputs" yaml:"inputs"`
	Stats         model.RunStats        `json:"stats" yaml:"stats"`
	Calibration   calibrate.Calibration `json:"calibration" yaml:"calibration"`
}

// CacheKey hashes the engine version, the tunables, and each input's role,
// base name, and content. Inputs that do not exist hash as absent, so adding a
// contour page later changes the key. The digests are returned for the manifest.
func CacheKey(p KeyParams) (string, []InputDigest, error) {
	h := sha256.New()
	writeField(h, "engine", p.EngineVersion)

	keys := make([]string, 0, len(p.Tunables))
	for k := range p.Tunables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(h, "tunable", k+"="+p.Tunables[k])
	}

	digests := make([]InputDigest, 0, len(p.Inputs))
	for _, in := range p.Inputs {
		d, err := digestInput(in)
		if err != nil {
			return "", nil, err
		}
		digests = append(digests, d)
		if d.Absent {
			writeField(h, "input", d.Role+"|"+d.Name+"|absent")
		} else {
			writeField(h, "input", d.Role+"|"+d.Name+"|"+d.SHA256)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), digests, nil
}

// writeField NUL-terminates the tag and value so adjacent fields cannot run together.
func writeField(w io.Writer, tag, value string) {
	_, _ = io.WriteString(w, tag)
	_, _ = w.Write([]byte{0})
	_, _ = io.WriteString(w, value)
	_, _ = w.Write([]byte{0})
}

func digestInput(in Input) (InputDigest, error) {
	d := InputDigest{Role: in.Role, Name: filepath.Base(in.Path)}
	f, err := os.Open(in.Path)
	if errors.Is(err, fs.ErrNotExist) {
		d.Absent = true
		return d, nil
	}
	if err != nil {
		return d, eris.Wrapf(err, "artifact: open input %s", in.Path)
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return d, eris.Wrapf(err, "artifact: hash input %s", in.Path)
	}
	d.SHA256 = hex.EncodeToString(h.Sum(nil))
	return d, nil
}

// ReadManifest loads the manifest in dir.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "artifact: %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "artifact: parse %s", path)
	}
	return &m, nil
}
