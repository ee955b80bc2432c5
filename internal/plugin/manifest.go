package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ManifestSuffix is appended to a library's stem to find its sidecar
// manifest: plugins/Foo.so -> plugins/Foo.plugin.json.
const ManifestSuffix = ".plugin.json"

// Manifest describes a plugin library. The sidecar file is optional; a
// library without one gets a minimal manifest named after its file stem.
type Manifest struct {
	Name        string
	Version     string
	DisplayName string
	Description string
	Author      string

	// Internal: path of the sidecar, empty for minimal manifests
	path string
}

// Validation errors.
var (
	ErrInvalidManifest = errors.New("manifest: not valid JSON")
	ErrInvalidVersion  = errors.New("manifest: version must be valid semver")
)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// ManifestPath returns the sidecar manifest path for a library.
func ManifestPath(libPath string) string {
	return filepath.Join(filepath.Dir(libPath), stem(libPath)+ManifestSuffix)
}

// LoadManifest reads the sidecar manifest of the library at libPath. A
// missing sidecar is not an error.
func LoadManifest(libPath string) (*Manifest, error) {
	path := ManifestPath(libPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifestMinimal(libPath), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, path)
	}

	fields := gjson.GetManyBytes(data, "name", "version", "displayName", "description", "author")
	m := &Manifest{
		Name:        fields[0].String(),
		Version:     fields[1].String(),
		DisplayName: fields[2].String(),
		Description: fields[3].String(),
		Author:      fields[4].String(),
		path:        path,
	}
	m.applyDefaults(libPath)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewManifestMinimal creates the manifest used when no sidecar exists.
func NewManifestMinimal(libPath string) *Manifest {
	m := &Manifest{}
	m.applyDefaults(libPath)
	return m
}

func (m *Manifest) applyDefaults(libPath string) {
	if m.Name == "" {
		m.Name = stem(libPath)
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
	if m.DisplayName == "" {
		m.DisplayName = m.Name
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}
	return nil
}

// Path returns the sidecar path, or "" for a minimal manifest.
func (m *Manifest) Path() string {
	return m.path
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s v%s", m.DisplayName, m.Version)
}

// stem returns the base name of path without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
