package fixture

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// ManifestFile is the name of the manifest inside a fixture directory.
const ManifestFile = "manifest.yaml"

// Toolchains a fixture can be built with.
var Toolchains = []string{"go", "tinygo", "rust"}

// Manifest represents the fixture manifest.yaml structure.
type Manifest struct {
	Name        string        `yaml:"name"`
	Version     string        `yaml:"version"`
	Toolchain   string        `yaml:"toolchain"`
	Description string        `yaml:"description"`
	Wasm        WasmConfig    `yaml:"wasm"`
	Exports     []string      `yaml:"exports"`
	Budget      time.Duration `yaml:"budget"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"`
	Size int    `yaml:"size"` // KB, informational
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	// A manifest that lists no exports claims the required set.
	if len(m.Exports) == 0 {
		m.Exports = slices.Clone(abi.RequiredExports)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return m.invalid("name", "name is required")
	}

	if m.Version == "" {
		return m.invalid("version", "version is required")
	}

	if !slices.Contains(Toolchains, m.Toolchain) {
		return m.invalid("toolchain", fmt.Sprintf("unsupported toolchain: %q (must be one of: %s)",
			m.Toolchain, strings.Join(Toolchains, ", ")))
	}

	if m.Wasm.File == "" {
		return m.invalid("wasm.file", "wasm.file is required")
	}

	if m.Budget < 0 {
		return m.invalid("budget", "budget must not be negative")
	}

	seen := make(map[string]bool, len(m.Exports))
	for _, name := range m.Exports {
		if !abi.KnownExport(name) {
			return m.invalid("exports", fmt.Sprintf("unknown export: %s", name))
		}
		if seen[name] {
			return m.invalid("exports", fmt.Sprintf("duplicate export: %s", name))
		}
		seen[name] = true
	}
	for _, name := range abi.RequiredExports {
		if !seen[name] {
			return m.invalid("exports", fmt.Sprintf("required export missing: %s", name))
		}
	}

	if _, err := os.Stat(m.WasmPath()); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

func (m *Manifest) invalid(field, msg string) error {
	return &ManifestValidationError{Path: m.Path(), Field: field, Message: msg}
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
