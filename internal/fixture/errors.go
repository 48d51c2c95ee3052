package fixture

import (
	"fmt"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// WasmNotFoundError occurs when the Wasm file referenced in manifest doesn't exist.
type WasmNotFoundError struct {
	ManifestPath string
	WasmFile     string
}

func (e *WasmNotFoundError) Error() string {
	return fmt.Sprintf("Wasm file '%s' not found (referenced in manifest '%s')",
		e.WasmFile, e.ManifestPath)
}

// MissingExportError occurs when a compiled module lacks an export its
// manifest declares.
type MissingExportError struct {
	FixtureName string
	Export      string
}

func (e *MissingExportError) Error() string {
	return fmt.Sprintf("fixture '%s' declares export '%s' but the module does not provide it",
		e.FixtureName, e.Export)
}

// MissingImportError occurs when a compiled module does not import a host
// function every fixture must use.
type MissingImportError struct {
	FixtureName string
	Module      string
	Name        string
}

func (e *MissingImportError) Error() string {
	return fmt.Sprintf("fixture '%s' does not import %s.%s", e.FixtureName, e.Module, e.Name)
}

// FixtureLoadError occurs when fixture loading fails.
type FixtureLoadError struct {
	FixtureName string
	Err         error
}

func (e *FixtureLoadError) Error() string {
	return fmt.Sprintf("failed to load fixture '%s': %v", e.FixtureName, e.Err)
}

func (e *FixtureLoadError) Unwrap() error {
	return e.Err
}

// FixtureNotFoundError occurs when a fixture is not found in the registry.
type FixtureNotFoundError struct {
	FixtureName string
}

func (e *FixtureNotFoundError) Error() string {
	return fmt.Sprintf("fixture '%s' not found", e.FixtureName)
}

// FixtureAlreadyRegisteredError occurs when attempting to register a duplicate fixture.
type FixtureAlreadyRegisteredError struct {
	FixtureName string
}

func (e *FixtureAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("fixture '%s' is already registered", e.FixtureName)
}

// NoFixturesFoundError occurs when no fixtures are found in the configured paths.
type NoFixturesFoundError struct {
	Paths []string
}

func (e *NoFixturesFoundError) Error() string {
	return fmt.Sprintf("no fixtures found in paths: %v", e.Paths)
}
