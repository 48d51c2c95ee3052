package wasm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// ModuleLoader handles loading and compiling Wasm modules.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// ModuleSource represents a source for Wasm bytecode.
type ModuleSource interface {
	// Bytes returns the Wasm bytecode.
	Bytes() ([]byte, error)

	// Name returns a name/identifier for this module.
	Name() string
}

// FileModuleSource loads Wasm from a file.
type FileModuleSource struct {
	Path string
}

// Bytes reads the Wasm file.
func (f *FileModuleSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Name returns the file path as the module name.
func (f *FileModuleSource) Name() string {
	return f.Path
}

// MemoryModuleSource loads Wasm from memory.
type MemoryModuleSource struct {
	ModuleName string
	Data       []byte
}

// Bytes returns the Wasm bytecode.
func (m *MemoryModuleSource) Bytes() ([]byte, error) {
	return m.Data, nil
}

// Name returns the module name.
func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// LoadModule compiles a module from a source unless one with the same name
// is already cached.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		l.logger.Debug("Module cache hit",
			zap.String("module", source.Name()),
		)
		return cached, nil
	}

	wasmBytes, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", source.Name(), err)
	}

	l.logger.Info("Compiling Wasm module",
		zap.String("module", source.Name()),
		zap.Int("size_bytes", len(wasmBytes)),
	)

	startTime := time.Now()
	compiled, err := l.runtime.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: source.Name(),
			Err:        err,
		}
	}

	compiledModule := &CompiledModule{
		Module:     compiled,
		Name:       source.Name(),
		Source:     source.Name(),
		SizeBytes:  int64(len(wasmBytes)),
		CompiledAt: time.Now().Unix(),
	}
	l.runtime.StoreCompiledModule(compiledModule)

	l.logger.Info("Module compiled successfully",
		zap.String("module", source.Name()),
		zap.Duration("duration", time.Since(startTime)),
	)

	return compiledModule, nil
}

// LoadModuleFromFile is a convenience function for loading from a file path.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, path string) (*CompiledModule, error) {
	return l.LoadModule(ctx, &FileModuleSource{Path: path})
}

// LoadModuleFromMemory loads from a byte slice.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	return l.LoadModule(ctx, &MemoryModuleSource{ModuleName: name, Data: data})
}

// FunctionInfo describes one imported or exported function.
type FunctionInfo struct {
	Module    string   `json:"module,omitempty"`
	Name      string   `json:"name"`
	Params    []string `json:"params"`
	Results   []string `json:"results"`
	Signature string   `json:"signature"`
}

// ModuleInfo is the import/export surface of a compiled module.
type ModuleInfo struct {
	Name     string         `json:"name"`
	Size     int64          `json:"size_bytes"`
	Exports  []FunctionInfo `json:"exports"`
	Imports  []FunctionInfo `json:"imports"`
	Memories []string       `json:"memories"`
}

// Inspect lists the functions a compiled module imports and exports, sorted
// by name.
func (c *CompiledModule) Inspect() ModuleInfo {
	info := ModuleInfo{Name: c.Name, Size: c.SizeBytes}

	for name, def := range c.Module.ExportedFunctions() {
		fi := functionInfo(def)
		fi.Name = name
		info.Exports = append(info.Exports, fi)
	}
	for _, def := range c.Module.ImportedFunctions() {
		fi := functionInfo(def)
		fi.Module, fi.Name, _ = def.Import()
		info.Imports = append(info.Imports, fi)
	}
	for name := range c.Module.ExportedMemories() {
		info.Memories = append(info.Memories, name)
	}

	sort.Slice(info.Exports, func(i, j int) bool { return info.Exports[i].Name < info.Exports[j].Name })
	sort.Slice(info.Imports, func(i, j int) bool {
		if info.Imports[i].Module != info.Imports[j].Module {
			return info.Imports[i].Module < info.Imports[j].Module
		}
		return info.Imports[i].Name < info.Imports[j].Name
	})
	sort.Strings(info.Memories)
	return info
}

// ExportsFunction reports whether the module exports a function called name.
func (c *CompiledModule) ExportsFunction(name string) bool {
	_, ok := c.Module.ExportedFunctions()[name]
	return ok
}

// ImportsFunction reports whether the module imports module.name.
func (c *CompiledModule) ImportsFunction(module, name string) bool {
	for _, def := range c.Module.ImportedFunctions() {
		if m, n, _ := def.Import(); m == module && n == name {
			return true
		}
	}
	return false
}

func functionInfo(def api.FunctionDefinition) FunctionInfo {
	fi := FunctionInfo{
		Params:  valueTypeNames(def.ParamTypes()),
		Results: valueTypeNames(def.ResultTypes()),
	}
	fi.Signature = "(" + strings.Join(fi.Params, ", ") + ") -> (" + strings.Join(fi.Results, ", ") + ")"
	return fi
}

func valueTypeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return names
}
