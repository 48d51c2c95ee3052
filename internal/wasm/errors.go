package wasm

import (
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero/sys"
)

// CompilationError occurs when Wasm module compilation fails
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile Wasm module '%s': %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError occurs when module instantiation fails
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to instantiate module '%s' (instance: %s): %v",
		e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ModuleNotFoundError occurs when a module is not in cache
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found in cache", e.ModuleName)
}

// FunctionNotFoundError occurs when an exported function is missing
type FunctionNotFoundError struct {
	ModuleName   string
	FunctionName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'",
		e.FunctionName, e.ModuleName)
}

// MemoryAccessError occurs when memory operations fail
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("memory access out of range (op=%s, addr=%d, len=%d)",
		e.Operation, e.Address, e.Length)
}

// HostFunctionError occurs when host function registration fails
type HostFunctionError struct {
	FunctionName string
	Err          error
}

func (e *HostFunctionError) Error() string {
	return fmt.Sprintf("host function '%s' failed: %v", e.FunctionName, e.Err)
}

func (e *HostFunctionError) Unwrap() error {
	return e.Err
}

// TimeoutError occurs when a call exhausts its execution budget without the
// guest signalling a panic. The instance is terminated.
type TimeoutError struct {
	InstanceID string
	Function   string
	Duration   time.Duration
	Err        error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Wasm execution of '%s' timed out after %v (instance: %s)",
		e.Function, e.Duration, e.InstanceID)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// PanicError occurs when the guest signalled a panic during a call and then
// stopped making progress. Message is the text of the last signal.
type PanicError struct {
	InstanceID string
	Function   string
	Message    string
	Signals    []Signal
	Err        error
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("guest panicked in '%s' (instance: %s): %s",
		e.Function, e.InstanceID, e.Message)
}

func (e *PanicError) Unwrap() error {
	return e.Err
}

// TrapError occurs when a call aborts for any reason other than its budget:
// an unreachable instruction, an out-of-bounds access, a guest exit.
type TrapError struct {
	InstanceID string
	Function   string
	Err        error
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("guest trapped in '%s' (instance: %s): %v",
		e.Function, e.InstanceID, e.Err)
}

func (e *TrapError) Unwrap() error {
	return e.Err
}

// ExitCode returns the guest exit code when the trap was a WASI exit.
func (e *TrapError) ExitCode() (uint32, bool) {
	var exitErr *sys.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

// InstanceClosedError occurs when calling into an instance that is no
// longer running.
type InstanceClosedError struct {
	InstanceID string
	State      State
}

func (e *InstanceClosedError) Error() string {
	return fmt.Sprintf("instance %s is %s", e.InstanceID, e.State)
}

// BufferNotExportedError occurs when a module exports BUFFER in neither the
// global nor the function form.
type BufferNotExportedError struct {
	InstanceID string
}

func (e *BufferNotExportedError) Error() string {
	return fmt.Sprintf("instance %s does not export BUFFER", e.InstanceID)
}

// TooManyInstancesError occurs when the runtime's instance limit is reached.
type TooManyInstancesError struct {
	Limit int
}

func (e *TooManyInstancesError) Error() string {
	return fmt.Sprintf("instance limit of %d reached", e.Limit)
}
