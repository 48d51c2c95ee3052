package wasm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctionsImpl
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctionsImpl, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, one is generated).
	InstanceID string

	// Execution budget per call. Zero uses the runtime's CallBudget.
	Budget time.Duration
}

// State is the lifecycle state of an instance. Every transition out of
// StateRunning is final.
type State int32

const (
	StateRunning State = iota
	// StatePanicked: the guest signalled a panic and was stopped by its budget.
	StatePanicked
	// StateTerminated: the guest trapped or exhausted its budget.
	StateTerminated
	// StateClosed: the host closed the instance.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePanicked:
		return "panicked"
	case StateTerminated:
		return "terminated"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Instance is one instantiated fixture. Calls are serialized: at most one is
// in flight at a time, and each runs under the instance's budget.
type Instance struct {
	// wazero module instance.
	module api.Module

	// Instance metadata.
	ID        string
	Name      string
	CreatedAt int64

	// Exported functions (cached for performance).
	exports map[string]api.Function

	budget     time.Duration
	bufferAddr uint32
	hasBuffer  bool

	inbox   *inbox
	host    *HostFunctionsImpl
	runtime *Runtime
	output  *zapio.Writer
	logger  *zap.Logger

	mu        sync.Mutex
	taskMu    sync.Mutex
	state     atomic.Int32
	closeOnce sync.Once
}

// Allocation is a range obtained from the guest's malloc. Ptr and Cap
// together are what free needs back.
type Allocation struct {
	Ptr uint32
	Cap uint32
}

// Step is one unit of work in a Task.
type Step func(ctx context.Context, inst *Instance) error

var instanceSeq atomic.Uint64

// Instantiate creates a new instance from a compiled module. The env host
// module is instantiated on first use, _initialize runs when exported, and
// BUFFER is resolved in whichever form the module exports it.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.InstanceCount() >= limit {
		return nil, &TooManyInstancesError{Limit: limit}
	}

	if err := m.runtime.ensureHostModule(ctx, m.hostFuncs); err != nil {
		return nil, fmt.Errorf("failed to export host functions: %w", err)
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateInstanceID()
	}
	budget := config.Budget
	if budget == 0 {
		budget = m.runtime.config.CallBudget
	}

	logger := m.logger.With(zap.String("instance_id", instanceID))
	logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.Duration("budget", budget),
	)

	output := &zapio.Writer{Log: logger.With(zap.String("stream", "guest")), Level: zap.InfoLevel}
	box := m.hostFuncs.register(instanceID)

	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions(abi.ExportInitialize).
		WithStdout(output).
		WithStderr(output).
		WithSysWalltime().
		WithSysNanotime()

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		m.hostFuncs.unregister(instanceID)
		_ = output.Close()
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	instance := &Instance{
		module:    module,
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		exports:   cacheExportedFunctions(module),
		budget:    budget,
		inbox:     box,
		host:      m.hostFuncs,
		runtime:   m.runtime,
		output:    output,
		logger:    logger,
	}

	if err := instance.resolveBuffer(ctx); err != nil {
		_ = instance.Close(ctx)
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	m.runtime.StoreInstance(instanceID, instance)

	logger.Info("Module instantiated successfully",
		zap.Int("exported_functions", len(instance.exports)),
		zap.Bool("buffer", instance.hasBuffer),
		zap.Uint32("buffer_addr", instance.bufferAddr),
	)

	return instance, nil
}

// resolveBuffer finds BUFFER as an exported i32 global or as a nullary
// function returning the address.
func (i *Instance) resolveBuffer(ctx context.Context) error {
	var addr uint32
	if g := i.module.ExportedGlobal(abi.ExportBuffer); g != nil {
		addr = api.DecodeU32(g.Get())
	} else if fn := i.module.ExportedFunction(abi.ExportBuffer); fn != nil {
		res, err := fn.Call(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", abi.ExportBuffer, err)
		}
		if len(res) != 1 {
			return fmt.Errorf("%s returned %d results, want 1", abi.ExportBuffer, len(res))
		}
		addr = api.DecodeU32(res[0])
	} else {
		return nil
	}

	if mem := i.module.Memory(); mem == nil || uint64(addr)+abi.BufferSize > uint64(mem.Size()) {
		return &MemoryAccessError{Operation: "resolve buffer", Address: addr, Length: abi.BufferSize}
	}
	i.bufferAddr = addr
	i.hasBuffer = true
	return nil
}

// State returns the instance's lifecycle state.
func (i *Instance) State() State {
	return State(i.state.Load())
}

// Budget returns the per-call execution budget.
func (i *Instance) Budget() time.Duration {
	return i.budget
}

// Signals returns every signal the instance has sent so far.
func (i *Instance) Signals() []Signal {
	return i.inbox.since(0)
}

// HasExport reports whether the instance exports a function called name.
func (i *Instance) HasExport(name string) bool {
	_, ok := i.exports[name]
	return ok
}

// Exports returns the cached export names, sorted.
func (i *Instance) Exports() []string {
	names := make([]string, 0, len(i.exports))
	for name := range i.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes an exported function under the instance budget.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if s := i.State(); s != StateRunning {
		return nil, &InstanceClosedError{InstanceID: i.ID, State: s}
	}

	fn, ok := i.exports[name]
	if !ok {
		if fn = i.module.ExportedFunction(name); fn == nil {
			return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
		}
	}

	callCtx := ctx
	if i.budget > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.budget)
		defer cancel()
	}

	before := i.inbox.len()
	start := time.Now()
	results, err := fn.Call(callCtx, params...)
	if err != nil {
		return nil, i.fail(callCtx, name, before, time.Since(start), err)
	}
	return results, nil
}

// fail classifies a failed call and retires the instance.
func (i *Instance) fail(callCtx context.Context, name string, before int, elapsed time.Duration, err error) error {
	signals := i.inbox.since(before)

	var out error
	switch {
	case callCtx.Err() != nil && len(signals) > 0:
		i.state.Store(int32(StatePanicked))
		out = &PanicError{
			InstanceID: i.ID,
			Function:   name,
			Message:    signals[len(signals)-1].Text,
			Signals:    signals,
			Err:        err,
		}
	case callCtx.Err() != nil:
		i.state.Store(int32(StateTerminated))
		out = &TimeoutError{InstanceID: i.ID, Function: name, Duration: elapsed, Err: err}
	default:
		i.state.Store(int32(StateTerminated))
		out = &TrapError{InstanceID: i.ID, Function: name, Err: err}
	}

	// wazero leaves a module usable after a trap. A failed call ends the
	// instance either way.
	if cerr := i.module.Close(context.Background()); cerr != nil {
		i.logger.Debug("Module close after failed call", zap.Error(cerr))
	}

	i.logger.Warn("Wasm call failed",
		zap.String("function", name),
		zap.Stringer("state", i.State()),
		zap.Int("signals", len(signals)),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
	return out
}

// Malloc calls the guest's malloc.
func (i *Instance) Malloc(ctx context.Context, capacity uint32) (uint32, error) {
	res, err := i.Call(ctx, abi.ExportMalloc, api.EncodeU32(capacity))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

// Free calls the guest's free.
func (i *Instance) Free(ctx context.Context, ptr, capacity uint32) error {
	_, err := i.Call(ctx, abi.ExportFree, api.EncodeU32(ptr), api.EncodeU32(capacity))
	return err
}

// Byte loads the byte at ptr through the guest.
func (i *Instance) Byte(ctx context.Context, ptr uint32) (byte, error) {
	res, err := i.Call(ctx, abi.ExportByte, api.EncodeU32(ptr))
	if err != nil {
		return 0, err
	}
	return byte(api.DecodeU32(res[0])), nil
}

// SetByte stores v at ptr through the guest.
func (i *Instance) SetByte(ctx context.Context, ptr uint32, v byte) error {
	_, err := i.Call(ctx, abi.ExportSetByte, api.EncodeU32(ptr), api.EncodeU32(uint32(v)))
	return err
}

// Fibonacci calls the guest's recursive fibonacci.
func (i *Instance) Fibonacci(ctx context.Context, n uint32) (uint32, error) {
	res, err := i.Call(ctx, abi.ExportFibonacci, api.EncodeU32(n))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

// EndlessLoop calls endless_loop. It only ever returns an error.
func (i *Instance) EndlessLoop(ctx context.Context) error {
	_, err := i.Call(ctx, abi.ExportEndlessLoop)
	return err
}

// ToLowerCase folds the NUL-terminated text in BUFFER to lower case.
func (i *Instance) ToLowerCase(ctx context.Context) error {
	_, err := i.Call(ctx, abi.ExportToLowerCase)
	return err
}

// BufferByte calls the bounds-checked buffer_byte variant export.
func (i *Instance) BufferByte(ctx context.Context, offset uint32) (byte, error) {
	res, err := i.Call(ctx, abi.ExportBufferByte, api.EncodeU32(offset))
	if err != nil {
		return 0, err
	}
	return byte(api.DecodeU32(res[0])), nil
}

// Abort calls the trapping abort variant export.
func (i *Instance) Abort(ctx context.Context) error {
	_, err := i.Call(ctx, abi.ExportAbort)
	return err
}

// Memory returns a helper over the instance's linear memory. It must not be
// used while a call is in flight.
func (i *Instance) Memory() (*Memory, error) {
	if i.module.IsClosed() {
		return nil, &InstanceClosedError{InstanceID: i.ID, State: i.State()}
	}
	return NewMemory(i.module), nil
}

// withMemory runs fn against linear memory with no call in flight.
func (i *Instance) withMemory(fn func(*Memory) error) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	mem, err := i.Memory()
	if err != nil {
		return err
	}
	return fn(mem)
}

// Buffer returns the shared BUFFER region.
func (i *Instance) Buffer() (*SharedBuffer, error) {
	if !i.hasBuffer {
		return nil, &BufferNotExportedError{InstanceID: i.ID}
	}
	return &SharedBuffer{inst: i, addr: i.bufferAddr}, nil
}

// WriteBytes copies data into a fresh guest allocation.
func (i *Instance) WriteBytes(ctx context.Context, data []byte) (Allocation, error) {
	a := Allocation{Cap: uint32(len(data))}
	ptr, err := i.Malloc(ctx, a.Cap)
	if err != nil {
		return Allocation{}, err
	}
	a.Ptr = ptr

	if err := i.withMemory(func(m *Memory) error { return m.WriteBytes(ptr, data) }); err != nil {
		if i.State() == StateRunning {
			_ = i.Release(ctx, a)
		}
		return Allocation{}, err
	}
	return a, nil
}

// ReadAllocation copies an allocation's bytes out of guest memory.
func (i *Instance) ReadAllocation(a Allocation) ([]byte, error) {
	var out []byte
	err := i.withMemory(func(m *Memory) error {
		b, ok := m.ReadBytes(a.Ptr, a.Cap)
		if !ok {
			return &MemoryAccessError{Operation: "read", Address: a.Ptr, Length: a.Cap}
		}
		out = b
		return nil
	})
	return out, err
}

// Release frees an allocation made by WriteBytes or Malloc.
func (i *Instance) Release(ctx context.Context, a Allocation) error {
	return i.Free(ctx, a.Ptr, a.Cap)
}

// Task runs steps in order against the instance and stops at the first
// error. Tasks on the same instance do not interleave with each other.
func (i *Instance) Task(ctx context.Context, steps ...Step) error {
	i.taskMu.Lock()
	defer i.taskMu.Unlock()

	for n, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("task step %d: %w", n, err)
		}
		if err := step(ctx, i); err != nil {
			return fmt.Errorf("task step %d: %w", n, err)
		}
	}
	return nil
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	var err error
	i.closeOnce.Do(func() {
		// A panicked or terminated instance keeps the state it ended in.
		i.state.CompareAndSwap(int32(StateRunning), int32(StateClosed))
		err = i.module.Close(ctx)
		i.host.unregister(i.ID)
		i.runtime.DeleteInstance(i.ID)
		_ = i.output.Close()
		i.logger.Debug("Instance closed")
	})
	return err
}

// cacheExportedFunctions caches references to the fixture ABI functions.
func cacheExportedFunctions(module api.Module) map[string]api.Function {
	exports := make(map[string]api.Function)
	for _, name := range abi.FunctionExports {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}
	return exports
}

func generateInstanceID() string {
	return fmt.Sprintf("inst-%d-%d", time.Now().UnixNano(), instanceSeq.Add(1))
}
