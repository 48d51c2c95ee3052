package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
	"github.com/woxQAQ/wasm-guest-fixture/internal/wasm"
	"github.com/woxQAQ/wasm-guest-fixture/pkg/report"
)

// Spawner creates a fresh instance of the fixture under test. A zero budget
// keeps the fixture's default.
type Spawner func(ctx context.Context, budget time.Duration) (*wasm.Instance, error)

// SuiteConfig tunes the budgets of the checks that end their instance.
type SuiteConfig struct {
	// LoopBudget bounds endless_loop.
	LoopBudget time.Duration
	// PanicBudget bounds a call that panics and then parks. It must leave the
	// guest time to format and signal its message.
	PanicBudget time.Duration
}

// DefaultSuiteConfig returns the budgets the checks are specified with.
func DefaultSuiteConfig() SuiteConfig {
	return SuiteConfig{
		LoopBudget:  10 * time.Millisecond,
		PanicBudget: 250 * time.Millisecond,
	}
}

type check struct {
	name string
	// needs lists optional exports; the check is skipped without them.
	needs []string
	// fresh checks kill their instance and get one of their own.
	fresh  bool
	budget func(SuiteConfig) time.Duration
	run    func(ctx context.Context, inst *wasm.Instance) error
}

// Suite runs the fixture's properties and scenarios.
type Suite struct {
	fixture string
	spawn   Spawner
	config  SuiteConfig
	logger  *zap.Logger
}

// NewSuite creates a suite for the named fixture.
func NewSuite(fixture string, spawn Spawner, config SuiteConfig, logger *zap.Logger) *Suite {
	return &Suite{
		fixture: fixture,
		spawn:   spawn,
		config:  config,
		logger:  logger.With(zap.String("component", "harness-suite"), zap.String("fixture", fixture)),
	}
}

// Names lists the checks in the order Run executes them.
func Names() []string {
	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.name)
	}
	return names
}

// Run executes every check and returns the summary. Checks on the shared
// instance run first; if one of them ends it, the next check gets a new one.
// The error is non-nil only when no instance can be created at all.
func (s *Suite) Run(ctx context.Context) (*report.Summary, error) {
	summary := &report.Summary{Fixture: s.fixture}

	var shared *wasm.Instance
	defer func() {
		if shared != nil {
			_ = shared.Close(context.Background())
		}
	}()

	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		inst := shared
		if c.fresh || inst == nil || inst.State() != wasm.StateRunning {
			var budget time.Duration
			if c.budget != nil {
				budget = c.budget(s.config)
			}
			fresh, err := s.spawn(ctx, budget)
			if err != nil {
				return summary, fmt.Errorf("instantiate for %s: %w", c.name, err)
			}
			inst = fresh
			if !c.fresh {
				if shared != nil {
					_ = shared.Close(ctx)
				}
				shared = inst
			}
		}

		summary.Add(s.runCheck(ctx, c, inst))

		if c.fresh {
			_ = inst.Close(ctx)
		}
	}

	s.logger.Info("Suite finished",
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (s *Suite) runCheck(ctx context.Context, c check, inst *wasm.Instance) report.Result {
	res := report.Result{Name: c.name}

	for _, export := range c.needs {
		if !inst.HasExport(export) {
			res.Status = report.StatusSkipped
			res.Detail = fmt.Sprintf("fixture does not export %s", export)
			s.logger.Debug("Check skipped", zap.String("check", c.name), zap.String("missing", export))
			return res
		}
	}

	before := len(inst.Signals())
	start := time.Now()
	err := c.run(ctx, inst)
	res.Duration = time.Since(start)

	for _, sig := range inst.Signals()[before:] {
		res.Signals = append(res.Signals, sig.Text)
	}

	if err != nil {
		res.Status = report.StatusFailed
		res.Detail = err.Error()
		s.logger.Warn("Check failed", zap.String("check", c.name), zap.Error(err))
		return res
	}
	res.Status = report.StatusPassed
	s.logger.Debug("Check passed", zap.String("check", c.name), zap.Duration("duration", res.Duration))
	return res
}

var checks = []check{
	{name: "P1 fibonacci matches the reference sequence", run: checkFibonacciSequence},
	{name: "P2 set_byte then byte round-trips", run: checkByteRoundTrip},
	{name: "P3 malloc/free pairs keep capacity reusable", run: checkAllocatorReuse},
	{name: "P4 to_lower_case is idempotent", run: checkLowerIdempotent},
	{name: "P5 to_lower_case only touches A-Z before the first NUL", run: checkLowerPreserves},
	{name: "P6 FatPtr round-trips", run: checkFatPtr},
	{
		name:   "P7 a panic sends exactly one well-formed sig",
		needs:  []string{abi.ExportBufferByte},
		fresh:  true,
		budget: func(c SuiteConfig) time.Duration { return c.PanicBudget },
		run:    checkSinglePanicSignal,
	},
	{name: "S1 mixed text lower-cases up to the NUL", run: checkLowerMixed},
	{name: "S2 empty text is unchanged", run: checkLowerEmpty},
	{name: "S3 a full buffer of A lower-cases entirely", run: checkLowerFullBuffer},
	{name: "S4 fibonacci(15) is 987", run: checkFibonacci15},
	{
		name:   "S5 endless_loop is stopped by its budget",
		fresh:  true,
		budget: func(c SuiteConfig) time.Duration { return c.LoopBudget },
		run:    checkEndlessLoop,
	},
	{
		name:   "S6 a forced panic signals its location and stops",
		needs:  []string{abi.ExportBufferByte},
		fresh:  true,
		budget: func(c SuiteConfig) time.Duration { return c.PanicBudget },
		run:    checkPanicMessage,
	},
}

// ReferenceFibonacci is the sequence the guest must reproduce, starting
// fib(0) = fib(1) = 1.
func ReferenceFibonacci(n uint32) uint32 {
	a, b := uint32(1), uint32(1)
	for ; n > 0; n-- {
		a, b = b, a+b
	}
	return a
}

func checkFibonacciSequence(ctx context.Context, inst *wasm.Instance) error {
	for n := uint32(0); n <= 30; n++ {
		got, err := inst.Fibonacci(ctx, n)
		if err != nil {
			return err
		}
		if want := ReferenceFibonacci(n); got != want {
			return fmt.Errorf("fibonacci(%d) = %d, want %d", n, got, want)
		}
	}
	return nil
}

func checkFibonacci15(ctx context.Context, inst *wasm.Instance) error {
	got, err := inst.Fibonacci(ctx, 15)
	if err != nil {
		return err
	}
	if got != 987 {
		return fmt.Errorf("fibonacci(15) = %d, want 987", got)
	}
	return nil
}

func checkByteRoundTrip(ctx context.Context, inst *wasm.Instance) error {
	const size = 256
	ptr, err := inst.Malloc(ctx, size)
	if err != nil {
		return err
	}
	for off := uint32(0); off < size; off++ {
		if err := inst.SetByte(ctx, ptr+off, byte(off^0xa5)); err != nil {
			return err
		}
	}
	for off := uint32(0); off < size; off++ {
		got, err := inst.Byte(ctx, ptr+off)
		if err != nil {
			return err
		}
		if want := byte(off ^ 0xa5); got != want {
			return fmt.Errorf("byte(%#x) = %#x, want %#x", ptr+off, got, want)
		}
	}
	return inst.Free(ctx, ptr, size)
}

// checkAllocatorReuse churns through more memory than an allocator that
// never reuses freed capacity could hold.
func checkAllocatorReuse(ctx context.Context, inst *wasm.Instance) error {
	const (
		size   = 64 << 10
		rounds = 2048
	)
	for round := 0; round < rounds; round++ {
		ptr, err := inst.Malloc(ctx, size)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		if ptr == 0 {
			return fmt.Errorf("round %d: malloc returned 0", round)
		}
		if err := inst.Free(ctx, ptr, size); err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
	}

	// Interleaved lifetimes, released in reverse.
	var ptrs [8]uint32
	for i := range ptrs {
		ptr, err := inst.Malloc(ctx, uint32(i+1)*32)
		if err != nil {
			return err
		}
		ptrs[i] = ptr
	}
	for i := len(ptrs) - 1; i >= 0; i-- {
		if err := inst.Free(ctx, ptrs[i], uint32(i+1)*32); err != nil {
			return err
		}
	}
	return nil
}

// lowerASCII is the fold to_lower_case applies to one byte.
func lowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

// fillPattern is the non-zero background written across BUFFER before each
// fold, so bytes to_lower_case must leave alone are distinguishable from a
// zeroed tail.
func fillPattern(i int) byte { return byte(i%251 + 1) }

// foldBuffer fills BUFFER with fillPattern, writes data at its start and
// calls to_lower_case. It returns the whole buffer before and after the call.
func foldBuffer(ctx context.Context, inst *wasm.Instance, data []byte) (before, after []byte, err error) {
	buf, err := inst.Buffer()
	if err != nil {
		return nil, nil, err
	}
	before = make([]byte, abi.BufferSize)
	for i := range before {
		before[i] = fillPattern(i)
	}
	copy(before, data)
	if err := buf.Write(0, before); err != nil {
		return nil, nil, err
	}
	if err := inst.ToLowerCase(ctx); err != nil {
		return nil, nil, err
	}
	if after, err = buf.Bytes(); err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// foldedCString is what to_lower_case leaves in a buffer holding b: A-Z
// folded up to the first NUL and every other byte untouched.
func foldedCString(b []byte) []byte {
	want := bytes.Clone(b)
	for i, c := range want {
		if c == 0 {
			break
		}
		want[i] = lowerASCII(c)
	}
	return want
}

func expectBytes(got, want []byte) error {
	if bytes.Equal(got, want) {
		return nil
	}
	for i := range want {
		if i >= len(got) {
			break
		}
		if got[i] != want[i] {
			return fmt.Errorf("buffer differs at offset %d: got %#02x, want %#02x", i, got[i], want[i])
		}
	}
	return fmt.Errorf("buffer length %d, want %d", len(got), len(want))
}

func checkLowerIdempotent(ctx context.Context, inst *wasm.Instance) error {
	_, once, err := foldBuffer(ctx, inst, []byte("MiXeD Case 123 ÄÖÜ \x00TAIL"))
	if err != nil {
		return err
	}
	if err := inst.ToLowerCase(ctx); err != nil {
		return err
	}
	buf, err := inst.Buffer()
	if err != nil {
		return err
	}
	twice, err := buf.Bytes()
	if err != nil {
		return err
	}
	return expectBytes(twice, once)
}

func checkLowerPreserves(ctx context.Context, inst *wasm.Instance) error {
	input := make([]byte, 0, 300)
	for b := 1; b <= 0xff; b++ {
		input = append(input, byte(b))
	}
	input = append(input, 0)
	input = append(input, "AFTER NUL"...)

	before, after, err := foldBuffer(ctx, inst, input)
	if err != nil {
		return err
	}
	return expectBytes(after, foldedCString(before))
}

func checkLowerMixed(ctx context.Context, inst *wasm.Instance) error {
	input := []byte("HELLO, World!\x00KEEP")
	before, after, err := foldBuffer(ctx, inst, input)
	if err != nil {
		return err
	}
	if err := expectBytes(after[:len(input)], []byte("hello, world!\x00KEEP")); err != nil {
		return err
	}
	return expectBytes(after, foldedCString(before))
}

func checkLowerEmpty(ctx context.Context, inst *wasm.Instance) error {
	before, after, err := foldBuffer(ctx, inst, []byte("\x00ABC"))
	if err != nil {
		return err
	}
	return expectBytes(after, before)
}

func checkLowerFullBuffer(ctx context.Context, inst *wasm.Instance) error {
	_, after, err := foldBuffer(ctx, inst, bytes.Repeat([]byte{'A'}, abi.BufferSize))
	if err != nil {
		return err
	}
	return expectBytes(after, bytes.Repeat([]byte{'a'}, abi.BufferSize))
}

// checkFatPtr exercises the codec on its edges and a fixed pseudo-random
// sample of the u32 x u32 space.
func checkFatPtr(context.Context, *wasm.Instance) error {
	edges := []uint32{0, 1, 0x7fff_ffff, 0x8000_0000, 0xffff_fffe, 0xffff_ffff}
	try := func(off, n uint32) error {
		p := abi.NewFatPtr(off, n)
		if gotOff, gotLen := p.Unpack(); gotOff != off || gotLen != n {
			return fmt.Errorf("FatPtr(%#x, %d) unpacked to (%#x, %d)", off, n, gotOff, gotLen)
		}
		if uint64(p) != uint64(off)<<32|uint64(n) {
			return fmt.Errorf("FatPtr(%#x, %d) = %#x", off, n, uint64(p))
		}
		return nil
	}
	for _, off := range edges {
		for _, n := range edges {
			if err := try(off, n); err != nil {
				return err
			}
		}
	}
	rng := rand.New(rand.NewPCG(0x5eed, 0xfa7))
	for range 100_000 {
		if err := try(rng.Uint32(), rng.Uint32()); err != nil {
			return err
		}
	}
	return nil
}

func checkEndlessLoop(ctx context.Context, inst *wasm.Instance) error {
	err := inst.EndlessLoop(ctx)
	var timeout *wasm.TimeoutError
	if !errors.As(err, &timeout) {
		return fmt.Errorf("endless_loop returned %v, want a timeout", err)
	}
	if n := len(inst.Signals()); n != 0 {
		return fmt.Errorf("endless_loop sent %d signals", n)
	}
	if s := inst.State(); s != wasm.StateTerminated {
		return fmt.Errorf("instance state %s after timeout, want terminated", s)
	}
	return nil
}

// forcePanic reads one byte past BUFFER through the bounds-checked export.
func forcePanic(ctx context.Context, inst *wasm.Instance) (*wasm.PanicError, error) {
	_, err := inst.BufferByte(ctx, abi.BufferSize+4464)
	var panicErr *wasm.PanicError
	if !errors.As(err, &panicErr) {
		return nil, fmt.Errorf("buffer_byte out of range returned %v, want a panic", err)
	}
	return panicErr, nil
}

// expectStopped checks that a panicked instance accepts no further calls.
func expectStopped(ctx context.Context, inst *wasm.Instance) error {
	if s := inst.State(); s != wasm.StatePanicked {
		return fmt.Errorf("instance state %s after panic, want panicked", s)
	}
	_, err := inst.Fibonacci(ctx, 1)
	var closed *wasm.InstanceClosedError
	if !errors.As(err, &closed) {
		return fmt.Errorf("call after panic returned %v, want instance closed", err)
	}
	return nil
}

func checkSinglePanicSignal(ctx context.Context, inst *wasm.Instance) error {
	panicErr, err := forcePanic(ctx, inst)
	if err != nil {
		return err
	}
	if n := len(panicErr.Signals); n != 1 {
		return fmt.Errorf("panic sent %d signals, want 1", n)
	}
	sig := panicErr.Signals[0]
	if sig.Valid != utf8.Valid(sig.Raw) {
		return fmt.Errorf("signal validity %v disagrees with its bytes", sig.Valid)
	}
	if !sig.Valid && sig.Text != wasm.FallbackSignalText {
		return fmt.Errorf("invalid signal text %q, want the fallback", sig.Text)
	}
	if len(sig.Raw) > abi.PanicMessageSize {
		return fmt.Errorf("signal of %d bytes exceeds the %d byte panic scratch", len(sig.Raw), abi.PanicMessageSize)
	}
	return expectStopped(ctx, inst)
}

// panicLocation matches the "panicked at <file>:<line>" header.
var panicLocation = regexp.MustCompile(`panicked at [^\s:]+:\d+`)

func checkPanicMessage(ctx context.Context, inst *wasm.Instance) error {
	panicErr, err := forcePanic(ctx, inst)
	if err != nil {
		return err
	}
	if !panicLocation.MatchString(panicErr.Message) {
		return fmt.Errorf("panic message %q has no source location", panicErr.Message)
	}
	return expectStopped(ctx, inst)
}
