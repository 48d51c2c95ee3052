package wasm

import (
	"bytes"
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	abi "github.com/woxQAQ/wasm-guest-fixture/api/wasm"
)

// FallbackSignalText replaces signal payloads that are not valid UTF-8.
const FallbackSignalText = "<invalid UTF-8 signal>"

var _ abi.HostFunctions = (*HostFunctionsImpl)(nil)

// HostFunctionsImpl implements the env host module and routes each signal to
// the inbox of the instance that sent it.
type HostFunctionsImpl struct {
	logger *zap.Logger

	// key: instance ID (the guest module name) -> *inbox
	inboxes sync.Map

	now func() time.Time
}

// NewHostFunctions creates a new host functions implementation.
func NewHostFunctions(logger *zap.Logger) *HostFunctionsImpl {
	return &HostFunctionsImpl{
		logger: logger.With(zap.String("component", "wasm-host")),
		now:    time.Now,
	}
}

// Sig is env.sig. The FatPtr range is copied out of guest memory before
// returning; nothing is retained that points into it.
func (h *HostFunctionsImpl) Sig(ctx context.Context, mod api.Module, ptr uint64) {
	fp := abi.FatPtr(ptr)
	offset, length := fp.Unpack()

	raw, ok := mod.Memory().Read(offset, length)
	if !ok {
		h.logger.Error("Failed to read signal from Wasm memory",
			zap.String("instance_id", mod.Name()),
			zap.Stringer("ptr", fp),
		)
		return
	}
	raw = bytes.Clone(raw)

	s := Signal{
		InstanceID: mod.Name(),
		Raw:        raw,
		Ptr:        fp,
		Valid:      utf8.Valid(raw),
		At:         h.now(),
	}
	if s.Valid {
		s.Text = string(raw)
	} else {
		s.Text = FallbackSignalText
	}

	h.logger.Info("Guest signalled",
		zap.String("instance_id", s.InstanceID),
		zap.String("text", s.Text),
		zap.Bool("valid_utf8", s.Valid),
	)

	if box, ok := h.inboxes.Load(s.InstanceID); ok {
		box.(*inbox).push(s)
		return
	}
	h.logger.Warn("Dropping signal from untracked instance",
		zap.String("instance_id", s.InstanceID),
	)
}

// register starts collecting signals for an instance.
func (h *HostFunctionsImpl) register(instanceID string) *inbox {
	box := &inbox{}
	h.inboxes.Store(instanceID, box)
	return box
}

func (h *HostFunctionsImpl) unregister(instanceID string) {
	h.inboxes.Delete(instanceID)
}

// export registers the host functions on the env module builder.
func (h *HostFunctionsImpl) export(builder wazero.HostModuleBuilder) {
	builder.NewFunctionBuilder().
		WithFunc(h.Sig).
		WithParameterNames("fatptr").
		Export(abi.ImportSig)
}
