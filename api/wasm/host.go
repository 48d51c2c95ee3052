//go:build !wasm

package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// HostFunctions defines the functions a host provides to the fixture under
// the "env" import module.
type HostFunctions interface {
	// Sig receives an out-of-band UTF-8 message from the guest. The FatPtr
	// names a range of the caller's memory that is only valid until Sig
	// returns, so implementations must copy it before returning.
	Sig(ctx context.Context, mod api.Module, ptr uint64)
}
