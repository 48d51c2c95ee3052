package wasm

// Names of the symbols the fixture exports. Hosts look these up by name; the
// set is fixed for the life of the ABI.
const (
	ExportMemory      = "memory"
	ExportBuffer      = "BUFFER"
	ExportMalloc      = "malloc"
	ExportFree        = "free"
	ExportByte        = "byte"
	ExportSetByte     = "set_byte"
	ExportFibonacci   = "fibonacci"
	ExportEndlessLoop = "endless_loop"
	ExportToLowerCase = "to_lower_case"

	// ExportBufferByte is only present in variant builds. It is a
	// bounds-checked read of BUFFER used to drive the panic path.
	ExportBufferByte = "buffer_byte"

	// ExportAbort is only present in variant builds. It traps unconditionally.
	ExportAbort = "abort"

	// ExportInitialize is run once at instantiation when present (reactor
	// modules built by the Go toolchain need it).
	ExportInitialize = "_initialize"
)

// The single host function the fixture imports.
const (
	ImportModule = "env"
	ImportSig    = "sig"
)

const (
	// BufferSize is the size of the shared BUFFER region in bytes.
	BufferSize = 64 * 1024

	// PanicMessageSize is the capacity of the scratch the panic handler
	// formats into. Longer messages are truncated.
	PanicMessageSize = 1024

	// PageSize is the WebAssembly linear memory page size.
	PageSize = 64 * 1024
)

// RequiredExports lists the exports every fixture build provides.
var RequiredExports = []string{
	ExportMalloc,
	ExportFree,
	ExportByte,
	ExportSetByte,
	ExportFibonacci,
	ExportEndlessLoop,
	ExportToLowerCase,
}

// FunctionExports lists every callable export of the ABI, variants included.
var FunctionExports = append(RequiredExports[:len(RequiredExports):len(RequiredExports)],
	ExportBufferByte,
	ExportAbort,
)

// KnownExport reports whether name is part of the fixture ABI.
func KnownExport(name string) bool {
	switch name {
	case ExportMemory, ExportBuffer, ExportMalloc, ExportFree, ExportByte,
		ExportSetByte, ExportFibonacci, ExportEndlessLoop, ExportToLowerCase,
		ExportBufferByte, ExportAbort:
		return true
	}
	return false
}
