// Package guest holds the fixture's guest-side logic in plain Go: the linear
// memory arena behind malloc/free, the compute routines, and the bounded panic
// formatter. cmd/fixture wires these to the WebAssembly exports; keeping them
// free of wasm-only code lets the same code run in host tests.
package guest
