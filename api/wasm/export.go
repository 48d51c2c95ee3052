//go:build wasm

package wasm

// This file documents the exports a fixture build provides. The Go guest in
// cmd/fixture implements them with //go:wasmexport.
//
// uint32 is used for every pointer and capacity because WebAssembly linear
// memory is 32-bit addressed. Byte-sized parameters and results travel as i32.
//
// //go:wasmexport malloc
// func malloc(cap uint32) uint32
//
// //go:wasmexport free
// func free(ptr, cap uint32)
//
// //go:wasmexport byte
// func byte(ptr uint32) uint32
//
// //go:wasmexport set_byte
// func setByte(ptr, value uint32)
//
// //go:wasmexport fibonacci
// func fibonacci(n uint32) uint32
//
// //go:wasmexport endless_loop
// func endlessLoop()
//
// //go:wasmexport to_lower_case
// func toLowerCase()
//
// //go:wasmexport BUFFER
// func buffer() uint32
//
// The single import:
//
// //go:wasmimport env sig
// func sig(ptr uint64)
