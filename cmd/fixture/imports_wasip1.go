package main

// sig hands the host a FatPtr to a UTF-8 message. The range is only valid for
// the duration of the call.
//
//go:wasmimport env sig
func sig(ptr uint64)
