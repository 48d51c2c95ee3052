// Command fixture is the WebAssembly guest fixture. It is built as a WASI
// reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o testdata/fixture.wasm ./cmd/fixture
//
// The exports live in exports_wasip1.go. On other platforms the command
// builds to an empty program.
package main

func main() {}
