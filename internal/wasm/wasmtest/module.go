package wasmtest

import "github.com/tetratelabs/wazero/api"

// Builder assembles a core WebAssembly module with function imports, one
// memory, i32 globals, exports and active data segments. Imports must be
// added before functions so function indices are stable.
type Builder struct {
	types   [][]byte
	imports [][]byte
	funcs   []function
	memory  *uint32
	globals [][]byte
	exports [][]byte
	data    [][]byte
}

type function struct {
	typ    uint32
	locals []api.ValueType
	body   []byte
}

// Type returns the index of the function type, adding it when new.
func (b *Builder) Type(params, results []api.ValueType) uint32 {
	enc := []byte{0x60}
	enc = append(enc, encodeULEB128(uint32(len(params)))...)
	for _, p := range params {
		enc = append(enc, encodeValType(p))
	}
	enc = append(enc, encodeULEB128(uint32(len(results)))...)
	for _, r := range results {
		enc = append(enc, encodeValType(r))
	}

	for i, t := range b.types {
		if string(t) == string(enc) {
			return uint32(i)
		}
	}
	b.types = append(b.types, enc)
	return uint32(len(b.types) - 1)
}

// ImportFunc imports module.name with the given type and returns its
// function index.
func (b *Builder) ImportFunc(module, name string, typ uint32) uint32 {
	if len(b.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	enc := append(encodeName(module), encodeName(name)...)
	enc = append(enc, 0x00)
	enc = append(enc, encodeULEB128(typ)...)
	b.imports = append(b.imports, enc)
	return uint32(len(b.imports) - 1)
}

// NextFunc returns the index the next Func call will be assigned, for
// bodies that call themselves.
func (b *Builder) NextFunc() uint32 {
	return uint32(len(b.imports) + len(b.funcs))
}

// Func adds a function. body must not include the final end opcode.
func (b *Builder) Func(typ uint32, locals []api.ValueType, body *Asm) uint32 {
	idx := b.NextFunc()
	b.funcs = append(b.funcs, function{typ: typ, locals: locals, body: body.Bytes()})
	return idx
}

// Memory declares the module's memory with a minimum size in pages.
func (b *Builder) Memory(minPages uint32) {
	b.memory = &minPages
}

// GlobalI32 adds an i32 global and returns its index.
func (b *Builder) GlobalI32(mutable bool, init int32) uint32 {
	enc := []byte{0x7f, 0x00}
	if mutable {
		enc[1] = 0x01
	}
	enc = append(enc, 0x41)
	enc = append(enc, encodeSLEB128(init)...)
	enc = append(enc, 0x0b)
	b.globals = append(b.globals, enc)
	return uint32(len(b.globals) - 1)
}

func (b *Builder) export(name string, kind byte, idx uint32) {
	enc := append(encodeName(name), kind)
	b.exports = append(b.exports, append(enc, encodeULEB128(idx)...))
}

// ExportFunc exports a function.
func (b *Builder) ExportFunc(name string, idx uint32) { b.export(name, 0x00, idx) }

// ExportMemory exports memory 0.
func (b *Builder) ExportMemory(name string) { b.export(name, 0x02, 0) }

// ExportGlobal exports a global.
func (b *Builder) ExportGlobal(name string, idx uint32) { b.export(name, 0x03, idx) }

// Data adds an active data segment for memory 0.
func (b *Builder) Data(offset int32, bytes []byte) {
	enc := []byte{0x00, 0x41}
	enc = append(enc, encodeSLEB128(offset)...)
	enc = append(enc, 0x0b)
	enc = append(enc, encodeULEB128(uint32(len(bytes)))...)
	b.data = append(b.data, append(enc, bytes...))
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(b.types) > 0 {
		out = append(out, section(0x01, vec(b.types))...)
	}
	if len(b.imports) > 0 {
		out = append(out, section(0x02, vec(b.imports))...)
	}
	if len(b.funcs) > 0 {
		decls := make([][]byte, len(b.funcs))
		for i, f := range b.funcs {
			decls[i] = encodeULEB128(f.typ)
		}
		out = append(out, section(0x03, vec(decls))...)
	}
	if b.memory != nil {
		limits := append([]byte{0x00}, encodeULEB128(*b.memory)...)
		out = append(out, section(0x05, vec([][]byte{limits}))...)
	}
	if len(b.globals) > 0 {
		out = append(out, section(0x06, vec(b.globals))...)
	}
	if len(b.exports) > 0 {
		out = append(out, section(0x07, vec(b.exports))...)
	}
	if len(b.funcs) > 0 {
		bodies := make([][]byte, len(b.funcs))
		for i, f := range b.funcs {
			locals := make([][]byte, len(f.locals))
			for j, l := range f.locals {
				locals[j] = []byte{0x01, encodeValType(l)}
			}
			code := append(vec(locals), f.body...)
			code = append(code, 0x0b)
			bodies[i] = append(encodeULEB128(uint32(len(code))), code...)
		}
		out = append(out, section(0x0a, vec(bodies))...)
	}
	if len(b.data) > 0 {
		out = append(out, section(0x0b, vec(b.data))...)
	}
	return out
}
