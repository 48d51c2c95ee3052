package wasmtest

import "github.com/tetratelabs/wazero/api"

func encodeULEB128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func encodeSLEB128[T int32 | int64](v T) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func encodeName(s string) []byte {
	return append(encodeULEB128(uint32(len(s))), s...)
}

func encodeValType(t api.ValueType) byte {
	switch t {
	case api.ValueTypeI64:
		return 0x7e
	case api.ValueTypeF32:
		return 0x7d
	case api.ValueTypeF64:
		return 0x7c
	default:
		return 0x7f
	}
}

// vec prefixes the concatenated items with their count.
func vec(items [][]byte) []byte {
	out := encodeULEB128(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, encodeULEB128(uint32(len(content)))...)
	return append(out, content...)
}
