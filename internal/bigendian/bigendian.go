// Package bigendian provides small fixed-size byte arrays with typed
// accessors for reinterpreting a dissector's hex "show" string as a numeric
// value, avoiding a slice-oriented decode for a fixed 8-byte case.
package bigendian

import "encoding/binary"

// LE64 holds up to 8 bytes of a hex-decoded "show" string, zero-padded on
// the right, for the BASE_HEX* little-endian reinterpretation the Value
// Typer applies to numeric fields (spec.md S4.2).
type LE64 [8]byte

// Uint64 returns the 8 bytes read as a little-endian integer.
func (b LE64) Uint64() uint64 { return binary.LittleEndian.Uint64(b[:]) }

// PadRight8 right-pads b with zero bytes to length 8. Panics if len(b) > 8.
func PadRight8(b []byte) LE64 {
	if len(b) > 8 {
		panic("bigendian: PadRight8: input longer than 8 bytes")
	}
	var out LE64
	copy(out[:], b)
	return out
}
