// Package state packs the lamp state into the 32-bit flash record.
//
// On-flash layout (little-endian word):
//
//	bits  0..7   on/off state (non-zero = on)
//	bits  8..15  red
//	bits 16..23  green
//	bits 24..31  blue
//
// 0xFFFFFFFF is what erased flash reads back as and is never a valid record.
package state

import (
	"encoding/binary"

	"lampcode-go/types"
)

// Record is one encoded lamp state.
type Record uint32

// Size is the encoded width in bytes.
const Size = 4

// Erased is the sentinel read from unwritten flash.
const Erased Record = 0xFFFFFFFF

// Zero is the default used when nothing has been stored yet: off, black.
const Zero Record = 0

// collisionState replaces state 0xFF when the colour is white, so that
// (255,255,255,255) does not encode to Erased. Still "on".
const collisionState = 0xFE

const (
	stateShift = 0
	redShift   = 8
	greenShift = 16
	blueShift  = 24

	byteMask = 0xFF
)

func (r Record) State() uint8 { return uint8(r >> stateShift) }
func (r Record) Red() uint8   { return uint8(r >> redShift) }
func (r Record) Green() uint8 { return uint8(r >> greenShift) }
func (r Record) Blue() uint8  { return uint8(r >> blueShift) }

// Valid reports whether r can be a stored value.
func (r Record) Valid() bool { return r != Erased }

// Light returns the decoded fields as a bus payload.
func (r Record) Light() types.Light {
	s, red, g, b := Decode(r)
	return types.Light{State: s, R: red, G: g, B: b}
}

// Decode extracts (state, r, g, b).
func Decode(r Record) (s, red, g, b uint8) {
	return r.State(), r.Red(), r.Green(), r.Blue()
}

// Encode composes a record. Every field comes from the arguments; prev is
// the record being replaced and is only read through WithState/WithRGB.
// The one combination colliding with Erased gets state 0xFE.
func Encode(prev Record, s, red, g, b uint8) Record {
	if s == byteMask && red == byteMask && g == byteMask && b == byteMask {
		s = collisionState
	}
	return Record(s)<<stateShift |
		Record(red)<<redShift |
		Record(g)<<greenShift |
		Record(b)<<blueShift
}

// WithState keeps prev's colour and replaces the state.
func WithState(prev Record, s uint8) Record {
	return Encode(prev, s, prev.Red(), prev.Green(), prev.Blue())
}

// WithRGB keeps prev's state and replaces the colour.
func WithRGB(prev Record, red, g, b uint8) Record {
	return Encode(prev, prev.State(), red, g, b)
}

// FromLight encodes a decoded payload.
func FromLight(l types.Light) Record {
	return Encode(Zero, l.State, l.R, l.G, l.B)
}

// Bytes returns r as a little-endian word.
func Bytes(r Record) [Size]byte {
	var b [Size]byte
	PutBytes(b[:], r)
	return b
}

// PutBytes writes r little-endian into dst[:Size].
func PutBytes(dst []byte, r Record) {
	binary.LittleEndian.PutUint32(dst, uint32(r))
}

// FromBytes reads a little-endian record from src[:Size].
func FromBytes(src []byte) Record {
	return Record(binary.LittleEndian.Uint32(src))
}
