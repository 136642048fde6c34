// Package gatt exposes the lamp over BLE: one vendor service with an on/off
// characteristic and an RGB characteristic. Writes become bus controls;
// light/value refreshes the characteristic values.
package gatt

import (
	"lampcode-go/errcode"
	"lampcode-go/types"
	"lampcode-go/x/conv"
)

// Vendor base a969xxxx-6b3a-4af9-a21b-32562db0c141; xxxx is the 16-bit id.
const (
	uuidPrefix = "a969"
	uuidSuffix = "-6b3a-4af9-a21b-32562db0c141"

	ServiceID = 0x9000
	StateID   = 0x9001
	RGBID     = 0x9002
)

// UUIDString expands a 16-bit id onto the vendor base.
func UUIDString(id uint16) string {
	var buf [4]byte
	h := conv.Hex8(buf[:0], uint8(id>>8))
	h = conv.Hex8(h, uint8(id))
	return uuidPrefix + string(h) + uuidSuffix
}

// ParseStateWrite accepts exactly one byte.
func ParseStateWrite(p []byte) (types.StateSet, error) {
	if len(p) != 1 {
		return types.StateSet{}, errcode.New(errcode.InvalidPayload, "gatt.state", "want 1 byte")
	}
	return types.StateSet{State: p[0]}, nil
}

// ParseRGBWrite accepts exactly three bytes, R G B.
func ParseRGBWrite(p []byte) (types.RGBSet, error) {
	if len(p) != 3 {
		return types.RGBSet{}, errcode.New(errcode.InvalidPayload, "gatt.rgb", "want 3 bytes")
	}
	return types.RGBSet{R: p[0], G: p[1], B: p[2]}, nil
}

// Values renders a light as the two characteristic values.
func Values(l types.Light) (stateVal [1]byte, rgbVal [3]byte) {
	return [1]byte{l.State}, [3]byte{l.R, l.G, l.B}
}
