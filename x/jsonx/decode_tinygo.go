//go:build tinygo

package jsonx

import "lampcode-go/errcode"

// On the device every publisher sends typed payloads.
func decodeOther[T any](src any, dst *T) error {
	return errcode.New(errcode.InvalidPayload, "jsonx.decode", "untyped payload")
}
