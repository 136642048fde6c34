// Package jsonx decodes bus payloads into typed structs.
package jsonx

// Decode fills dst from src. A T or *T is copied directly. Other payloads
// ([]byte and string JSON, maps from JSON config, other structs) go through
// decodeOther, which only host builds provide.
func Decode[T any](src any, dst *T) error {
	switch v := src.(type) {
	case T:
		*dst = v
		return nil
	case *T:
		if v != nil {
			*dst = *v
		}
		return nil
	}
	return decodeOther(src, dst)
}
