package errcode

import (
	"errors"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"busy":                 Busy,
		"not_ready":            NotReady,
		"region_misconfigured": RegionMisconfigured,
		"io_failure":           IOFailure,
		"out_of_range":         OutOfRange,
		"invalid_record":       InvalidRecord,
		"invalid_payload":      InvalidPayload,
	}
	for want, c := range cases {
		if c.Error() != want {
			t.Fatalf("code %q mismatch: got %q", want, c.Error())
		}
	}
}

func TestOf(t *testing.T) {
	cause := errors.New("hw busy")
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", Busy, Busy},
		{"wrapped", Wrap(IOFailure, "flash.write", cause), IOFailure},
		{"plain", cause, Error},
		{"nested", &E{C: Error, Err: Wrap(OutOfRange, "read", nil)}, Error},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Of(tc.err); got != tc.want {
				t.Fatalf("Of = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrapMatchesWithErrorsIs(t *testing.T) {
	cause := errors.New("nak")
	err := Wrap(IOFailure, "flash.erase", cause)
	if !errors.Is(err, IOFailure) {
		t.Fatal("errors.Is(err, IOFailure) = false")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if errors.Is(err, Busy) {
		t.Fatal("unexpected match on Busy")
	}
	if got, want := err.Error(), "flash.erase: io_failure: nak"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestMapDriverErr(t *testing.T) {
	if MapDriverErr(nil) != OK {
		t.Fatal("nil should map to OK")
	}
	if MapDriverErr(errors.New("raw")) != IOFailure {
		t.Fatal("uncoded driver error should map to io_failure")
	}
	if MapDriverErr(Busy) != Busy {
		t.Fatal("coded error should keep its code")
	}
}
