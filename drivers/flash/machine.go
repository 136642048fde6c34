//go:build tinygo && (nrf52840 || rp2040 || rp2350)

package flash

import "machine"

// onChip is the MCU's internal flash data area. machine.Flash offsets start
// at machine.FlashDataStart().
type onChip struct {
	Device
}

func (onChip) Base() int64 { return int64(machine.FlashDataStart()) }

// OnChip returns the internal flash as a Device with absolute addressing.
func OnChip() Device { return onChip{Device: machine.Flash} }
