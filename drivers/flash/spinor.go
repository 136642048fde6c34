//go:build tinygo && spinor

package flash

import (
	"machine"

	"tinygo.org/x/drivers"
	norflash "tinygo.org/x/drivers/flash"
)

// SPIPins wires an external SPI NOR chip.
type SPIPins struct {
	SDO, SDI, SCK, CS machine.Pin
}

// SPINOR configures an external NOR chip on spi. The chip is addressed from
// zero.
func SPINOR(spi drivers.SPI, pins SPIPins) (Device, error) {
	dev := norflash.NewSPI(spi, pins.SDO, pins.SDI, pins.SCK, pins.CS)
	if err := dev.Configure(&norflash.DeviceConfig{
		Identifier: norflash.DefaultDeviceIdentifier,
	}); err != nil {
		return nil, err
	}
	return dev, nil
}
