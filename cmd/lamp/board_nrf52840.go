//go:build tinygo && nrf52840

package main

import (
	"context"
	"io"
	"machine"

	"tinygo.org/x/bluetooth"

	"lampcode-go/bus"
	"lampcode-go/services/gatt"
	"lampcode-go/services/led"
	"lampcode-go/types"
	"lampcode-go/x/logx"
	"lampcode-go/x/strx"
)

const deviceID = "nrf52840dk"

func consoleWriter() io.Writer { return machine.Serial }

// DK LEDs: P0.08, P1.09, P0.12 all on PWM0.
func newSink(cfg types.LEDConfig) (led.Sink, error) {
	if cfg.Sink == "ws2812" {
		return led.NewWS2812Sink(machine.Pin(cfg.Pin)), nil
	}
	pins := [3]machine.Pin{machine.Pin(cfg.Pins[0]), machine.Pin(cfg.Pins[1]), machine.Pin(cfg.Pins[2])}
	ctrls := [3]led.PWMController{machine.PWM0, machine.PWM0, machine.PWM0}
	return led.NewMachinePWMSink(ctrls, pins, cfg.FreqHz, cfg.ActiveLow)
}

func startBLE(ctx context.Context, conn *bus.Connection, cfg types.BLEConfig, log *logx.Logger) error {
	srv := gatt.NewServer(bluetooth.DefaultAdapter, strx.Coalesce(cfg.Name, "Lamp"), log)
	return srv.Start(ctx, conn)
}
