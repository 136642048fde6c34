//go:build tinygo

package led

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// WS2812Sink drives a single addressable pixel.
type WS2812Sink struct {
	dev ws2812.Device
	buf [1]color.RGBA
}

func NewWS2812Sink(pin machine.Pin) *WS2812Sink {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &WS2812Sink{dev: ws2812.New(pin)}
}

func (w *WS2812Sink) SetRGB(r, g, b uint8) error {
	w.buf[0] = color.RGBA{R: r, G: g, B: b, A: 0xFF}
	return w.dev.WriteColors(w.buf[:])
}
