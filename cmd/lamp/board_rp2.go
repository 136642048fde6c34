//go:build tinygo && (rp2040 || rp2350)

package main

import (
	"context"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"lampcode-go/bus"
	"lampcode-go/errcode"
	"lampcode-go/services/bridge"
	"lampcode-go/services/led"
	"lampcode-go/types"
	"lampcode-go/x/logx"
)

const deviceID = "pico"

func init() { bridge.UARTDial = dialUART }

// Console on UART0 (GP0/GP1) so logs survive USB resets.
func consoleWriter() io.Writer {
	_ = uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	return uartx.UART0
}

// Select controller handle for a given slice number (0..7).
func pwmGroupBySlice(slice uint8) led.PWMController {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

func newSink(cfg types.LEDConfig) (led.Sink, error) {
	if cfg.Sink == "ws2812" {
		return led.NewWS2812Sink(machine.Pin(cfg.Pin)), nil
	}
	var pins [3]machine.Pin
	var ctrls [3]led.PWMController
	for i, p := range cfg.Pins {
		pins[i] = machine.Pin(p)
		ctrls[i] = pwmGroupBySlice(uint8(p>>1) & 7)
	}
	return led.NewMachinePWMSink(ctrls, pins, cfg.FreqHz, cfg.ActiveLow)
}

func startBLE(context.Context, *bus.Connection, types.BLEConfig, *logx.Logger) error {
	return errcode.Unsupported
}

// uartPort adapts uartx to the bridge link. Reads end when the link
// context does.
type uartPort struct {
	ctx context.Context
	u   *uartx.UART
}

func (p *uartPort) Read(b []byte) (int, error)  { return p.u.RecvSomeContext(p.ctx, b) }
func (p *uartPort) Write(b []byte) (int, error) { return p.u.Write(b) }
func (p *uartPort) Close() error                { return nil }

func dialUART(ctx context.Context, cfg types.UARTConfig) (io.ReadWriteCloser, error) {
	if cfg.ID != "uart1" {
		// uart0 carries the console.
		return nil, errcode.New(errcode.Unsupported, "bridge.uart", "bridge needs uart1, got "+cfg.ID)
	}
	err := uartx.UART1.Configure(uartx.UARTConfig{
		BaudRate: cfg.Baud,
		TX:       machine.Pin(cfg.TX),
		RX:       machine.Pin(cfg.RX),
	})
	if err != nil {
		return nil, errcode.Wrap(errcode.IOFailure, "bridge.uart", err)
	}
	return &uartPort{ctx: ctx, u: uartx.UART1}, nil
}
