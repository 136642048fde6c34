//go:build tinygo

package led

import (
	"machine"

	"lampcode-go/x/timex"
)

// PWMController is the machine PWM surface used here (machine.PWM0 etc.).
type PWMController interface {
	Configure(cfg machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// NewMachinePWMSink claims one channel per pin (R, G, B) on the matching
// controller. Each distinct controller is configured once at freqHz.
func NewMachinePWMSink(ctrls [3]PWMController, pins [3]machine.Pin, freqHz uint64, activeLow bool) (*PWMSink, error) {
	cfg := machine.PWMConfig{Period: timex.PeriodFromHz(freqHz)}
	var ch [3]Channel
	for i, pin := range pins {
		ctrl := ctrls[i]
		first := true
		for j := 0; j < i; j++ {
			if ctrls[j] == ctrl {
				first = false
			}
		}
		if first {
			if err := ctrl.Configure(cfg); err != nil {
				return nil, err
			}
		}
		n, err := ctrl.Channel(pin)
		if err != nil {
			return nil, err
		}
		ch[i] = Channel{PWM: ctrl, Ch: n}
	}
	return NewPWMSink(ch, activeLow)
}
