package led

import (
	"lampcode-go/errcode"
	"lampcode-go/x/mathx"
)

// PWM is one controller: a counter top and per-channel compare values.
type PWM interface {
	Top() uint32
	Set(channel uint8, value uint32)
}

// Channel is one colour's output.
type Channel struct {
	PWM PWM
	Ch  uint8
}

// PWMSink drives three PWM channels, R, G, B in that order.
type PWMSink struct {
	ch        [3]Channel
	activeLow bool
}

func NewPWMSink(ch [3]Channel, activeLow bool) (*PWMSink, error) {
	for _, c := range ch {
		if c.PWM == nil {
			return nil, errcode.New(errcode.InvalidParams, "led.pwm", "missing channel")
		}
	}
	return &PWMSink{ch: ch, activeLow: activeLow}, nil
}

func (p *PWMSink) SetRGB(r, g, b uint8) error {
	for i, v := range [3]uint8{r, g, b} {
		c := p.ch[i]
		c.PWM.Set(c.Ch, p.toPhys(v, c.PWM.Top()))
	}
	return nil
}

// toPhys scales 0..255 to 0..top, inverted for active-low wiring.
func (p *PWMSink) toPhys(v uint8, top uint32) uint32 {
	d := mathx.Clamp(mathx.Scale8(v, top), 0, top)
	if !p.activeLow {
		return d
	}
	return top - d
}
