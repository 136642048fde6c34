// Package led drives the lamp's RGB output from light/value.
package led

import (
	"context"
	"sync"

	"lampcode-go/bus"
	"lampcode-go/types"
	"lampcode-go/x/jsonx"
	"lampcode-go/x/logx"
)

var topicLightValue = bus.T("light", "value")

// Sink shows a colour. 0 is dark, 255 full.
type Sink interface {
	SetRGB(r, g, b uint8) error
}

// Output maps a lamp state to sink levels: off is dark, on is the colour.
func Output(l types.Light) (r, g, b uint8) {
	if !l.On() {
		return 0, 0, 0
	}
	return l.R, l.G, l.B
}

type Service struct {
	sink Sink
	log  *logx.Logger
}

func NewService(sink Sink, l *logx.Logger) *Service {
	return &Service{sink: sink, log: l.With("led")}
}

// Start follows light/value until ctx ends.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.loop(ctx, conn)
	return nil
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(topicLightValue)
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Channel():
			var l types.Light
			if err := jsonx.Decode(msg.Payload, &l); err != nil {
				s.log.Warn("bad light value", logx.Err(err))
				continue
			}
			s.apply(l)
		}
	}
}

func (s *Service) apply(l types.Light) {
	r, g, b := Output(l)
	if err := s.sink.SetRGB(r, g, b); err != nil {
		s.log.Error("set rgb failed", logx.Err(err))
		return
	}
	s.log.Debug("applied", logx.Bool("on", l.On()),
		logx.U32("r", uint32(r)), logx.U32("g", uint32(g)), logx.U32("b", uint32(b)))
}

// MemorySink keeps the last colour; used on the host.
type MemorySink struct {
	mu      sync.Mutex
	r, g, b uint8
	n       int
}

func (m *MemorySink) SetRGB(r, g, b uint8) error {
	m.mu.Lock()
	m.r, m.g, m.b = r, g, b
	m.n++
	m.mu.Unlock()
	return nil
}

// Last returns the most recent colour and how many times SetRGB ran.
func (m *MemorySink) Last() (r, g, b uint8, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.r, m.g, m.b, m.n
}
