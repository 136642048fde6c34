// bridge/bridge.go
package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"lampcode-go/bus"
	"lampcode-go/errcode"
	"lampcode-go/state"
	"lampcode-go/types"
	"lampcode-go/x/jsonx"
	"lampcode-go/x/logx"
	"lampcode-go/x/timex"
)

var (
	topicConfigBridge = bus.T("config", "bridge")
	topicState        = bus.T("bridge", "state")
	topicLightValue   = bus.T("light", "value")
)

const (
	requestTimeout = 2 * time.Second
	pingInterval   = 5 * time.Second
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start runs the lamp control link. It blocks until ctx is cancelled.
// It waits for config/bridge and (re)opens the link on every change.
func Start(ctx context.Context, conn *bus.Connection, l *logx.Logger) {
	if l == nil {
		l = logx.Discard()
	}
	s := &Service{conn: conn, log: l.With("bridge")}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn *bus.Connection
	log  *logx.Logger

	mu     sync.Mutex
	curRun context.CancelFunc
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigBridge)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			var cfg types.BridgeConfig
			if err := jsonx.Decode(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", errcode.Wrap(errcode.InvalidConfig, "bridge.config", err))
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg types.BridgeConfig) {
	s.stopCurrent()
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.curRun = cancel
	s.mu.Unlock()
	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg types.BridgeConfig) {
	tr, err := newTransport(cfg)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", err)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		s.log.Info("link up", logx.Str("transport", tr.String()))
		err = s.handleLink(ctx, rwc)
		_ = rwc.Close()
		if err == nil {
			return
		}
		delay := backoff()
		s.log.Warn("link lost", logx.Err(err))
		s.publishState("degraded", "link_lost_retrying", err)
		if !sleep(ctx, delay) {
			return
		}
	}
}

// handleLink owns one link lifetime. Every write happens on this goroutine;
// the reader only decodes frames.
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rd := newFramedReader(rwc)
	wr := newFramedWriter(rwc)

	valSub := s.conn.Subscribe(topicLightValue)
	defer s.conn.Unsubscribe(valSub)

	frames := make(chan Frame, 4)
	errCh := make(chan error, 1)
	go func() {
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	tick := time.NewTicker(pingInterval)
	defer tick.Stop()

	var last types.Light
	haveLast := false

	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err := <-errCh:
			return err
		case <-tick.C:
			if err := wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		case m := <-valSub.Channel():
			var l types.Light
			if jsonx.Decode(m.Payload, &l) != nil {
				continue
			}
			last, haveLast = l, true
			if err := wr.WriteFrame(valueFrame(l)); err != nil {
				return err
			}
		case f := <-frames:
			var err error
			switch f.Type {
			case framePing:
				err = wr.WriteFrame(Frame{Type: framePong})
			case framePong:
			case frameGet:
				if !haveLast {
					err = wr.WriteFrame(replyFrame(errcode.NotReady))
				} else {
					err = wr.WriteFrame(valueFrame(last))
				}
			case frameClose:
				return errPeerClosed
			default:
				err = wr.WriteFrame(replyFrame(s.control(ctx, f)))
			}
			if err != nil {
				return err
			}
		}
	}
}

// control turns a control frame into a light/control request and returns
// the code to send back.
func (s *Service) control(ctx context.Context, f Frame) errcode.Code {
	var method string
	var payload any
	switch f.Type {
	case frameSetState:
		if len(f.Payload) != 1 {
			return errcode.InvalidPayload
		}
		method, payload = "state", types.StateSet{State: f.Payload[0]}
	case frameSetRGB:
		if len(f.Payload) != 3 {
			return errcode.InvalidPayload
		}
		method, payload = "rgb", types.RGBSet{R: f.Payload[0], G: f.Payload[1], B: f.Payload[2]}
	case frameSync:
		method, payload = "sync", types.SyncReq{}
	default:
		return errcode.Unsupported
	}

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	reply, err := s.conn.RequestWait(rctx, s.conn.NewMessage(bus.T("light", "control", method), payload, false))
	if err != nil {
		return errcode.Timeout
	}
	var r types.ControlReply
	if jsonx.Decode(reply.Payload, &r) != nil {
		return errcode.Error
	}
	if r.OK {
		return errcode.OK
	}
	return errcode.Code(r.Error)
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(types.BridgeConfig) (Transport, error)

var (
	regMu         sync.RWMutex
	registry      = map[string]transportFactory{}
	errNoDial     = errors.New("UARTDial not set")
	errPeerClosed = errors.New("peer closed link")
)

// RegisterTransport adds a transport by name.
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg types.BridgeConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Transport]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Transport {
	case "uart":
		return &uartTransport{cfg: cfg.UART}, nil
	default:
		return nil, errcode.New(errcode.Unsupported, "bridge.transport", "unknown transport "+cfg.Transport)
	}
}

// UARTDial is set by board code. It opens the configured UART.
var UARTDial func(ctx context.Context, u types.UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct {
	cfg types.UARTConfig
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func (s *Service) publishState(level, status string, err error) {
	st := types.LinkState{Level: level, Status: status, TSms: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, st, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func valueFrame(l types.Light) Frame {
	b := state.Bytes(state.FromLight(l))
	return Frame{Type: frameValue, Payload: b[:]}
}

func replyFrame(c errcode.Code) Frame {
	if c == errcode.OK {
		return Frame{Type: frameReply}
	}
	return Frame{Type: frameReply, Payload: []byte(c)}
}
