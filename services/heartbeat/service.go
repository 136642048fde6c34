package heartbeat

import (
	"context"
	"time"

	"lampcode-go/bus"
	"lampcode-go/types"
	"lampcode-go/x/jsonx"
	"lampcode-go/x/logx"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicStoreStatus     = bus.T("store", "status")
	topicSync            = bus.T("light", "control", "sync")
)

// Service retries a failed store write. On each tick, if the last
// store/status said pending, it requests light/control/sync.
type Service struct {
	log  *logx.Logger
	unit time.Duration
}

func New(l *logx.Logger) *Service {
	if l == nil {
		l = logx.Discard()
	}
	return &Service{log: l.With("heartbeat"), unit: time.Second}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	stSub := conn.Subscribe(topicStoreStatus)
	defer conn.Unsubscribe(stSub)

	// Idle until configured.
	var tick *time.Ticker
	var tickC <-chan time.Time
	defer func() {
		if tick != nil {
			tick.Stop()
		}
	}()

	pending := false

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping")
			return

		case msg := <-cfgSub.Channel():
			var cfg types.HeartbeatConfig
			if err := jsonx.Decode(msg.Payload, &cfg); err != nil || cfg.IntervalS <= 0 {
				s.log.Warn("bad config ignored")
				continue
			}
			d := time.Duration(cfg.IntervalS) * s.unit
			if tick == nil {
				tick = time.NewTicker(d)
				tickC = tick.C
			} else {
				tick.Reset(d)
			}
			s.log.Info("interval set", logx.Int("seconds", cfg.IntervalS))

		case msg := <-stSub.Channel():
			var st types.StoreStatus
			if jsonx.Decode(msg.Payload, &st) == nil {
				pending = st.Pending
			}

		case <-tickC:
			if !pending {
				continue
			}
			s.sync(ctx, conn)
		}
	}
}

func (s *Service) sync(ctx context.Context, conn *bus.Connection) {
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	reply, err := conn.RequestWait(rctx, conn.NewMessage(topicSync, types.SyncReq{}, false))
	if err != nil {
		s.log.Warn("sync request timed out")
		return
	}
	var r types.ControlReply
	if jsonx.Decode(reply.Payload, &r) != nil || !r.OK {
		s.log.Warn("sync failed", logx.Str("error", r.Error))
		return
	}
	s.log.Info("pending value written")
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
