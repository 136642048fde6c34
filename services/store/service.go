package store

import (
	"context"

	"lampcode-go/bus"
	"lampcode-go/drivers/flash"
	"lampcode-go/errcode"
	"lampcode-go/flashlog"
	"lampcode-go/state"
	"lampcode-go/types"
	"lampcode-go/x/jsonx"
	"lampcode-go/x/logx"
)

var (
	topicConfigStorage = bus.T("config", "storage")
	topicControl       = bus.T("light", "control", "+")
	topicLightValue    = bus.T("light", "value")
	topicStatus        = bus.T("store", "status")
)

const eventQueueLen = 32

// Service owns the flash log and the Store. It waits for config/storage,
// recovers the last value, publishes it on light/value and then applies
// light/control/{state,rgb,sync} requests one at a time.
type Service struct {
	// Fatal is called when the store cannot start: a bad region or a failed
	// recovery scan. Nil means log only.
	Fatal func(error)

	dev flash.Device
	log *logx.Logger

	conn    *bus.Connection
	events  *flash.Events
	flog    *flashlog.Log
	store   *Store
	cfg     types.StorageConfig
	lastErr error
}

func NewService(dev flash.Device, l *logx.Logger) *Service {
	if l == nil {
		l = logx.Discard()
	}
	return &Service{dev: dev, log: l.With("store"), events: flash.NewEvents(eventQueueLen)}
}

// Start runs the service loop, the flash event pump and the completion
// handler.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	h := newCompletionHandler(s.log.With("flash"))
	go h.run(ctx, conn)
	go pumpEvents(ctx, conn, s.events, s.log)
	go s.loop(ctx)
	return nil
}

func (s *Service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigStorage)
	ctlSub := s.conn.Subscribe(topicControl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctlSub)

	s.publishStatus()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping")
			return

		case msg := <-cfgSub.Channel():
			var cfg types.StorageConfig
			if err := jsonx.Decode(msg.Payload, &cfg); err != nil {
				s.fail(errcode.Wrap(errcode.InvalidConfig, "store.config", err))
				continue
			}
			s.configure(cfg)

		case msg := <-ctlSub.Channel():
			s.handleControl(msg)
		}
	}
}

// configure opens the log and runs Init once. The region is fixed for the
// life of the process; a different retained config later is ignored.
func (s *Service) configure(cfg types.StorageConfig) {
	if s.store != nil && s.store.Ready() {
		if cfg != s.cfg {
			s.log.Warn("storage config changed after init, ignored")
		}
		return
	}

	p := flash.NewPrimitive(s.dev, s.events)
	slot := cfg.Slot
	if slot == 0 {
		slot = state.Size
	}
	page := cfg.Page
	if page == 0 {
		page = p.Geometry().EraseBlock
	}
	region, err := flashlog.NewRegion(uint32(cfg.Start), uint32(cfg.End), slot, page)
	if err != nil {
		s.fail(err)
		return
	}
	flog, err := flashlog.Open(p, region, flashlog.Options{
		MaxAttempts: cfg.MaxAttempts,
		Log:         s.log.With("flashlog"),
	})
	if err != nil {
		s.fail(err)
		return
	}

	st := New(flog, WithLogger(s.log))
	l, err := st.Init()
	if err != nil {
		s.fail(err)
		return
	}
	s.cfg, s.flog, s.store, s.lastErr = cfg, flog, st, nil
	s.log.Info("ready",
		logx.Hex("start", region.Start), logx.Hex("end", region.End),
		logx.U32("capacity", region.Capacity()), logx.Hex("cursor", flog.Cursor()))

	s.conn.Publish(s.conn.NewMessage(topicLightValue, l, true))
	s.publishStatus()
}

func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 3 {
		return
	}
	method, _ := msg.Topic[2].(string)

	if s.store == nil || !s.store.Ready() {
		s.replyErr(msg, errcode.NotReady)
		return
	}

	var err error
	switch method {
	case "state":
		var req types.StateSet
		if jsonx.Decode(msg.Payload, &req) != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		err = s.store.UpdateState(req.State)
	case "rgb":
		var req types.RGBSet
		if jsonx.Decode(msg.Payload, &req) != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		err = s.store.UpdateRGB(req.R, req.G, req.B)
	case "sync":
		err = s.store.Sync()
	default:
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}

	// The cache is authoritative even when the append failed.
	s.lastErr = err
	s.conn.Publish(s.conn.NewMessage(topicLightValue, s.store.Light(), true))
	s.publishStatus()
	if err != nil {
		s.replyErr(msg, errcode.Of(err))
		return
	}
	s.conn.Reply(msg, types.ControlReply{OK: true}, false)
}

func (s *Service) replyErr(req *bus.Message, c errcode.Code) {
	s.conn.Reply(req, types.ControlReply{OK: false, Error: string(c)}, false)
}

func (s *Service) fail(err error) {
	s.lastErr = err
	s.log.Error("cannot start", logx.Err(err))
	s.publishStatus()
	if s.Fatal != nil {
		s.Fatal(err)
	}
}

func (s *Service) publishStatus() {
	st := types.StoreStatus{}
	if s.lastErr != nil {
		st.Error = string(errcode.Of(s.lastErr))
	}
	if s.store != nil {
		st.Ready = s.store.Ready()
		st.Pending = s.store.Pending()
		st.Recovery = s.store.Recovery().String()
	}
	if s.flog != nil {
		st.Cursor = s.flog.Cursor()
		st.Used = s.flog.Used()
		st.Capacity = s.flog.Capacity()
	}
	s.conn.Publish(s.conn.NewMessage(topicStatus, st, true))
}
