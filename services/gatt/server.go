package gatt

import (
	"context"

	"tinygo.org/x/bluetooth"

	"lampcode-go/bus"
	"lampcode-go/errcode"
	"lampcode-go/types"
	"lampcode-go/x/jsonx"
	"lampcode-go/x/logx"
)

var (
	topicLightValue = bus.T("light", "value")
	topicSetState   = bus.T("light", "control", "state")
	topicSetRGB     = bus.T("light", "control", "rgb")
)

// Server registers the lamp service on an adapter and advertises it.
type Server struct {
	adapter *bluetooth.Adapter
	name    string
	log     *logx.Logger

	conn     *bus.Connection
	stateChr bluetooth.Characteristic
	rgbChr   bluetooth.Characteristic
}

func NewServer(adapter *bluetooth.Adapter, name string, l *logx.Logger) *Server {
	return &Server{adapter: adapter, name: name, log: l.With("gatt")}
}

func parseUUID(id uint16) (bluetooth.UUID, error) {
	u, err := bluetooth.ParseUUID(UUIDString(id))
	if err != nil {
		return bluetooth.UUID{}, errcode.Wrap(errcode.InvalidParams, "gatt.uuid", err)
	}
	return u, nil
}

// Start enables the stack, adds the service seeded with the retained
// light/value if there is one, then advertises.
func (s *Server) Start(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn

	svcUUID, err := parseUUID(ServiceID)
	if err != nil {
		return err
	}
	stateUUID, err := parseUUID(StateID)
	if err != nil {
		return err
	}
	rgbUUID, err := parseUUID(RGBID)
	if err != nil {
		return err
	}

	if err := s.adapter.Enable(); err != nil {
		return errcode.Wrap(errcode.MapDriverErr(err), "gatt.enable", err)
	}

	// Subscribe first so the retained value seeds the characteristics.
	sub := conn.Subscribe(topicLightValue)
	sv, rv := Values(s.seed(sub))

	if err := s.adapter.AddService(&bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle:     &s.stateChr,
				UUID:       stateUUID,
				Value:      sv[:],
				Flags:      charFlags(StateID),
				WriteEvent: s.onStateWrite,
			},
			{
				Handle:     &s.rgbChr,
				UUID:       rgbUUID,
				Value:      rv[:],
				Flags:      charFlags(RGBID),
				WriteEvent: s.onRGBWrite,
			},
		},
	}); err != nil {
		conn.Unsubscribe(sub)
		return errcode.Wrap(errcode.MapDriverErr(err), "gatt.add_service", err)
	}

	adv := s.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    s.name,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	}); err != nil {
		conn.Unsubscribe(sub)
		return errcode.Wrap(errcode.MapDriverErr(err), "gatt.advertise", err)
	}
	if err := adv.Start(); err != nil {
		conn.Unsubscribe(sub)
		return errcode.Wrap(errcode.MapDriverErr(err), "gatt.advertise", err)
	}
	s.log.Info("advertising", logx.Str("name", s.name), logx.Str("service", UUIDString(ServiceID)))

	go s.loop(ctx, sub)
	return nil
}

// charFlags: state notifies, rgb indicates.
func charFlags(id uint16) bluetooth.CharacteristicPermissions {
	f := bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission
	if id == RGBID {
		return f | bluetooth.CharacteristicIndicatePermission
	}
	return f | bluetooth.CharacteristicNotifyPermission
}

// seed returns the retained light/value if one is waiting, else the zero
// light.
func (s *Server) seed(sub *bus.Subscription) types.Light {
	var l types.Light
	select {
	case msg := <-sub.Channel():
		if err := jsonx.Decode(msg.Payload, &l); err != nil {
			s.log.Warn("retained light/value ignored", logx.Err(err))
			return types.Light{}
		}
	default:
	}
	return l
}

// Write callbacks run in the BLE stack's context: decode and publish only.
func (s *Server) onStateWrite(_ bluetooth.Connection, offset int, value []byte) {
	req, err := ParseStateWrite(value)
	if err != nil || offset != 0 {
		s.log.Warn("state write rejected", logx.Int("len", len(value)), logx.Int("offset", offset))
		return
	}
	s.conn.Publish(s.conn.NewMessage(topicSetState, req, false))
}

func (s *Server) onRGBWrite(_ bluetooth.Connection, offset int, value []byte) {
	req, err := ParseRGBWrite(value)
	if err != nil || offset != 0 {
		s.log.Warn("rgb write rejected", logx.Int("len", len(value)), logx.Int("offset", offset))
		return
	}
	s.conn.Publish(s.conn.NewMessage(topicSetRGB, req, false))
}

func (s *Server) loop(ctx context.Context, sub *bus.Subscription) {
	defer s.conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Channel():
			var l types.Light
			if err := jsonx.Decode(msg.Payload, &l); err != nil {
				s.log.Warn("light/value ignored", logx.Err(err))
				continue
			}
			sv, rv := Values(l)
			if _, err := s.stateChr.Write(sv[:]); err != nil {
				s.log.Warn("state notify failed", logx.Err(err))
			}
			if _, err := s.rgbChr.Write(rv[:]); err != nil {
				s.log.Warn("rgb notify failed", logx.Err(err))
			}
		}
	}
}
