package config

import (
	"context"
	"errors"

	"lampcode-go/bus"
	"lampcode-go/errcode"
	"lampcode-go/types"
	"lampcode-go/x/logx"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

var (
	errNoDevice = errors.New("missing device ID in context")
	errNoConfig = errors.New("no embedded config for device")
)

// -----------------------------------------------------------------------------
// Parsing
// -----------------------------------------------------------------------------

// Parse decodes one board document and checks the parts other services
// cannot recover from.
func Parse(raw []byte) (types.DeviceConfig, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return types.DeviceConfig{}, err
	}
	cfg, err := toDeviceConfig(doc)
	if err != nil {
		return cfg, err
	}
	if cfg.Storage.End <= cfg.Storage.Start {
		return cfg, errcode.New(errcode.InvalidConfig, "config.parse", "storage end must be above start")
	}
	switch cfg.LED.Sink {
	case "", "none", "pwm", "ws2812", "memory":
	default:
		return cfg, errcode.New(errcode.InvalidConfig, "config.parse", "unknown led sink "+cfg.LED.Sink)
	}
	switch cfg.Bridge.Transport {
	case "", "uart":
	default:
		return cfg, errcode.New(errcode.InvalidConfig, "config.parse", "unknown bridge transport "+cfg.Bridge.Transport)
	}
	if cfg.Heartbeat.IntervalS < 0 {
		return cfg, errcode.New(errcode.InvalidConfig, "config.parse", "negative heartbeat interval")
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type section struct {
	key string
	val any
}

type ConfigService struct {
	Name string
	log  *logx.Logger
}

func NewConfigService(l *logx.Logger) *ConfigService {
	return &ConfigService{Name: serviceName, log: l.With(serviceName)}
}

// publishConfig resolves the device document and publishes each section,
// typed, as a retained config/<key> message.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errNoDevice
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errcode.Wrap(errcode.InvalidConfig, "config."+device, errNoConfig)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return err
	}

	sections := []section{
		{"storage", cfg.Storage},
		{"led", cfg.LED},
		{"ble", cfg.BLE},
		{"log", cfg.Log},
	}
	// Optional sections are only published when set, so their services
	// stay idle.
	if cfg.Bridge.Transport != "" {
		sections = append(sections, section{"bridge", cfg.Bridge})
	}
	if cfg.Heartbeat.IntervalS > 0 {
		sections = append(sections, section{"heartbeat", cfg.Heartbeat})
	}
	for _, sec := range sections {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, sec.key), sec.val, true))
	}
	s.log.Info("published", logx.Str("device", device), logx.Int("sections", len(sections)))
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			s.log.Error("publish failed", logx.Err(err))
		}
	}()
}
