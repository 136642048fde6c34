// config/config_test.go
package config

import (
	"context"
	"testing"
	"time"

	"lampcode-go/bus"
	"lampcode-go/errcode"
	"lampcode-go/types"
)

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	// Override lookup for this test.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "pico" {
			return nil, false
		}
		return []byte(`{
			"storage": {"start": "0x3E000", "end": 258048, "slot": 8},
			"led": {"sink": "ws2812", "pin": 16},
			"ble": {"name": "Lamp", "enabled": true},
			"log": {"level": "debug"}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	// Arrange bus and service.
	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService(nil)

	// Start publisher with device ID in context.
	ctx := context.WithValue(context.Background(), CtxDeviceKey, "pico")
	svc.Start(ctx, conn)

	// Subscribe; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.T(configPrefix, "#"))

	got := map[string]any{}
	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < 4 && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if len(m.Topic) != 2 || m.Topic[0] != configPrefix {
				t.Fatalf("unexpected topic: %#v", m.Topic)
			}
			key, ok := m.Topic[1].(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", m.Topic[1])
			}
			if !m.Retained {
				t.Fatalf("%s not retained", key)
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 retained sections, got %d (%v)", len(got), got)
	}

	st, ok := got["storage"].(types.StorageConfig)
	if !ok {
		t.Fatalf("storage payload %T", got["storage"])
	}
	if st.Start != 0x3E000 || st.End != 0x3F000 || st.Slot != 8 {
		t.Fatalf("storage = %+v", st)
	}
	if led, ok := got["led"].(types.LEDConfig); !ok || led.Sink != "ws2812" || led.Pin != 16 {
		t.Fatalf("led = %#v", got["led"])
	}
	if ble, ok := got["ble"].(types.BLEConfig); !ok || !ble.Enabled || ble.Name != "Lamp" {
		t.Fatalf("ble = %#v", got["ble"])
	}
	if lg, ok := got["log"].(types.LogConfig); !ok || lg.Level != "debug" {
		t.Fatalf("log = %#v", got["log"])
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService(nil)

	// No device ID in context
	if err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	// Override lookup to simulate absence.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService(nil)

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "unknown-device")
	if err := svc.publishConfig(ctx, conn); errcode.Of(err) != errcode.InvalidConfig {
		t.Fatalf("expected invalid_config for missing embedded config, got %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not_json", `{`},
		{"bad_addr", `{"storage": {"start": "nope", "end": 4096}}`},
		{"inverted", `{"storage": {"start": 8192, "end": 4096}}`},
		{"missing_storage", `{"led": {"sink": "pwm"}}`},
		{"bad_sink", `{"storage": {"start": 0, "end": 4096}, "led": {"sink": "laser"}}`},
		{"bad_transport", `{"storage": {"start": 0, "end": 4096}, "bridge": {"transport": "can"}}`},
		{"negative_heartbeat", `{"storage": {"start": 0, "end": 4096}, "heartbeat": {"interval_s": -1}}`},
		{"trailing_data", `{"storage": {"start": 0, "end": 4096}} x`},
		{"not_object", `[1, 2]`},
		{"storage_not_object", `{"storage": 4096}`},
		{"slot_string", `{"storage": {"start": 0, "end": 4096, "slot": "8"}}`},
		{"fractional_page", `{"storage": {"start": 0, "end": 4096, "page": 1.5}}`},
		{"two_pins", `{"storage": {"start": 0, "end": 4096}, "led": {"sink": "pwm", "pins": [1, 2]}}`},
		{"baud_negative", `{"storage": {"start": 0, "end": 4096}, "bridge": {"transport": "uart", "uart": {"baud": -1}}}`},
		{"enabled_string", `{"storage": {"start": 0, "end": 4096}, "ble": {"enabled": "yes"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); errcode.Of(err) != errcode.InvalidConfig {
				t.Fatalf("expected invalid_config, got %v", err)
			}
		})
	}
}

func TestParseMapsSections(t *testing.T) {
	raw := `{
		"storage": {"start": "0x10000", "end": 69632, "slot": 8, "page": 4096, "max_attempts": 5},
		"led": {"sink": "pwm", "pins": [2, 3, 4], "freq_hz": 1000, "active_low": true},
		"ble": {"name": "Lamp", "enabled": true},
		"log": {"level": "warn"},
		"bridge": {"transport": "uart", "uart": {"id": "uart0", "baud": 9600, "tx": 0, "rx": 1}},
		"heartbeat": {"interval_s": 10}
	}`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	want := types.DeviceConfig{
		Storage:   types.StorageConfig{Start: 0x10000, End: 0x11000, Slot: 8, Page: 4096, MaxAttempts: 5},
		LED:       types.LEDConfig{Sink: "pwm", Pins: [3]int{2, 3, 4}, FreqHz: 1000, ActiveLow: true},
		BLE:       types.BLEConfig{Name: "Lamp", Enabled: true},
		Log:       types.LogConfig{Level: "warn"},
		Bridge:    types.BridgeConfig{Transport: "uart", UART: types.UARTConfig{ID: "uart0", Baud: 9600, TX: 0, RX: 1}},
		Heartbeat: types.HeartbeatConfig{IntervalS: 10},
	}
	if cfg != want {
		t.Fatalf("got %+v\nwant %+v", cfg, want)
	}
}

func TestEmbeddedConfigsParse(t *testing.T) {
	for device, raw := range embeddedConfigs {
		cfg, err := Parse(raw)
		if err != nil {
			t.Fatalf("%s: %v", device, err)
		}
		if cfg.Storage.End-cfg.Storage.Start == 0 {
			t.Fatalf("%s: empty storage region", device)
		}
	}

	cfg, _ := Parse(embeddedConfigs["nrf52840dk"])
	if cfg.Storage.Start != 0x3E000 || cfg.Storage.End != 0x3F000 {
		t.Fatalf("nrf52840dk storage = %+v", cfg.Storage)
	}
}

func TestConfig_OptionalSections(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test-optional")
	svc := NewConfigService(nil)

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "pico")
	if err := svc.publishConfig(ctx, conn); err != nil {
		t.Fatal(err)
	}

	br := conn.Subscribe(bus.T(configPrefix, "bridge"))
	select {
	case m := <-br.Channel():
		cfg, ok := m.Payload.(types.BridgeConfig)
		if !ok || cfg.Transport != "uart" || cfg.UART.ID != "uart1" || cfg.UART.Baud != 115200 {
			t.Fatalf("bridge = %#v", m.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("pico bridge section not retained")
	}

	// host has neither section.
	b2 := bus.NewBus(16)
	conn2 := b2.NewConnection("test-optional-host")
	ctx = context.WithValue(context.Background(), CtxDeviceKey, "host")
	if err := svc.publishConfig(ctx, conn2); err != nil {
		t.Fatal(err)
	}
	hb := conn2.Subscribe(bus.T(configPrefix, "heartbeat"))
	select {
	case m := <-hb.Channel():
		t.Fatalf("host heartbeat published: %#v", m.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}
