//go:build tinygo

// Command lamp is the lamp firmware: it restores the saved colour and on/off
// state from flash, drives the RGB LED and exposes both over BLE where the
// board has a radio, or over a framed UART link where configured.
package main

import (
	"context"
	"time"

	"machine"

	"lampcode-go/bus"
	"lampcode-go/drivers/flash"
	"lampcode-go/services/bridge"
	"lampcode-go/services/config"
	"lampcode-go/services/heartbeat"
	"lampcode-go/services/led"
	"lampcode-go/services/store"
	"lampcode-go/types"
	"lampcode-go/x/jsonx"
	"lampcode-go/x/logx"
)

const configWait = 2 * time.Second

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)

	log := logx.New(consoleWriter())
	log.Info("boot", logx.Str("device", deviceID))

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)
	b := bus.NewBus(8)
	ui := b.NewConnection("main")

	config.NewConfigService(log).Start(ctx, b.NewConnection("config"))

	var logCfg types.LogConfig
	if waitConfig(ui, "log", &logCfg) && logCfg.Level != "" {
		log.SetLevel(logx.ParseLevel(logCfg.Level))
	}

	st := store.NewService(flash.OnChip(), log)
	st.Fatal = func(err error) { fatal(log, err) }
	_ = st.Start(ctx, b.NewConnection("store"))
	_ = heartbeat.New(log).Start(ctx, b.NewConnection("heartbeat"))
	go bridge.Start(ctx, b.NewConnection("bridge"), log)

	var ledCfg types.LEDConfig
	if waitConfig(ui, "led", &ledCfg) {
		sink, err := newSink(ledCfg)
		if err != nil {
			log.Error("led sink", logx.Err(err))
		} else {
			_ = led.NewService(sink, log).Start(ctx, b.NewConnection("led"))
		}
	}

	var bleCfg types.BLEConfig
	if waitConfig(ui, "ble", &bleCfg) && bleCfg.Enabled {
		// Wait for the restored value so the characteristics start with it.
		sub := ui.Subscribe(bus.T("light", "value"))
		select {
		case <-sub.Channel():
		case <-time.After(configWait):
			log.Warn("no light value before ble start")
		}
		ui.Unsubscribe(sub)
		if err := startBLE(ctx, b.NewConnection("gatt"), bleCfg, log); err != nil {
			log.Error("ble start", logx.Err(err))
		}
	}

	select {}
}

// waitConfig reads the retained config/<key> section into dst.
func waitConfig[T any](conn *bus.Connection, key string, dst *T) bool {
	sub := conn.Subscribe(bus.T("config", key))
	defer conn.Unsubscribe(sub)
	select {
	case msg := <-sub.Channel():
		return jsonx.Decode(msg.Payload, dst) == nil
	case <-time.After(configWait):
		return false
	}
}

// fatal logs and resets; a bad region or unreadable flash cannot be fixed
// at runtime.
func fatal(log *logx.Logger, err error) {
	log.Error("fatal, resetting", logx.Err(err))
	time.Sleep(time.Second)
	machine.CPUReset()
}
