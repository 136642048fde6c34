package config

import (
	"strconv"

	"github.com/andreyvit/tinyjson"

	"lampcode-go/errcode"
	"lampcode-go/types"
)

// decodeDocument parses an embedded board document into its top-level
// object. A panic from tinyjson on malformed input becomes InvalidConfig.
func decodeDocument(raw []byte) (m map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, errcode.New(errcode.InvalidConfig, "config.parse", "malformed json")
		}
	}()

	r := tinyjson.Raw(raw)
	val := r.Value() // should be a map[string]any
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return nil, errcode.New(errcode.InvalidConfig, "config.parse", "embedded config is not a JSON object")
	}
	return m, nil
}

// fields reads typed values out of one section object. The first bad
// field is kept in err and later reads return zero values.
type fields struct {
	sec string
	m   map[string]any
	err error
}

func sectionOf(doc map[string]any, key string) *fields {
	f := &fields{sec: key}
	v, ok := doc[key]
	if !ok || v == nil {
		return f
	}
	m, ok := v.(map[string]any)
	if !ok {
		f.err = errcode.New(errcode.InvalidConfig, "config.parse", key+": not an object")
		return f
	}
	f.m = m
	return f
}

func (f *fields) fail(key, why string) {
	if f.err == nil {
		f.err = errcode.New(errcode.InvalidConfig, "config.parse", f.sec+"."+key+": "+why)
	}
}

func (f *fields) get(key string) (any, bool) {
	if f.err != nil || f.m == nil {
		return nil, false
	}
	v, ok := f.m[key]
	return v, ok && v != nil
}

func (f *fields) num(key string) (float64, bool) {
	v, ok := f.get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	if !ok {
		f.fail(key, "not a number")
		return 0, false
	}
	if n != float64(int64(n)) {
		f.fail(key, "not an integer")
		return 0, false
	}
	return n, true
}

func (f *fields) str(key string) string {
	v, ok := f.get(key)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.fail(key, "not a string")
	}
	return s
}

func (f *fields) boolean(key string) bool {
	v, ok := f.get(key)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		f.fail(key, "not a bool")
	}
	return b
}

func (f *fields) integer(key string) int {
	n, _ := f.num(key)
	return int(n)
}

func (f *fields) u32(key string) uint32 {
	n, ok := f.num(key)
	if ok && (n < 0 || n > 0xFFFFFFFF) {
		f.fail(key, "out of range")
		return 0
	}
	return uint32(n)
}

func (f *fields) u64(key string) uint64 {
	n, ok := f.num(key)
	if ok && n < 0 {
		f.fail(key, "negative")
		return 0
	}
	return uint64(n)
}

// addr accepts a number or a "0x..." string.
func (f *fields) addr(key string) types.Addr {
	v, ok := f.get(key)
	if !ok {
		return 0
	}
	if s, isStr := v.(string); isStr {
		n, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			f.fail(key, "bad address")
			return 0
		}
		return types.Addr(n)
	}
	return types.Addr(f.u32(key))
}

func (f *fields) pins(key string) (p [3]int) {
	v, ok := f.get(key)
	if !ok {
		return p
	}
	a, ok := v.([]any)
	if !ok || len(a) != len(p) {
		f.fail(key, "want three pins")
		return p
	}
	for i, e := range a {
		n, ok := e.(float64)
		if !ok {
			f.fail(key, "pin not a number")
			return p
		}
		p[i] = int(n)
	}
	return p
}

// object returns a nested section of this one.
func (f *fields) object(key string) *fields {
	if f.err != nil || f.m == nil {
		return &fields{sec: f.sec + "." + key, err: f.err}
	}
	sub := sectionOf(f.m, key)
	sub.sec = f.sec + "." + key
	return sub
}

// toDeviceConfig maps a decoded document onto the typed sections.
func toDeviceConfig(doc map[string]any) (types.DeviceConfig, error) {
	var cfg types.DeviceConfig

	st := sectionOf(doc, "storage")
	cfg.Storage = types.StorageConfig{
		Start:       st.addr("start"),
		End:         st.addr("end"),
		Slot:        st.u32("slot"),
		Page:        st.u32("page"),
		MaxAttempts: st.integer("max_attempts"),
	}

	led := sectionOf(doc, "led")
	cfg.LED = types.LEDConfig{
		Sink:      led.str("sink"),
		Pins:      led.pins("pins"),
		Pin:       led.integer("pin"),
		FreqHz:    led.u64("freq_hz"),
		ActiveLow: led.boolean("active_low"),
	}

	ble := sectionOf(doc, "ble")
	cfg.BLE = types.BLEConfig{Name: ble.str("name"), Enabled: ble.boolean("enabled")}

	lg := sectionOf(doc, "log")
	cfg.Log = types.LogConfig{Level: lg.str("level")}

	br := sectionOf(doc, "bridge")
	uart := br.object("uart")
	cfg.Bridge = types.BridgeConfig{
		Transport: br.str("transport"),
		UART: types.UARTConfig{
			ID:   uart.str("id"),
			Baud: uart.u32("baud"),
			TX:   uart.integer("tx"),
			RX:   uart.integer("rx"),
		},
	}

	hb := sectionOf(doc, "heartbeat")
	cfg.Heartbeat = types.HeartbeatConfig{IntervalS: hb.integer("interval_s")}

	for _, f := range []*fields{st, led, ble, lg, br, uart, hb} {
		if f.err != nil {
			return cfg, f.err
		}
	}
	return cfg, nil
}
