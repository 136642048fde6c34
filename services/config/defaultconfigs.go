package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

// nRF52840 DK: last 4 KiB page below the bootloader settings. LEDs 1..3
// are active low.
const cfgNRF52840DK = `{
  "storage": {"start": "0x3E000", "end": "0x3F000", "page": 4096},
  "led": {"sink": "pwm", "pins": [8, 41, 12], "freq_hz": 1000, "active_low": true},
  "ble": {"name": "Lamp", "enabled": true},
  "log": {"level": "info"},
  "heartbeat": {"interval_s": 30}
}`

// Pico: top 8 KiB of the 2 MiB XIP flash. Program granularity is 256 bytes.
// No radio; control comes over the UART1 bridge on GP4/GP5.
const cfgPico = `{
  "storage": {"start": "0x101FE000", "end": "0x10200000", "slot": 256, "page": 4096},
  "led": {"sink": "pwm", "pins": [18, 19, 20], "freq_hz": 1000},
  "ble": {"enabled": false},
  "log": {"level": "info"},
  "bridge": {"transport": "uart", "uart": {"id": "uart1", "baud": 115200, "tx": 4, "rx": 5}},
  "heartbeat": {"interval_s": 30}
}`

const cfgHost = `{
  "storage": {"start": "0x3E000", "end": "0x3F000", "page": 4096},
  "led": {"sink": "memory"},
  "ble": {"enabled": false},
  "log": {"level": "debug"}
}`

var embeddedConfigs = map[string][]byte{
	"nrf52840dk": []byte(cfgNRF52840DK),
	"pico":       []byte(cfgPico),
	"host":       []byte(cfgHost),
}
