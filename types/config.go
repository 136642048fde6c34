package types

import (
	"errors"
	"strconv"
)

// Addr is a flash address that accepts a JSON number or a "0x..." string.
type Addr uint32

var errBadAddr = errors.New("address must be a number or 0x-prefixed string")

func (a *Addr) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return errBadAddr
	}
	*a = Addr(v)
	return nil
}

// ------------------------
// Device configuration sections (config/<key>, retained)
// ------------------------

// DeviceConfig is the whole embedded document for one board.
type DeviceConfig struct {
	Storage StorageConfig `json:"storage"`
	LED     LEDConfig     `json:"led"`
	BLE     BLEConfig     `json:"ble"`
	Log     LogConfig     `json:"log"`

	Bridge    BridgeConfig    `json:"bridge"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
}

// StorageConfig locates the flash log. End is exclusive.
type StorageConfig struct {
	Start       Addr   `json:"start"`
	End         Addr   `json:"end"`
	Slot        uint32 `json:"slot,omitempty"`         // record slot width; 0 => 4
	Page        uint32 `json:"page,omitempty"`         // erase unit; 0 => device erase block
	MaxAttempts int    `json:"max_attempts,omitempty"` // append attempts; 0 => default
}

// LEDConfig selects and wires the RGB output.
type LEDConfig struct {
	Sink      string `json:"sink"`           // "pwm" | "ws2812"
	Pins      [3]int `json:"pins,omitempty"` // R, G, B for pwm
	Pin       int    `json:"pin,omitempty"`  // data pin for ws2812
	FreqHz    uint64 `json:"freq_hz,omitempty"`
	ActiveLow bool   `json:"active_low,omitempty"`
}

type BLEConfig struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type LogConfig struct {
	Level string `json:"level,omitempty"`
}

// BridgeConfig enables the framed serial control link. An empty Transport
// leaves it off.
type BridgeConfig struct {
	Transport string     `json:"transport,omitempty"` // "uart"
	UART      UARTConfig `json:"uart"`
}

type UARTConfig struct {
	ID   string `json:"id"` // "uart0" | "uart1"
	Baud uint32 `json:"baud"`
	TX   int    `json:"tx"`
	RX   int    `json:"rx"`
}

// HeartbeatConfig sets how often a pending store is asked to sync.
type HeartbeatConfig struct {
	IntervalS int `json:"interval_s,omitempty"` // 0 => off
}
