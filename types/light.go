package types

// ------------------------
// Lamp state (retained on light/value)
// ------------------------

// Light is the decoded lamp state. State is the on/off flag: any non-zero
// value means on. R, G and B are kept while the lamp is off.
type Light struct {
	State uint8 `json:"state"`
	R     uint8 `json:"r"`
	G     uint8 `json:"g"`
	B     uint8 `json:"b"`
}

func (l Light) On() bool { return l.State != 0 }

// ------------------------
// Controls (light/control/...)
// ------------------------

type StateSet struct {
	State uint8 `json:"state"`
}

type RGBSet struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// SyncReq asks the store to re-append the cached record if a previous
// append failed.
type SyncReq struct{}

// ControlReply answers any light/control request that carried ReplyTo.
type ControlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
