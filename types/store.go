package types

// StoreStatus is retained on store/status.
type StoreStatus struct {
	Ready    bool   `json:"ready"`
	Pending  bool   `json:"pending"`         // last append failed; cache ahead of flash
	Recovery string `json:"recovery"`        // "empty","found","full"
	Cursor   uint32 `json:"cursor"`          // next free slot address
	Used     uint32 `json:"used"`            // slots written since last erase
	Capacity uint32 `json:"capacity"`        // slots in region
	Error    string `json:"error,omitempty"` // last error code
}

// FlashStats is retained on flash/stats by the completion handler.
type FlashStats struct {
	Reads    uint32 `json:"reads"`
	Writes   uint32 `json:"writes"`
	Erases   uint32 `json:"erases"`
	Failures uint32 `json:"failures"`
}

// LinkState is retained on bridge/state.
type LinkState struct {
	Level  string `json:"level"`  // "idle","up","degraded","error"
	Status string `json:"status"` // short machine string
	Error  string `json:"error,omitempty"`
	TSms   int64  `json:"ts_ms"`
}
