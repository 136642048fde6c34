package flashlog

import (
	"lampcode-go/drivers/flash"
	"lampcode-go/errcode"
	"lampcode-go/state"
	"lampcode-go/x/mathx"
)

// Region is the span of flash owned by the log. End is exclusive.
// SlotSize is the stride between records: at least one record wide, and a
// multiple of the device write block. Bytes past the record are left 0xFF.
type Region struct {
	Start    uint32
	End      uint32
	SlotSize uint32
	PageSize uint32
}

// NewRegion builds and validates a region.
func NewRegion(start, end, slot, page uint32) (Region, error) {
	r := Region{Start: start, End: end, SlotSize: slot, PageSize: page}
	return r, r.Validate()
}

// Validate checks the region on its own terms.
func (r Region) Validate() error {
	const op = "flashlog.region"
	switch {
	case r.End <= r.Start:
		return errcode.New(errcode.RegionMisconfigured, op, "end must be above start")
	case r.SlotSize < state.Size:
		return errcode.New(errcode.RegionMisconfigured, op, "slot smaller than a record")
	case r.PageSize == 0:
		return errcode.New(errcode.RegionMisconfigured, op, "page size is zero")
	case r.Start%r.PageSize != 0:
		return errcode.New(errcode.RegionMisconfigured, op, "start not page aligned")
	case r.Len()%r.PageSize != 0:
		return errcode.New(errcode.RegionMisconfigured, op, "size not a whole number of pages")
	case r.Len()%r.SlotSize != 0:
		return errcode.New(errcode.RegionMisconfigured, op, "size not a whole number of slots")
	case r.PageSize%r.SlotSize != 0:
		return errcode.New(errcode.RegionMisconfigured, op, "slots straddle pages")
	}
	return nil
}

// Fits checks the region against a device.
func (r Region) Fits(g flash.Geometry) error {
	const op = "flashlog.region"
	switch {
	case !g.Contains(r.Start, r.Len()):
		return errcode.New(errcode.RegionMisconfigured, op, "outside device")
	case !mathx.IsMultiple(r.SlotSize, g.WriteBlock):
		return errcode.New(errcode.RegionMisconfigured, op, "slot not a multiple of write block")
	case !mathx.IsMultiple(r.PageSize, g.EraseBlock):
		return errcode.New(errcode.RegionMisconfigured, op, "page not a multiple of erase block")
	}
	return nil
}

func (r Region) Len() uint32      { return r.End - r.Start }
func (r Region) Capacity() uint32 { return r.Len() / r.SlotSize }
func (r Region) Pages() uint32    { return r.Len() / r.PageSize }

// Contains reports whether addr is a slot boundary inside the region.
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Start && addr < r.End && (addr-r.Start)%r.SlotSize == 0
}
