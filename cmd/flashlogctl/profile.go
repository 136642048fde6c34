package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"lampcode-go/drivers/flash"
	"lampcode-go/errcode"
	"lampcode-go/flashlog"
	"lampcode-go/state"
)

// profile describes the flash region an image holds. Hex integers
// (0x3E000) are accepted.
type profile struct {
	Start       uint32 `yaml:"start"`
	End         uint32 `yaml:"end"`
	Slot        uint32 `yaml:"slot"`
	Page        uint32 `yaml:"page"`
	WriteBlock  uint32 `yaml:"write_block"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// nrf52840dk layout.
var defaultProfile = profile{
	Start:      0x3E000,
	End:        0x3F000,
	Slot:       state.Size,
	Page:       4096,
	WriteBlock: state.Size,
}

func loadProfile(path string) (profile, error) {
	p := defaultProfile
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, errcode.Wrap(errcode.InvalidConfig, "flashlogctl.profile", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, errcode.Wrap(errcode.InvalidConfig, "flashlogctl.profile", err)
	}
	return p, nil
}

func (p profile) region() (flashlog.Region, error) {
	return flashlog.NewRegion(p.Start, p.End, p.Slot, p.Page)
}

// image is a region-sized file backed by a simulated NOR device whose base
// is the region start, so log addresses match the target.
type image struct {
	path   string
	region flashlog.Region
	sim    *flash.Sim
	log    *flashlog.Log
}

// openImage loads path into a simulator. A missing file is a freshly erased
// region.
func openImage(path string, p profile, opts flashlog.Options) (*image, error) {
	region, err := p.region()
	if err != nil {
		return nil, err
	}
	sim, err := flash.NewSim(region.Start, region.Len(), region.PageSize, p.WriteBlock)
	if err != nil {
		return nil, errcode.Wrap(errcode.RegionMisconfigured, "flashlogctl.image", err)
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errcode.Wrap(errcode.IOFailure, "flashlogctl.image", err)
	default:
		if err := sim.LoadImage(data); err != nil {
			return nil, errcode.Wrap(errcode.RegionMisconfigured, "flashlogctl.image", err)
		}
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = p.MaxAttempts
	}
	l, err := flashlog.Open(flash.NewPrimitive(sim, nil), region, opts)
	if err != nil {
		return nil, err
	}
	return &image{path: path, region: region, sim: sim, log: l}, nil
}

func (im *image) save() error {
	if err := os.WriteFile(im.path, im.sim.Image(), 0o644); err != nil {
		return errcode.Wrap(errcode.IOFailure, "flashlogctl.save", err)
	}
	return nil
}

// slots returns the address and raw record of every programmed slot.
func (im *image) slots() []slotView {
	raw := im.sim.Image()
	var out []slotView
	for off := uint32(0); off < im.region.Len(); off += im.region.SlotSize {
		rec := state.FromBytes(raw[off : off+state.Size])
		if rec == state.Erased {
			continue
		}
		out = append(out, slotView{Addr: im.region.Start + off, Rec: rec})
	}
	return out
}

type slotView struct {
	Addr uint32
	Rec  state.Record
}
