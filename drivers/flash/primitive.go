package flash

import (
	"sync/atomic"

	"lampcode-go/errcode"
	"lampcode-go/x/timex"
)

// Primitive is the raw read/write/erase surface used by the log. One
// operation may be in flight at a time; an overlapping call fails with
// errcode.Busy instead of queueing.
type Primitive struct {
	dev  Device
	geo  Geometry
	busy atomic.Bool
	ev   EventEmitter
}

// NewPrimitive wraps dev. ev may be nil.
func NewPrimitive(dev Device, ev EventEmitter) *Primitive {
	return &Primitive{dev: dev, geo: GeometryOf(dev), ev: ev}
}

func (p *Primitive) Geometry() Geometry { return p.geo }

// Read fills buf from absolute address addr.
func (p *Primitive) Read(addr uint32, buf []byte) error {
	const op = "flash.read"
	if !p.geo.Contains(addr, uint32(len(buf))) {
		return errcode.New(errcode.OutOfRange, op, "outside device")
	}
	if !p.acquire() {
		return errcode.New(errcode.Busy, op, "operation in flight")
	}
	n, err := p.dev.ReadAt(buf, int64(addr-p.geo.Base))
	p.busy.Store(false)
	err = ioErr(op, err, n, len(buf))
	p.emit(OpRead, addr, uint32(len(buf)), err)
	return err
}

// Write programs data at addr. Address and length must be multiples of the
// device write block.
func (p *Primitive) Write(addr uint32, data []byte) error {
	const op = "flash.write"
	if !p.geo.Contains(addr, uint32(len(data))) {
		return errcode.New(errcode.OutOfRange, op, "outside device")
	}
	if addr%p.geo.WriteBlock != 0 || uint32(len(data))%p.geo.WriteBlock != 0 {
		return errcode.New(errcode.Misaligned, op, "not write-block aligned")
	}
	if !p.acquire() {
		return errcode.New(errcode.Busy, op, "operation in flight")
	}
	n, err := p.dev.WriteAt(data, int64(addr-p.geo.Base))
	p.busy.Store(false)
	err = ioErr(op, err, n, len(data))
	p.emit(OpWrite, addr, uint32(len(data)), err)
	return err
}

// Erase resets blocks erase blocks starting at addr, which must be
// erase-block aligned.
func (p *Primitive) Erase(addr, blocks uint32) error {
	const op = "flash.erase"
	if p.geo.EraseBlock == 0 || addr%p.geo.EraseBlock != 0 {
		return errcode.New(errcode.Misaligned, op, "not erase-block aligned")
	}
	if blocks == 0 || !p.geo.Contains(addr, blocks*p.geo.EraseBlock) {
		return errcode.New(errcode.OutOfRange, op, "outside device")
	}
	if !p.acquire() {
		return errcode.New(errcode.Busy, op, "operation in flight")
	}
	start := int64((addr - p.geo.Base) / p.geo.EraseBlock)
	err := p.dev.EraseBlocks(start, int64(blocks))
	p.busy.Store(false)
	if err != nil {
		err = errcode.Wrap(errcode.MapDriverErr(err), op, err)
	}
	p.emit(OpErase, addr, blocks, err)
	return err
}

func (p *Primitive) acquire() bool { return p.busy.CompareAndSwap(false, true) }

func (p *Primitive) emit(o Op, addr, n uint32, err error) {
	if p.ev == nil {
		return
	}
	p.ev.Emit(Event{Op: o, Addr: addr, Len: n, Err: err, TSms: timex.NowMs()})
}

func ioErr(op string, err error, n, want int) error {
	if err != nil {
		return errcode.Wrap(errcode.MapDriverErr(err), op, err)
	}
	if n != want {
		return errcode.New(errcode.IOFailure, op, "short transfer")
	}
	return nil
}
