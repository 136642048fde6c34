// Package flash drives page-erasable NOR flash.
//
// Device is the TinyGo block-device shape (machine.Flash and the SPI NOR
// driver both satisfy it). Primitive adds absolute addressing, range and
// alignment checks, a busy guard and completion events on top of a Device.
// Sim is a RAM-backed Device for host tests and image tooling.
package flash

import (
	"sync/atomic"
)

// Device is a raw block device. Offsets are relative to the start of the
// device; EraseBlocks takes erase-block indices.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64
	WriteBlockSize() int64
	EraseBlockSize() int64
	EraseBlocks(start, len int64) error
}

// Based is implemented by devices mapped at a non-zero absolute address.
type Based interface {
	Base() int64
}

// ErasedByte is what a NOR cell reads back as after erase.
const ErasedByte = 0xFF

// Geometry describes a device in absolute addresses.
type Geometry struct {
	Base       uint32
	Size       uint32
	WriteBlock uint32
	EraseBlock uint32
}

func (g Geometry) End() uint32 { return g.Base + g.Size }

// Contains reports whether [addr, addr+n) lies inside the device.
func (g Geometry) Contains(addr, n uint32) bool {
	if addr < g.Base {
		return false
	}
	off := uint64(addr - g.Base)
	return off+uint64(n) <= uint64(g.Size)
}

func GeometryOf(dev Device) Geometry {
	g := Geometry{
		Size:       uint32(dev.Size()),
		WriteBlock: uint32(dev.WriteBlockSize()),
		EraseBlock: uint32(dev.EraseBlockSize()),
	}
	if b, ok := dev.(Based); ok {
		g.Base = uint32(b.Base())
	}
	if g.WriteBlock == 0 {
		g.WriteBlock = 1
	}
	return g
}

// ------------------------
// Completion events
// ------------------------

type Op uint8

const (
	OpRead Op = iota
	OpWrite
	OpErase
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpErase:
		return "erase"
	}
	return "unknown"
}

// Event reports a finished primitive operation. Len is bytes for read and
// write, erase blocks for erase.
type Event struct {
	Op   Op
	Addr uint32
	Len  uint32
	Err  error
	TSms int64
}

// EventEmitter receives completion events. Emit must not block.
type EventEmitter interface {
	Emit(Event)
}

type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Events is a buffered, non-blocking emitter. When the buffer is full the
// event is dropped and counted.
type Events struct {
	ch      chan Event
	dropped atomic.Uint32
}

func NewEvents(n int) *Events {
	if n <= 0 {
		n = 16
	}
	return &Events{ch: make(chan Event, n)}
}

func (e *Events) Emit(ev Event) {
	select {
	case e.ch <- ev:
	default:
		e.dropped.Add(1)
	}
}

func (e *Events) C() <-chan Event { return e.ch }
func (e *Events) Dropped() uint32 { return e.dropped.Load() }
