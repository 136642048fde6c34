// Package flashlog is an append-only log of fixed-size records in a flash
// region. Records are written to consecutive slots from Start; the newest
// is the last non-erased slot. When no slot is left the whole region is
// erased and writing starts over at Start.
package flashlog

import (
	"lampcode-go/drivers/flash"
	"lampcode-go/errcode"
	"lampcode-go/state"
	"lampcode-go/x/logx"
)

// Recovery is the outcome of scanning the region.
type Recovery uint8

const (
	// RecoveryEmpty: Start reads erased; nothing stored.
	RecoveryEmpty Recovery = iota
	// RecoveryFound: a record precedes the first erased slot.
	RecoveryFound
	// RecoveryFull: no erased slot; the next append erases first.
	RecoveryFull
)

func (r Recovery) String() string {
	switch r {
	case RecoveryEmpty:
		return "empty"
	case RecoveryFound:
		return "found"
	case RecoveryFull:
		return "full"
	}
	return "unknown"
}

const DefaultMaxAttempts = 3

type Options struct {
	// MaxAttempts bounds failed write attempts per Append. Default 3.
	MaxAttempts int
	Log         *logx.Logger
}

type Stats struct {
	Writes  uint32 // records appended
	Erases  uint32 // whole-region erases
	Retries uint32 // failed write attempts
	Skipped uint32 // slots abandoned after a bad write
}

// Log owns a region. Not safe for concurrent use.
type Log struct {
	p      *flash.Primitive
	region Region
	max    int
	log    *logx.Logger

	cursor uint32
	full   bool
	last   state.Record
	stats  Stats
	buf    []byte
}

// Open checks region against the device behind p. The cursor sits at Start
// until Recover runs.
func Open(p *flash.Primitive, region Region, opts Options) (*Log, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if err := region.Fits(p.Geometry()); err != nil {
		return nil, err
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Log == nil {
		opts.Log = logx.Discard()
	}
	return &Log{
		p:      p,
		region: region,
		max:    opts.MaxAttempts,
		log:    opts.Log,
		cursor: region.Start,
		last:   state.Zero,
		buf:    make([]byte, region.SlotSize),
	}, nil
}

// Recover scans from Start one slot at a time and stops at the first erased
// slot. It returns the newest record (state.Zero when empty) and sets the
// cursor. Slots holding something that is not a record are passed over;
// the region is only Empty when the erased slot is the first one, so a
// skipped slot before it reports Found with state.Zero.
func (l *Log) Recover() (state.Record, Recovery, error) {
	last := state.Zero
	for addr := l.region.Start; addr < l.region.End; addr += l.region.SlotSize {
		if err := l.p.Read(addr, l.buf); err != nil {
			l.log.Error("recover read failed", logx.Hex("addr", addr), logx.Err(err))
			return state.Zero, RecoveryEmpty, errcode.Wrap(errcode.IOFailure, "flashlog.recover", err)
		}
		if erased(l.buf) {
			l.cursor, l.full, l.last = addr, false, last
			if addr == l.region.Start {
				l.log.Info("recover empty", logx.Hex("cursor", addr))
				return last, RecoveryEmpty, nil
			}
			l.log.Info("recover found", logx.Hex("cursor", addr), logx.Hex("record", uint32(last)))
			return last, RecoveryFound, nil
		}
		if rec, ok := l.decodeSlot(); ok {
			last = rec
		}
	}
	l.cursor, l.full, l.last = l.region.End, true, last
	l.log.Info("recover full", logx.Hex("record", uint32(last)))
	return last, RecoveryFull, nil
}

// Append writes rec at the cursor, erasing the region first when it is
// full. A failed write is checked by reading the slot back: a slot holding
// rec counts as written, an erased slot is retried, anything else is
// skipped. It gives up with errcode.IOFailure after MaxAttempts failures.
func (l *Log) Append(rec state.Record) (uint32, error) {
	const op = "flashlog.append"
	if !rec.Valid() {
		return l.cursor, errcode.New(errcode.InvalidRecord, op, "erased sentinel")
	}

	var lastErr error
	for failures := 0; failures < l.max; {
		if l.full || l.cursor+l.region.SlotSize > l.region.End {
			l.full = true
			if err := l.Erase(); err != nil {
				lastErr = err
				failures++
				continue
			}
		}

		addr := l.cursor
		if err := l.p.Read(addr, l.buf); err != nil {
			lastErr = err
			failures++
			l.stats.Retries++
			continue
		}
		if !erased(l.buf) {
			// Something is already here; the scan was wrong about the tail.
			l.log.Warn("slot not erased, erasing region", logx.Hex("addr", addr))
			l.full = true
			failures++
			continue
		}

		l.fillSlot(rec)
		err := l.p.Write(addr, l.buf)
		if err == nil {
			l.commit(addr, rec)
			return l.cursor, nil
		}
		lastErr = err
		failures++
		l.stats.Retries++
		l.log.Warn("write failed", logx.Hex("addr", addr), logx.Err(err))

		if rerr := l.p.Read(addr, l.buf); rerr != nil {
			// Unknown contents; do not reuse the slot.
			l.skip(addr)
			continue
		}
		if got, ok := l.decodeSlot(); ok && got == rec {
			l.log.Info("write landed despite error", logx.Hex("addr", addr))
			l.commit(addr, rec)
			return l.cursor, nil
		}
		if !erased(l.buf) {
			l.skip(addr)
		}
	}
	l.log.Error("append gave up", logx.Hex("cursor", l.cursor), logx.Err(lastErr))
	if lastErr == nil {
		return l.cursor, errcode.New(errcode.IOFailure, op, "attempts exhausted")
	}
	return l.cursor, errcode.Wrap(errcode.IOFailure, op, lastErr)
}

// Erase resets the whole region, last page first, so an interrupted erase
// never leaves old records after an erased gap. The cursor returns to Start
// only when every page is erased.
func (l *Log) Erase() error {
	pages := l.region.Pages()
	blocks := l.region.PageSize / l.p.Geometry().EraseBlock
	for i := pages; i > 0; i-- {
		addr := l.region.Start + (i-1)*l.region.PageSize
		if err := l.p.Erase(addr, blocks); err != nil {
			l.full = true
			l.log.Error("erase failed", logx.Hex("page", addr), logx.Err(err))
			return errcode.Wrap(errcode.Of(err), "flashlog.erase", err)
		}
	}
	l.cursor = l.region.Start
	l.full = false
	l.stats.Erases++
	l.log.Info("region erased", logx.Hex("start", l.region.Start), logx.U32("pages", pages))
	return nil
}

func (l *Log) Region() Region     { return l.region }
func (l *Log) Cursor() uint32     { return l.cursor }
func (l *Log) Capacity() uint32   { return l.region.Capacity() }
func (l *Log) Full() bool         { return l.full || l.cursor >= l.region.End }
func (l *Log) Last() state.Record { return l.last }
func (l *Log) Stats() Stats       { return l.stats }

// Used is the number of slots consumed since the last erase.
func (l *Log) Used() uint32 {
	return (l.cursor - l.region.Start) / l.region.SlotSize
}

func (l *Log) commit(addr uint32, rec state.Record) {
	l.cursor = addr + l.region.SlotSize
	l.last = rec
	l.stats.Writes++
	l.log.Debug("append", logx.Hex("addr", addr), logx.Hex("record", uint32(rec)))
}

func (l *Log) skip(addr uint32) {
	l.cursor = addr + l.region.SlotSize
	l.stats.Skipped++
	l.log.Warn("slot skipped", logx.Hex("addr", addr))
}

func (l *Log) fillSlot(rec state.Record) {
	state.PutBytes(l.buf, rec)
	for i := state.Size; i < len(l.buf); i++ {
		l.buf[i] = flash.ErasedByte
	}
}

// decodeSlot reads the record from l.buf. A slot whose padding was touched
// is not a record.
func (l *Log) decodeSlot() (state.Record, bool) {
	for _, b := range l.buf[state.Size:] {
		if b != flash.ErasedByte {
			return 0, false
		}
	}
	rec := state.FromBytes(l.buf)
	return rec, rec.Valid()
}

func erased(b []byte) bool {
	for _, v := range b {
		if v != flash.ErasedByte {
			return false
		}
	}
	return true
}
