package flashlog

import (
	"testing"

	"lampcode-go/drivers/flash"
	"lampcode-go/errcode"
	"lampcode-go/state"
)

const (
	base     = 0x3E000
	pageSize = 256
)

type rig struct {
	sim    *flash.Sim
	p      *flash.Primitive
	region Region
}

func newRig(t *testing.T, pages, slot uint32) *rig {
	t.Helper()
	sim, err := flash.NewSim(base, pages*pageSize, pageSize, 4)
	if err != nil {
		t.Fatalf("NewSim: %v", err)
	}
	region, err := NewRegion(base, base+pages*pageSize, slot, pageSize)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	return &rig{sim: sim, p: flash.NewPrimitive(sim, nil), region: region}
}

// open returns a fresh Log over the rig, as after a reboot.
func (r *rig) open(t *testing.T) *Log {
	t.Helper()
	l, err := Open(r.p, r.region, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func (r *rig) recover(t *testing.T) (*Log, state.Record, Recovery) {
	t.Helper()
	l := r.open(t)
	rec, how, err := l.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	return l, rec, how
}

func distinct(i int) state.Record {
	return state.Encode(state.Zero, 1, uint8(i), uint8(i>>8), 0x40)
}

func TestRecoverEmpty(t *testing.T) {
	r := newRig(t, 1, 4)
	l, rec, how := r.recover(t)
	if how != RecoveryEmpty || rec != state.Zero {
		t.Fatalf("got %v %08X", how, uint32(rec))
	}
	if l.Cursor() != base || l.Used() != 0 || l.Full() {
		t.Fatalf("cursor=%X used=%d full=%v", l.Cursor(), l.Used(), l.Full())
	}
}

func TestAppendThenRestart(t *testing.T) {
	r := newRig(t, 1, 4)
	l, _, _ := r.recover(t)

	x := state.Encode(state.Zero, 1, 0, 0, 0)
	cur, err := l.Append(x)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if cur != base+4 {
		t.Fatalf("cursor = %X, want %X", cur, base+4)
	}

	l2, rec, how := r.recover(t)
	if how != RecoveryFound || rec != x {
		t.Fatalf("after restart got %v %08X", how, uint32(rec))
	}
	if l2.Cursor() != base+4 || l2.Last() != x {
		t.Fatalf("cursor = %X", l2.Cursor())
	}
}

func TestWearProgression(t *testing.T) {
	r := newRig(t, 1, 4)
	l, _, _ := r.recover(t)
	n := int(l.Capacity())
	if n != pageSize/4 {
		t.Fatalf("capacity = %d", n)
	}
	r.sim.Trace()

	for i := 0; i < n; i++ {
		if _, err := l.Append(distinct(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	var writes []int64
	for _, op := range r.sim.Trace() {
		switch op.Op {
		case flash.OpErase:
			t.Fatalf("erase during the first %d appends", n)
		case flash.OpWrite:
			writes = append(writes, op.Off)
		}
	}
	if len(writes) != n {
		t.Fatalf("%d writes, want %d", len(writes), n)
	}
	for i, off := range writes {
		if off != int64(i*4) {
			t.Fatalf("write %d at offset %d, want %d", i, off, i*4)
		}
	}
	if !l.Full() || l.Used() != uint32(n) {
		t.Fatalf("full=%v used=%d", l.Full(), l.Used())
	}

	// One more: exactly one erase, then a write at Start. Erase counts
	// region erases (Stats().Erases); a multi-page region issues one
	// primitive erase per page, see TestEraseCountsRegionOnce.
	next := distinct(n)
	if _, err := l.Append(next); err != nil {
		t.Fatalf("append %d: %v", n, err)
	}
	var erases, w int
	var lastWrite int64 = -1
	for _, op := range r.sim.Trace() {
		switch op.Op {
		case flash.OpErase:
			erases++
			if w > 0 {
				t.Fatal("write issued before erase")
			}
		case flash.OpWrite:
			w++
			lastWrite = op.Off
		}
	}
	if erases != 1 || w != 1 || lastWrite != 0 {
		t.Fatalf("erases=%d writes=%d at=%d", erases, w, lastWrite)
	}
	if st := l.Stats(); st.Erases != 1 || st.Writes != uint32(n+1) {
		t.Fatalf("stats = %+v", st)
	}

	_, rec, how := r.recover(t)
	if how != RecoveryFound || rec != next {
		t.Fatalf("recovered %v %08X, want %08X", how, uint32(rec), uint32(next))
	}
}

func TestRecoverFullThenAppendErases(t *testing.T) {
	r := newRig(t, 1, 4)
	l, _, _ := r.recover(t)
	n := int(l.Capacity())
	for i := 0; i < n; i++ {
		if _, err := l.Append(distinct(i)); err != nil {
			t.Fatal(err)
		}
	}

	l2, rec, how := r.recover(t)
	if how != RecoveryFull || rec != distinct(n-1) || !l2.Full() {
		t.Fatalf("got %v %08X full=%v", how, uint32(rec), l2.Full())
	}
	if _, err := l2.Append(distinct(7)); err != nil {
		t.Fatal(err)
	}
	if l2.Stats().Erases != 1 || l2.Cursor() != base+4 {
		t.Fatalf("stats=%+v cursor=%X", l2.Stats(), l2.Cursor())
	}
}

func TestCrashBetweenWrites(t *testing.T) {
	r := newRig(t, 1, 4)
	l, _, _ := r.recover(t)

	// Snapshot after every completed write, including across a wrap.
	n := int(l.Capacity()) + 5
	snaps := make([][]byte, n)
	for i := 0; i < n; i++ {
		if _, err := l.Append(distinct(i)); err != nil {
			t.Fatal(err)
		}
		snaps[i] = r.sim.Image()
	}

	for i, img := range snaps {
		if err := r.sim.LoadImage(img); err != nil {
			t.Fatal(err)
		}
		_, rec, _ := r.recover(t)
		if rec != distinct(i) {
			t.Fatalf("snapshot %d: recovered %08X, want %08X", i, uint32(rec), uint32(distinct(i)))
		}
	}
}

func TestAppendRejectsErased(t *testing.T) {
	r := newRig(t, 1, 4)
	l, _, _ := r.recover(t)
	if _, err := l.Append(state.Erased); errcode.Of(err) != errcode.InvalidRecord {
		t.Fatalf("expected invalid_record, got %v", err)
	}
	if r.sim.Stats().Writes != 0 {
		t.Fatal("sentinel reached the device")
	}
}

func TestAppendRetriesSameSlot(t *testing.T) {
	r := newRig(t, 1, 4)
	l, _, _ := r.recover(t)
	r.sim.InjectFault(flash.Fault{Op: flash.OpWrite, Mode: flash.FaultNoEffect, Count: 1})

	x := distinct(3)
	cur, err := l.Append(x)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if cur != base+4 {
		t.Fatalf("cursor = %X", cur)
	}
	if st := l.Stats(); st.Retries != 1 || st.Skipped != 0 || st.Writes != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestAppendAcceptsLandedWrite(t *testing.T) {
	r := newRig(t, 1, 4)
	l, _, _ := r.recover(t)
	r.sim.InjectFault(flash.Fault{Op: flash.OpWrite, Mode: flash.FaultApplied, Count: 1})

	x := distinct(9)
	if _, err := l.Append(x); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if r.sim.Stats().Writes != 1 || l.Cursor() != base+4 {
		t.Fatalf("writes=%d cursor=%X", r.sim.Stats().Writes, l.Cursor())
	}
	if _, rec, _ := r.recover(t); rec != x {
		t.Fatalf("recovered %08X", uint32(rec))
	}
}

func TestAppendSkipsCorruptSlot(t *testing.T) {
	// 8-byte slots: the padding tells a damaged slot from a record.
	r := newRig(t, 1, 8)
	l, _, _ := r.recover(t)
	first := distinct(1)
	if _, err := l.Append(first); err != nil {
		t.Fatal(err)
	}

	r.sim.InjectFault(flash.Fault{Op: flash.OpWrite, Mode: flash.FaultCorrupt, Count: 1})
	x := distinct(2)
	cur, err := l.Append(x)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if cur != base+24 {
		t.Fatalf("cursor = %X, want %X", cur, base+24)
	}
	if st := l.Stats(); st.Skipped != 1 {
		t.Fatalf("stats = %+v", st)
	}

	l2, rec, how := r.recover(t)
	if how != RecoveryFound || rec != x || l2.Cursor() != base+24 {
		t.Fatalf("recovered %v %08X cursor=%X", how, uint32(rec), l2.Cursor())
	}
}

func TestAppendGivesUp(t *testing.T) {
	r := newRig(t, 1, 4)
	l, _, _ := r.recover(t)
	r.sim.InjectFault(flash.Fault{Op: flash.OpWrite, Mode: flash.FaultNoEffect, Count: DefaultMaxAttempts})

	cur, err := l.Append(distinct(1))
	if errcode.Of(err) != errcode.IOFailure {
		t.Fatalf("expected io_failure, got %v", err)
	}
	if cur != base || l.Last() != state.Zero {
		t.Fatalf("failed append moved state: cursor=%X last=%08X", cur, uint32(l.Last()))
	}

	// The log is still usable.
	if _, err := l.Append(distinct(1)); err != nil {
		t.Fatalf("append after failure: %v", err)
	}
	if l.Cursor() != base+4 {
		t.Fatalf("cursor = %X", l.Cursor())
	}
}

func TestAppendErasesWhenCursorSlotDirty(t *testing.T) {
	r := newRig(t, 1, 4)
	// Data at Start, but the log never scanned it.
	if _, err := r.sim.WriteAt([]byte{1, 2, 3, 4}, 0); err != nil {
		t.Fatal(err)
	}
	l := r.open(t)

	x := distinct(5)
	if _, err := l.Append(x); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if l.Stats().Erases != 1 || l.Cursor() != base+4 {
		t.Fatalf("stats=%+v cursor=%X", l.Stats(), l.Cursor())
	}
	if _, rec, _ := r.recover(t); rec != x {
		t.Fatalf("recovered %08X", uint32(rec))
	}
}

func TestEraseLastPageFirst(t *testing.T) {
	r := newRig(t, 4, 4)
	l, _, _ := r.recover(t)
	r.sim.Trace()

	if err := l.Erase(); err != nil {
		t.Fatal(err)
	}
	var order []int64
	for _, op := range r.sim.Trace() {
		if op.Op == flash.OpErase {
			order = append(order, op.Off)
		}
	}
	want := []int64{3, 2, 1, 0}
	if len(order) != len(want) {
		t.Fatalf("erase order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("erase order %v, want %v", order, want)
		}
	}
}

func TestEraseCountsRegionOnce(t *testing.T) {
	r := newRig(t, 2, 4)
	l, _, _ := r.recover(t)
	n := int(l.Capacity())
	for i := 0; i < n; i++ {
		if _, err := l.Append(distinct(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	r.sim.Trace()

	if _, err := l.Append(distinct(n)); err != nil {
		t.Fatal(err)
	}
	pages := 0
	for _, op := range r.sim.Trace() {
		if op.Op == flash.OpErase {
			pages++
		}
	}
	if pages != 2 {
		t.Fatalf("primitive erases = %d, want one per page", pages)
	}
	if st := l.Stats(); st.Erases != 1 {
		t.Fatalf("region erases = %d, want 1", st.Erases)
	}
}

func TestInterruptedEraseKeepsPrefix(t *testing.T) {
	r := newRig(t, 2, 4)
	l, _, _ := r.recover(t)
	n := int(l.Capacity())
	for i := 0; i < n; i++ {
		if _, err := l.Append(distinct(i)); err != nil {
			t.Fatal(err)
		}
	}

	// Page 1 erases, then page 0 keeps failing.
	r.sim.InjectFault(flash.Fault{Op: flash.OpErase, Mode: flash.FaultNoEffect, Skip: 1, Count: DefaultMaxAttempts})
	if _, err := l.Append(distinct(n)); errcode.Of(err) != errcode.IOFailure {
		t.Fatalf("expected io_failure, got %v", err)
	}
	r.sim.ClearFaults()

	l2, rec, how := r.recover(t)
	perPage := pageSize / 4
	if how != RecoveryFound || rec != distinct(perPage-1) || l2.Cursor() != base+pageSize {
		t.Fatalf("got %v %08X cursor=%X", how, uint32(rec), l2.Cursor())
	}

	// Writing on continues in page 1; nothing older resurfaces.
	x := distinct(1000)
	if _, err := l2.Append(x); err != nil {
		t.Fatal(err)
	}
	if _, rec, _ := r.recover(t); rec != x {
		t.Fatalf("recovered %08X, want %08X", uint32(rec), uint32(x))
	}
}

func TestRecoverReadFailure(t *testing.T) {
	r := newRig(t, 1, 4)
	l := r.open(t)
	r.sim.InjectFault(flash.Fault{Op: flash.OpRead, Mode: flash.FaultNoEffect, Count: 1})

	rec, _, err := l.Recover()
	if errcode.Of(err) != errcode.IOFailure {
		t.Fatalf("expected io_failure, got %v", err)
	}
	if rec != state.Zero {
		t.Fatalf("rec = %08X", uint32(rec))
	}
}

// busyDevice fails every read with a driver busy code.
type busyDevice struct{ *flash.Sim }

func (busyDevice) ReadAt(p []byte, off int64) (int, error) {
	return 0, errcode.New(errcode.Busy, "test.read", "bus held")
}

func TestRecoverReadFailureIsIOFailure(t *testing.T) {
	r := newRig(t, 1, 4)
	p := flash.NewPrimitive(busyDevice{r.sim}, nil)
	l, err := Open(p, r.region, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, _, err = l.Recover()
	if errcode.Of(err) != errcode.IOFailure {
		t.Fatalf("expected io_failure, got %v", err)
	}
}

func TestRecoverSkippedFirstSlotIsFound(t *testing.T) {
	r := newRig(t, 1, 8)
	// Record bytes landed but the padding did not stay erased.
	if _, err := r.sim.WriteAt([]byte{1, 2, 3, 4, 0, 0, 0, 0}, 0); err != nil {
		t.Fatal(err)
	}
	l, rec, how := r.recover(t)
	if how != RecoveryFound || rec != state.Zero {
		t.Fatalf("got %v %08X, want found with zero record", how, uint32(rec))
	}
	if l.Cursor() != base+8 || l.Used() != 1 {
		t.Fatalf("cursor=%X used=%d", l.Cursor(), l.Used())
	}

	x := distinct(1)
	if cur, err := l.Append(x); err != nil || cur != base+16 {
		t.Fatalf("append: cursor=%X err=%v", cur, err)
	}
	_, rec, how = r.recover(t)
	if how != RecoveryFound || rec != x {
		t.Fatalf("after append got %v %08X", how, uint32(rec))
	}
}

func TestRegionValidation(t *testing.T) {
	tests := []struct {
		name string
		r    Region
	}{
		{"empty", Region{Start: base, End: base, SlotSize: 4, PageSize: pageSize}},
		{"inverted", Region{Start: base + pageSize, End: base, SlotSize: 4, PageSize: pageSize}},
		{"slot_too_small", Region{Start: base, End: base + pageSize, SlotSize: 2, PageSize: pageSize}},
		{"no_page", Region{Start: base, End: base + pageSize, SlotSize: 4}},
		{"start_unaligned", Region{Start: base + 4, End: base + 4 + pageSize, SlotSize: 4, PageSize: pageSize}},
		{"partial_page", Region{Start: base, End: base + pageSize + 4, SlotSize: 4, PageSize: pageSize}},
		{"slot_straddles", Region{Start: base, End: base + 3*pageSize, SlotSize: 3 * pageSize / 2, PageSize: pageSize}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.r.Validate(); errcode.Of(err) != errcode.RegionMisconfigured {
				t.Fatalf("expected region_misconfigured, got %v", err)
			}
		})
	}
}

func TestOpenChecksDevice(t *testing.T) {
	r := newRig(t, 1, 4)
	tests := []struct {
		name string
		reg  Region
	}{
		{"outside", Region{Start: base + pageSize, End: base + 2*pageSize, SlotSize: 4, PageSize: pageSize}},
		{"page_vs_erase_block", Region{Start: base, End: base + pageSize/2, SlotSize: 4, PageSize: pageSize / 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(r.p, tt.reg, Options{}); errcode.Of(err) != errcode.RegionMisconfigured {
				t.Fatalf("expected region_misconfigured, got %v", err)
			}
		})
	}

	// 8-byte write blocks cannot hold 4-byte slots.
	wide, err := flash.NewSim(base, pageSize, pageSize, 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(flash.NewPrimitive(wide, nil), r.region, Options{}); errcode.Of(err) != errcode.RegionMisconfigured {
		t.Fatalf("expected region_misconfigured for slot vs write block, got %v", err)
	}

	reg, err := NewRegion(0x3E000, 0x3F000, 4, 0x1000)
	if err != nil || reg.Capacity() != 1024 || reg.Pages() != 1 {
		t.Fatalf("reference region: %+v cap=%d err=%v", reg, reg.Capacity(), err)
	}
}
