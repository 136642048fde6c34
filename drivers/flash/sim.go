package flash

import (
	"errors"
	"sync"
)

var (
	ErrInjected    = errors.New("flash: injected fault")
	ErrSimBounds   = errors.New("flash: sim access out of bounds")
	ErrImageSize   = errors.New("flash: image size mismatch")
	ErrSimGeometry = errors.New("flash: bad sim geometry")
)

// FaultMode selects what a failing operation leaves behind.
type FaultMode uint8

const (
	// FaultNoEffect fails without touching the cells.
	FaultNoEffect FaultMode = iota
	// FaultApplied performs the operation but still reports failure.
	FaultApplied
	// FaultCorrupt programs the complement of the data and reports failure.
	// For erase it behaves like FaultNoEffect.
	FaultCorrupt
)

// Fault fails Count operations of kind Op after letting Skip of them through.
type Fault struct {
	Op    Op
	Mode  FaultMode
	Skip  int
	Count int
}

// SimOp is one trace entry. Off is device-relative; for erase it is the
// first block index and Len the block count.
type SimOp struct {
	Op  Op
	Off int64
	Len int64
	Err bool
}

type SimStats struct {
	Reads, Writes, Erases int
}

// Sim is a RAM NOR flash: erase sets bytes to 0xFF, writes can only clear
// bits (new = old AND data).
type Sim struct {
	mu         sync.Mutex
	base       int64
	mem        []byte
	writeBlock int64
	eraseBlock int64
	faults     []Fault
	stats      SimStats
	trace      []SimOp
}

// NewSim builds an erased device of size bytes mapped at base.
func NewSim(base, size, eraseBlock, writeBlock uint32) (*Sim, error) {
	if eraseBlock == 0 || writeBlock == 0 || size == 0 ||
		size%eraseBlock != 0 || eraseBlock%writeBlock != 0 {
		return nil, ErrSimGeometry
	}
	s := &Sim{
		base:       int64(base),
		mem:        make([]byte, size),
		writeBlock: int64(writeBlock),
		eraseBlock: int64(eraseBlock),
	}
	fill(s.mem, ErasedByte)
	return s, nil
}

func (s *Sim) Base() int64           { return s.base }
func (s *Sim) Size() int64           { return int64(len(s.mem)) }
func (s *Sim) WriteBlockSize() int64 { return s.writeBlock }
func (s *Sim) EraseBlockSize() int64 { return s.eraseBlock }

func (s *Sim) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inBounds(off, int64(len(p))) {
		return 0, ErrSimBounds
	}
	s.stats.Reads++
	if f, hit := s.fault(OpRead); hit {
		s.record(OpRead, off, int64(len(p)), true)
		if f.Mode == FaultNoEffect {
			return 0, ErrInjected
		}
		copy(p, s.mem[off:])
		return len(p), ErrInjected
	}
	copy(p, s.mem[off:])
	s.record(OpRead, off, int64(len(p)), false)
	return len(p), nil
}

func (s *Sim) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inBounds(off, int64(len(p))) {
		return 0, ErrSimBounds
	}
	s.stats.Writes++
	if f, hit := s.fault(OpWrite); hit {
		s.record(OpWrite, off, int64(len(p)), true)
		switch f.Mode {
		case FaultApplied:
			s.program(p, off)
		case FaultCorrupt:
			for i, b := range p {
				s.mem[off+int64(i)] &= ^b
			}
		}
		return 0, ErrInjected
	}
	s.program(p, off)
	s.record(OpWrite, off, int64(len(p)), false)
	return len(p), nil
}

func (s *Sim) EraseBlocks(start, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if start < 0 || n <= 0 || !s.inBounds(start*s.eraseBlock, n*s.eraseBlock) {
		return ErrSimBounds
	}
	s.stats.Erases++
	if f, hit := s.fault(OpErase); hit {
		s.record(OpErase, start, n, true)
		if f.Mode == FaultApplied {
			fill(s.mem[start*s.eraseBlock:(start+n)*s.eraseBlock], ErasedByte)
		}
		return ErrInjected
	}
	fill(s.mem[start*s.eraseBlock:(start+n)*s.eraseBlock], ErasedByte)
	s.record(OpErase, start, n, false)
	return nil
}

// InjectFault queues f. Faults are consumed in order per op kind.
func (s *Sim) InjectFault(f Fault) {
	s.mu.Lock()
	s.faults = append(s.faults, f)
	s.mu.Unlock()
}

func (s *Sim) ClearFaults() {
	s.mu.Lock()
	s.faults = nil
	s.mu.Unlock()
}

func (s *Sim) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Trace returns a copy of the operation log and clears it.
func (s *Sim) Trace() []SimOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.trace
	s.trace = nil
	return out
}

// Image returns a copy of the whole device.
func (s *Sim) Image() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.mem))
	copy(out, s.mem)
	return out
}

// LoadImage replaces the device contents; img must match the device size.
func (s *Sim) LoadImage(img []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(img) != len(s.mem) {
		return ErrImageSize
	}
	copy(s.mem, img)
	return nil
}

func (s *Sim) inBounds(off, n int64) bool {
	return off >= 0 && n >= 0 && off+n <= int64(len(s.mem))
}

func (s *Sim) program(p []byte, off int64) {
	for i, b := range p {
		s.mem[off+int64(i)] &= b
	}
}

func (s *Sim) record(o Op, off, n int64, failed bool) {
	s.trace = append(s.trace, SimOp{Op: o, Off: off, Len: n, Err: failed})
}

// fault consumes the first pending fault for o.
func (s *Sim) fault(o Op) (Fault, bool) {
	for i := range s.faults {
		f := &s.faults[i]
		if f.Op != o || f.Count <= 0 {
			continue
		}
		if f.Skip > 0 {
			f.Skip--
			return Fault{}, false
		}
		f.Count--
		out := *f
		if f.Count == 0 {
			s.faults = append(s.faults[:i], s.faults[i+1:]...)
		}
		return out, true
	}
	return Fault{}, false
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
