// Package store keeps the lamp state in flash and caches the current value.
package store

import (
	"lampcode-go/errcode"
	"lampcode-go/flashlog"
	"lampcode-go/state"
	"lampcode-go/types"
	"lampcode-go/x/logx"
)

// Appender is the part of flashlog.Log the store drives.
type Appender interface {
	Recover() (state.Record, flashlog.Recovery, error)
	Append(rec state.Record) (uint32, error)
}

type Option func(*Store)

func WithLogger(l *logx.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Store merges partial updates into the cached record and appends the
// result. It is owned by one goroutine.
type Store struct {
	log   *logx.Logger
	flash Appender
	ready bool
	cur   state.Record

	pending  bool
	recovery flashlog.Recovery
}

func New(a Appender, opts ...Option) *Store {
	s := &Store{flash: a, log: logx.Discard()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init recovers the newest record. An empty region yields the zero value.
// A read failure returns the zero value with the error and leaves the store
// uninitialised.
func (s *Store) Init() (types.Light, error) {
	rec, how, err := s.flash.Recover()
	if err != nil {
		s.log.Error("recover failed", logx.Err(err))
		return state.Zero.Light(), err
	}
	if how == flashlog.RecoveryEmpty {
		rec = state.Zero
	}
	s.cur, s.recovery, s.ready, s.pending = rec, how, true, false
	l := rec.Light()
	s.log.Info("init",
		logx.Str("recovery", how.String()),
		logx.U32("state", uint32(l.State)),
		logx.U32("r", uint32(l.R)), logx.U32("g", uint32(l.G)), logx.U32("b", uint32(l.B)))
	return l, nil
}

// UpdateState stores a new on/off state, keeping the colour. Setting the
// current value does no flash I/O.
func (s *Store) UpdateState(v uint8) error {
	if !s.ready {
		return errcode.New(errcode.NotReady, "store.update_state", "not initialised")
	}
	return s.commit("store.update_state", state.WithState(s.cur, v))
}

// UpdateRGB stores a new colour, keeping the on/off state.
func (s *Store) UpdateRGB(r, g, b uint8) error {
	if !s.ready {
		return errcode.New(errcode.NotReady, "store.update_rgb", "not initialised")
	}
	return s.commit("store.update_rgb", state.WithRGB(s.cur, r, g, b))
}

// Sync re-appends the cached record after a failed append.
func (s *Store) Sync() error {
	if !s.ready {
		return errcode.New(errcode.NotReady, "store.sync", "not initialised")
	}
	if !s.pending {
		return nil
	}
	return s.write("store.sync", s.cur)
}

func (s *Store) commit(op string, next state.Record) error {
	if next == s.cur {
		return nil
	}
	// The cache follows the caller even if flash does not.
	s.cur = next
	return s.write(op, next)
}

func (s *Store) write(op string, rec state.Record) error {
	cursor, err := s.flash.Append(rec)
	if err != nil {
		s.pending = true
		s.log.Warn("append failed, value pending", logx.Str("op", op), logx.Hex("record", uint32(rec)), logx.Err(err))
		return err
	}
	s.pending = false
	s.log.Debug("stored", logx.Str("op", op), logx.Hex("record", uint32(rec)), logx.Hex("cursor", cursor))
	return nil
}

func (s *Store) Light() types.Light          { return s.cur.Light() }
func (s *Store) Record() state.Record        { return s.cur }
func (s *Store) Ready() bool                 { return s.ready }
func (s *Store) Pending() bool               { return s.pending }
func (s *Store) Recovery() flashlog.Recovery { return s.recovery }
