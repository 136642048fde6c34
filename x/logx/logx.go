// Package logx is a small leveled logger for firmware and host builds.
//
// Lines look like the println output used across the services:
//
//	Info: [flash] write addr=0x0003E004 len=4
//
// No fmt on the hot path; numbers go through x/conv into a per-call buffer.
package logx

import (
	"io"
	"os"
	"sync"

	"lampcode-go/x/conv"
)

type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "Debug"
	case LevelInfo:
		return "Info"
	case LevelWarn:
		return "Warn"
	case LevelError:
		return "Error"
	}
	return "Off"
}

// ParseLevel maps "debug","info","warn","error","off"; unknown => info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "off":
		return LevelOff
	}
	return LevelInfo
}

// Field is one key=value pair.
type Field struct {
	Key  string
	kind byte // 's','u','i','x','e'
	s    string
	u    uint64
	i    int64
}

func Str(k, v string) Field        { return Field{Key: k, kind: 's', s: v} }
func U32(k string, v uint32) Field { return Field{Key: k, kind: 'u', u: uint64(v)} }
func Int(k string, v int) Field    { return Field{Key: k, kind: 'i', i: int64(v)} }
func Hex(k string, v uint32) Field { return Field{Key: k, kind: 'x', u: uint64(v)} }
func Bool(k string, v bool) Field {
	if v {
		return Str(k, "true")
	}
	return Str(k, "false")
}

// Err renders err.Error(), or nothing when err is nil.
func Err(err error) Field {
	if err == nil {
		return Field{}
	}
	return Field{Key: "err", kind: 'e', s: err.Error()}
}

// sink is shared by a logger and all loggers derived from it.
type sink struct {
	mu  sync.Mutex
	w   io.Writer
	min Level
}

type Logger struct {
	out    *sink
	prefix string
}

// New returns a logger writing to w (os.Stdout when nil) at LevelInfo.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{out: &sink{w: w, min: LevelInfo}}
}

// Discard drops everything; handy for tests and optional loggers.
func Discard() *Logger {
	return &Logger{out: &sink{w: io.Discard, min: LevelOff}}
}

// With returns a child logger tagged "[name]" sharing output and level.
func (l *Logger) With(name string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{out: l.out, prefix: name}
}

func (l *Logger) SetLevel(lv Level) {
	if l == nil {
		return
	}
	l.out.mu.Lock()
	l.out.min = lv
	l.out.mu.Unlock()
}

// SetOutput redirects every logger sharing this sink.
func (l *Logger) SetOutput(w io.Writer) {
	if l == nil || w == nil {
		return
	}
	l.out.mu.Lock()
	l.out.w = w
	l.out.mu.Unlock()
}

func (l *Logger) Debug(msg string, f ...Field) { l.log(LevelDebug, msg, f) }
func (l *Logger) Info(msg string, f ...Field)  { l.log(LevelInfo, msg, f) }
func (l *Logger) Warn(msg string, f ...Field)  { l.log(LevelWarn, msg, f) }
func (l *Logger) Error(msg string, f ...Field) { l.log(LevelError, msg, f) }

func (l *Logger) Enabled(lv Level) bool {
	if l == nil {
		return false
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return lv >= l.out.min && l.out.min != LevelOff
}

func (l *Logger) log(lv Level, msg string, fields []Field) {
	if !l.Enabled(lv) {
		return
	}
	line := make([]byte, 0, 96)
	line = append(line, lv.String()...)
	line = append(line, ':', ' ')
	if l.prefix != "" {
		line = append(line, '[')
		line = append(line, l.prefix...)
		line = append(line, ']', ' ')
	}
	line = append(line, msg...)
	var num [24]byte
	for _, f := range fields {
		if f.kind == 0 {
			continue
		}
		line = append(line, ' ')
		line = append(line, f.Key...)
		line = append(line, '=')
		switch f.kind {
		case 's', 'e':
			line = append(line, f.s...)
		case 'u':
			line = append(line, conv.Utoa(num[:], f.u)...)
		case 'i':
			line = append(line, conv.Itoa(num[:], f.i)...)
		case 'x':
			line = append(line, conv.Hex32(num[:10], uint32(f.u))...)
		}
	}
	line = append(line, '\n')

	l.out.mu.Lock()
	_, _ = l.out.w.Write(line)
	l.out.mu.Unlock()
}
