package bridge

import (
	"io"

	"lampcode-go/errcode"
)

// Frame types. Control frames are answered with one frameReply whose
// payload is empty on success or an error code string.
const (
	framePing     byte = 0x01
	framePong     byte = 0x02
	frameSetState byte = 0x10 // [state]
	frameSetRGB   byte = 0x11 // [r g b]
	frameSync     byte = 0x12
	frameGet      byte = 0x13
	frameValue    byte = 0x20 // flash record bytes: [state r g b]
	frameReply    byte = 0x21
	frameClose    byte = 0x7f
)

// Frame is a type byte, a big-endian 16-bit length and the payload.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return errcode.New(errcode.InvalidPayload, "bridge.frame", "frame too large")
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}
