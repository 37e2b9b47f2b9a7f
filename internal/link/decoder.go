// Package link decodes event codes arriving from the voice/command module.
//
// Frames are five bytes: 0xAA 0x55 HI LO 0xFB, giving code = HI<<8 | LO.
package link

const (
	frameHead0   = 0xAA
	frameHead1   = 0x55
	frameTrailer = 0xFB
	frameLen     = 5
)

// Decoder is an incremental frame decoder. A bad header or trailer byte
// drops the partial frame; a stray 0xAA there starts a new one.
type Decoder struct {
	buf [frameLen]byte
	n   int

	frames  uint64
	resyncs uint64
}

// Feed consumes one byte and reports a completed code.
func (d *Decoder) Feed(b byte) (uint16, bool) {
	switch d.n {
	case 0:
		if b != frameHead0 {
			return 0, false
		}
	case 1:
		if b != frameHead1 {
			d.resync(b)
			return 0, false
		}
	case frameLen - 1:
		if b != frameTrailer {
			d.resync(b)
			return 0, false
		}
	}
	d.buf[d.n] = b
	d.n++
	if d.n < frameLen {
		return 0, false
	}
	d.n = 0
	d.frames++
	return uint16(d.buf[2])<<8 | uint16(d.buf[3]), true
}

func (d *Decoder) resync(b byte) {
	d.resyncs++
	d.n = 0
	if b == frameHead0 {
		d.buf[0] = b
		d.n = 1
	}
}

// Decode feeds p and calls fn for every completed code.
func (d *Decoder) Decode(p []byte, fn func(code uint16)) {
	for _, b := range p {
		if code, ok := d.Feed(b); ok {
			fn(code)
		}
	}
}

// Counts returns decoded frames and resynchronizations.
func (d *Decoder) Counts() (frames, resyncs uint64) { return d.frames, d.resyncs }

// Encode builds a frame for code.
func Encode(code uint16) []byte {
	return []byte{frameHead0, frameHead1, byte(code >> 8), byte(code), frameTrailer}
}
