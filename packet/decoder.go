package packet

// Frame is a decoded command with its sequence number.
type Frame struct {
	Seq     uint8
	Command Command
}

// Decoder extracts frames from a byte stream. Bytes that cannot start a valid
// frame are discarded and reported, never dropped silently.
type Decoder struct {
	buf []byte
}

func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes waiting for a complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// plausible reports whether a frame could start at p[0] given the bytes seen so far.
func plausible(p []byte) bool {
	if _, ok := payloadSizes[CommandID(p[0])]; !ok {
		return false
	}
	if len(p) < 3 {
		return true
	}
	_, _, err := checkHeader(p)
	return err == nil
}

// resync drops the byte at the head of the buffer and then every byte that
// cannot start a frame; it returns the number of bytes dropped.
func (d *Decoder) resync() int {
	skip := 1
	for skip < len(d.buf) && !plausible(d.buf[skip:]) {
		skip++
	}
	d.buf = append(d.buf[:0], d.buf[skip:]...)
	return skip
}

// Next returns the next complete frame. ok is false when more bytes are
// needed. A *ProtocolDesyncError is returned once per resynchronisation; the
// caller may keep calling Next afterwards.
func (d *Decoder) Next() (f Frame, ok bool, err error) {
	if len(d.buf) == 0 {
		return
	}
	if !plausible(d.buf) {
		err = d.desync(desync("unknown command id 0x%02x", d.buf[0]))
		return
	}
	if len(d.buf) < HeaderSize {
		return
	}

	_, total, herr := checkHeader(d.buf)
	if herr != nil {
		err = d.desync(herr.(*ProtocolDesyncError))
		return
	}
	if len(d.buf) < total {
		return
	}

	cmd, seq, derr := Decode(d.buf[:total])
	if derr != nil {
		err = d.desync(derr.(*ProtocolDesyncError))
		return
	}
	d.buf = append(d.buf[:0], d.buf[total:]...)
	return Frame{Seq: seq, Command: cmd}, true, nil
}

func (d *Decoder) desync(e *ProtocolDesyncError) error {
	e.Skipped = d.resync()
	return e
}
