// Package rxstream parses the byte stream the test firmware sends back. The
// stream starts in text mode; marker strings switch between text log output
// and binary pin waveform samples.
package rxstream

import (
	"sync"

	"mtu/util"
)

type Mode int

const (
	ModeText Mode = iota
	ModeBinary
)

func (m Mode) String() string {
	if m == ModeBinary {
		return "binary"
	}
	return "text"
}

const (
	MarkerText   = "Switch_To_ASCII_Mode"
	MarkerBinary = "Switch_To_HEX8B_Mode"
)

const (
	SamplesPerFrame = 20
	sampleRepeat    = 5
	WaveformSize    = SamplesPerFrame * sampleRepeat

	DefaultMaxLines = 1000
)

// Waveform holds one displayable frame; each sample is repeated so the
// plot shows square edges.
type Waveform [WaveformSize]byte

type UpdateKind int

const (
	UpdateLine UpdateKind = iota
	UpdateWaveform
	UpdateMode
)

// Update describes one observable change caused by Feed.
type Update struct {
	Kind     UpdateKind
	Line     string
	Waveform Waveform
	Mode     Mode
}

// Receiver holds all receive-path state for one session.
type Receiver struct {
	mu sync.Mutex

	mode     Mode
	toBinary *matcher
	toText   *matcher

	line     util.CommitLogger
	lines    []string
	maxLines int

	frame    []byte
	waveform Waveform
	frames   uint64

	updates []Update
	scratch []byte
}

func NewReceiver(maxLines int) *Receiver {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	r := &Receiver{
		toBinary: newMatcher(MarkerBinary),
		toText:   newMatcher(MarkerText),
		maxLines: maxLines,
		frame:    make([]byte, 0, SamplesPerFrame),
	}
	r.line.Committer = r.commitLine
	return r
}

func (r *Receiver) commitLine(p []byte) {
	s := string(p)
	r.lines = append(r.lines, s)
	if over := len(r.lines) - r.maxLines; over > 0 {
		r.lines = append(r.lines[:0], r.lines[over:]...)
	}
	r.updates = append(r.updates, Update{Kind: UpdateLine, Line: s})
}

// Feed consumes bytes read from the port and returns what changed.
func (r *Receiver) Feed(p []byte) []Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updates = nil
	for _, b := range p {
		m := r.toBinary
		if r.mode == ModeBinary {
			m = r.toText
		}

		var found bool
		r.scratch, found = m.step(b, r.scratch[:0])
		for _, d := range r.scratch {
			r.data(d)
		}
		if found {
			r.switchMode()
		}
	}
	return r.updates
}

func (r *Receiver) data(b byte) {
	if r.mode == ModeText {
		switch b {
		case '\r':
		case '\n':
			r.line.Commit()
		default:
			_ = r.line.WriteByte(b)
		}
		return
	}

	r.frame = append(r.frame, b)
	if len(r.frame) < SamplesPerFrame {
		return
	}
	for i := range r.waveform {
		r.waveform[i] = r.frame[i/sampleRepeat]
	}
	r.frame = r.frame[:0]
	r.frames++
	r.updates = append(r.updates, Update{Kind: UpdateWaveform, Waveform: r.waveform})
}

func (r *Receiver) switchMode() {
	if r.mode == ModeText {
		if r.line.Len() > 0 {
			r.line.Commit()
		}
		r.mode = ModeBinary
	} else {
		r.frame = r.frame[:0]
		r.mode = ModeText
	}
	r.toBinary.reset()
	r.toText.reset()
	r.updates = append(r.updates, Update{Kind: UpdateMode, Mode: r.mode})
}

func (r *Receiver) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Waveform returns a copy of the most recent waveform frame.
func (r *Receiver) Waveform() Waveform {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waveform
}

// Frames returns the number of waveform frames received.
func (r *Receiver) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Lines returns a copy of the retained log lines, oldest first.
func (r *Receiver) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Pending returns the number of bytes held back on a possible marker plus
// the uncommitted text of the current line.
func (r *Receiver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toBinary.held() + r.toText.held() + r.line.Len()
}

// Reset returns the receiver to text mode and discards all buffered data.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = ModeText
	r.toBinary.reset()
	r.toText.reset()
	r.line.Reset()
	r.lines = nil
	r.frame = r.frame[:0]
	r.waveform = Waveform{}
	r.frames = 0
}
