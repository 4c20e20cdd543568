package rxstream

// matcher finds a marker in a byte stream delivered in arbitrary pieces.
// Bytes that might still begin the marker are held back; once they can no
// longer be part of it they are released as ordinary data.
type matcher struct {
	pattern []byte
	border  []int
	matched int
}

func newMatcher(marker string) *matcher {
	p := []byte(marker)
	// border[i] is the length of the longest proper prefix of p[:i+1] that is also its suffix.
	border := make([]int, len(p))
	k := 0
	for i := 1; i < len(p); i++ {
		for k > 0 && p[i] != p[k] {
			k = border[k-1]
		}
		if p[i] == p[k] {
			k++
		}
		border[i] = k
	}
	return &matcher{pattern: p, border: border}
}

// step consumes b, appending any released data bytes to out. found reports
// that the final byte of the marker was consumed.
func (m *matcher) step(b byte, out []byte) (_ []byte, found bool) {
	for m.matched > 0 && m.pattern[m.matched] != b {
		next := m.border[m.matched-1]
		out = append(out, m.pattern[:m.matched-next]...)
		m.matched = next
	}
	if m.pattern[m.matched] != b {
		return append(out, b), false
	}
	m.matched++
	if m.matched == len(m.pattern) {
		m.matched = 0
		return out, true
	}
	return out, false
}

// held returns the number of bytes waiting on a possible marker.
func (m *matcher) held() int {
	return m.matched
}

func (m *matcher) reset() {
	m.matched = 0
}
