package util

// CommitLogger collects writes until Commit hands the accumulated bytes to
// Committer. The slice passed to Committer is only valid during the call.
type CommitLogger struct {
	Committer func(p []byte)
	buf       []byte
}

func (l *CommitLogger) Reserve(n int) {
	if cap(l.buf) >= n {
		return
	}

	newbuf := make([]byte, len(l.buf), n)
	copy(newbuf, l.buf)
	l.buf = newbuf
}

func (l *CommitLogger) Write(p []byte) (n int, err error) {
	l.buf = append(l.buf, p...)
	return len(p), nil
}

func (l *CommitLogger) WriteByte(c byte) error {
	l.buf = append(l.buf, c)
	return nil
}

// Len returns the number of uncommitted bytes.
func (l *CommitLogger) Len() int {
	return len(l.buf)
}

func (l *CommitLogger) Commit() {
	if l.Committer != nil {
		l.Committer(l.buf)
	}
	l.Reset()
}

func (l *CommitLogger) Reset() {
	l.buf = l.buf[:0]
}
