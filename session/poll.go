package session

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"mtu/transport"
)

const readChunk = 4096

// poll feeds received bytes to the receiver until stop is closed or the
// port fails. must run in a goroutine.
func (s *Session) poll(port transport.Port, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if err := port.SetReadTimeout(0); err != nil {
		s.log.Warn("session: poll: set read timeout", zap.Error(err))
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	b := make([]byte, readChunk)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		for {
			n, err := port.Available()
			if err == nil && n > 0 {
				if n > len(b) {
					n = len(b)
				}
				n, err = port.Read(b[:n])
			}
			if err != nil {
				select {
				case <-stop:
				default:
					s.lost(port, err)
				}
				return
			}
			if n == 0 {
				break
			}

			s.bytesRead.Add(uint64(n))
			s.emitRx(s.rx.Feed(b[:n]))
		}
	}
}

// lost tears the session down after the port failed underneath it.
func (s *Session) lost(port transport.Port, err error) {
	if errors.Is(err, transport.ErrClosed) {
		s.log.Warn("session: port closed by remote end")
	} else {
		s.log.Error("session: read failed", zap.Error(err))
	}
	s.emit(Event{Kind: EventError, Err: err})

	go func() {
		s.ops.Lock()
		defer s.ops.Unlock()

		s.mu.Lock()
		same := s.port == port
		s.mu.Unlock()
		if same {
			_ = s.disconnect()
		}
	}()
}
