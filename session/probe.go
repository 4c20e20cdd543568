package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mtu/packet"
	"mtu/transport"
)

var errNoResponse = errors.New("no ping response")

// probe pings the ROM bootloader up to ProbeRetries times and sleeps
// ProbeDelay after every failed attempt.
func (s *Session) probe(ctx context.Context, port transport.Port) (packet.PingResponse, error) {
	var last error
	for attempt := 1; attempt <= s.cfg.ProbeRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return packet.PingResponse{}, err
		}

		rsp, err := s.ping(port)
		if err == nil {
			s.log.Info("session: rom answered", zap.Stringer("version", rsp), zap.Int("attempt", attempt))
			return rsp, nil
		}
		last = err
		s.log.Debug("session: ping failed", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-s.cfg.Clock.After(s.cfg.ProbeDelay):
		case <-ctx.Done():
			return packet.PingResponse{}, ctx.Err()
		}
	}

	return packet.PingResponse{}, &ConnectionError{
		Device:   s.targetName(),
		Port:     s.cfg.Device.String(),
		Attempts: s.cfg.ProbeRetries,
		Remedy:   remedyFor(s.cfg.Target),
		Err:      last,
	}
}

func (s *Session) ping(port transport.Port) (packet.PingResponse, error) {
	if err := drain(port); err != nil {
		return packet.PingResponse{}, err
	}
	if err := port.SetReadTimeout(s.cfg.ProbeTimeout); err != nil {
		return packet.PingResponse{}, err
	}
	if _, err := port.Write(packet.PingRequest()); err != nil {
		return packet.PingResponse{}, fmt.Errorf("write ping: %w", err)
	}

	b := make([]byte, packet.PingResponseSize)
	got := 0
	for got < len(b) {
		n, err := port.Read(b[got:])
		if err != nil {
			return packet.PingResponse{}, err
		}
		if n == 0 {
			break
		}
		got += n
	}
	if got == 0 {
		return packet.PingResponse{}, errNoResponse
	}
	return packet.ParsePingResponse(b[:got])
}

// drain discards stale input.
func drain(port transport.Port) error {
	b := make([]byte, 256)
	for {
		n, err := port.Available()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if n > len(b) {
			n = len(b)
		}
		if _, err = port.Read(b[:n]); err != nil {
			return err
		}
	}
}
