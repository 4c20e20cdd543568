package tcpport

import (
	"io"
	"net"
	"testing"
	"time"

	"mtu/transport"
)

func echoServer(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}()
		}
	}()
	return l.Addr().String()
}

func TestDriver_Echo(t *testing.T) {
	addr := echoServer(t)

	d := NewDriver([]string{addr})
	devices, err := d.Detect()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].Port != addr || devices[0].Driver != driverName {
		t.Fatalf("Detect() = %v", devices)
	}

	p, err := d.Open(devices[0])
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, err = p.Write([]byte{0x5A, 0xA6}); err != nil {
		t.Fatal(err)
	}
	_ = p.SetReadTimeout(2 * time.Second)

	var got []byte
	b := make([]byte, 8)
	for len(got) < 2 {
		n, err := p.Read(b)
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			t.Fatal("timed out waiting for echo")
		}
		got = append(got, b[:n]...)
	}
	if got[0] != 0x5A || got[1] != 0xA6 {
		t.Fatalf("echo = %x", got)
	}
}

func TestDriver_BadAddress(t *testing.T) {
	d := NewDriver(nil)
	for _, port := range []string{"", "localhost", "::1"} {
		if _, err := d.Open(descFor(port)); err == nil {
			t.Errorf("Open(%q) succeeded", port)
		}
	}
}

func descFor(port string) transport.DeviceDescriptor {
	return transport.DeviceDescriptor{Driver: driverName, Port: port}
}
