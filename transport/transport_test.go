package transport

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"mtu/util"
)

type pipeEnd struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

func (p *pipeEnd) Close() error {
	for _, c := range p.closers {
		_ = c.Close()
	}
	return nil
}

// newPipe returns the host and remote ends of an in-memory duplex stream.
func newPipe() (host, remote *pipeEnd) {
	hr, rw := io.Pipe()
	rr, hw := io.Pipe()
	host = &pipeEnd{Reader: hr, Writer: hw, closers: []io.Closer{hr, hw}}
	remote = &pipeEnd{Reader: rr, Writer: rw, closers: []io.Closer{rr, rw}}
	return
}

func waitAvailable(t *testing.T, p Port, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := p.Available()
		if err != nil {
			t.Fatalf("Available() error = %v", err)
		}
		if n >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d bytes", want)
}

func TestStreamPort_ReadWrite(t *testing.T) {
	host, remote := newPipe()
	p := NewStreamPort("pipe", host, util.NewTestingLogger(t))
	defer p.Close()

	if err := p.SetReadTimeout(0); err != nil {
		t.Fatal(err)
	}
	n, err := p.Read(make([]byte, 4))
	if n != 0 || err != nil {
		t.Fatalf("non-blocking Read() = %d, %v; want 0, nil", n, err)
	}

	go func() { _, _ = remote.Write([]byte("hello")) }()
	waitAvailable(t, p, 5)

	b := make([]byte, 16)
	n, err = p.Read(b)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(b[:n]); got != "hello" {
		t.Fatalf("Read() = %q, want %q", got, "hello")
	}

	got := make([]byte, 3)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.ReadFull(remote, got)
	}()
	if _, err = p.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	<-done
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("remote read %v", got)
	}
}

func TestStreamPort_ReadTimeout(t *testing.T) {
	host, _ := newPipe()
	p := NewStreamPort("pipe", host, util.NewTestingLogger(t))
	defer p.Close()

	_ = p.SetReadTimeout(20 * time.Millisecond)
	start := time.Now()
	n, err := p.Read(make([]byte, 1))
	if n != 0 || err != nil {
		t.Fatalf("Read() = %d, %v; want 0, nil", n, err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Read() returned after %v, before the timeout", elapsed)
	}
}

func TestStreamPort_RemoteClose(t *testing.T) {
	host, remote := newPipe()
	p := NewStreamPort("pipe", host, util.NewTestingLogger(t))
	defer p.Close()

	go func() {
		_, _ = remote.Write([]byte{0xAA})
		_ = remote.Close()
	}()

	b := make([]byte, 1)
	if n, err := p.Read(b); n != 1 || err != nil || b[0] != 0xAA {
		t.Fatalf("Read() = %d, %v, %#x; want buffered byte first", n, err, b[0])
	}
	if _, err := p.Read(b); !errors.Is(err, ErrClosed) {
		t.Fatalf("Read() error = %v, want ErrClosed", err)
	}
	if _, err := p.Available(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Available() error = %v, want ErrClosed", err)
	}
}

func TestStreamPort_Close(t *testing.T) {
	host, _ := newPipe()
	p := NewStreamPort("pipe", host, util.NewTestingLogger(t))

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := p.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Read() after Close error = %v, want ErrClosed", err)
	}
}

type fakeDriver struct {
	order  int
	opened []DeviceDescriptor
}

func (d *fakeDriver) DisplayOrder() int { return d.order }

func (d *fakeDriver) DisplayName() string { return "fake" }

func (d *fakeDriver) DisplayDescription() string { return "fake driver" }

func (d *fakeDriver) Detect() ([]DeviceDescriptor, error) { return nil, nil }

func (d *fakeDriver) Open(desc DeviceDescriptor) (Port, error) {
	d.opened = append(d.opened, desc)
	host, _ := newPipe()
	return NewStreamPort(desc.Port, host, nil), nil
}

func TestRegister(t *testing.T) {
	second := &fakeDriver{order: 2}
	first := &fakeDriver{order: 1}
	Register("test-second", second)
	Register("test-first", first)

	var names []string
	for _, nd := range Drivers() {
		if strings.HasPrefix(nd.Name, "test-") {
			names = append(names, nd.Name)
		}
	}
	if len(names) != 2 || names[0] != "test-first" || names[1] != "test-second" {
		t.Fatalf("Drivers() order = %v", names)
	}

	p, err := Open(DeviceDescriptor{Driver: "test-first", Port: "x"})
	if err != nil {
		t.Fatal(err)
	}
	_ = p.Close()
	if len(first.opened) != 1 || first.opened[0].Port != "x" {
		t.Fatalf("driver opened %v", first.opened)
	}

	if _, err = Open(DeviceDescriptor{Driver: "nope"}); err == nil {
		t.Fatal("Open() with unknown driver succeeded")
	}

	for _, tt := range []struct {
		name   string
		driver Driver
	}{
		{"test-first", &fakeDriver{}},
		{"test-nil", nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("Register() did not panic")
				}
			}()
			Register(tt.name, tt.driver)
		})
	}
}

func TestDeviceDescriptor_String(t *testing.T) {
	if got := (DeviceDescriptor{Driver: "serial", Port: "COM3"}).String(); got != "serial:COM3" {
		t.Errorf("String() = %q", got)
	}
	if got := (DeviceDescriptor{Driver: "serial", Port: "COM3", DisplayName: "COM3 (USB)"}).String(); got != "COM3 (USB)" {
		t.Errorf("String() = %q", got)
	}
}
