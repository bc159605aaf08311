package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrPortClosed is returned by MockPort after Close.
var ErrPortClosed = errors.New("serial port closed")

// MockPort is an in-memory SerialPorter for tests and demos. Reads block
// until data is fed or the port is closed; writes are captured.
type MockPort struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  bytes.Buffer
	written  bytes.Buffer
	closed   bool
	eof      bool
	writeErr error
}

// NewMockPort returns an open MockPort with nothing to read.
func NewMockPort() *MockPort {
	p := &MockPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// NewMockSerialMux returns a SerialMux over a fresh MockPort.
func NewMockSerialMux() (*SerialMux[*MockPort], *MockPort) {
	port := NewMockPort()
	return NewSerialMux(port), port
}

// Feed queues lines for reading, appending CRLF to each.
func (p *MockPort) Feed(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		p.pending.WriteString(l)
		p.pending.WriteString("\r\n")
	}
	p.cond.Broadcast()
}

// EOF makes reads return io.EOF once the queued data is drained, as a
// receiver being unplugged would.
func (p *MockPort) EOF() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eof = true
	p.cond.Broadcast()
}

// FailWrites makes every following Write return err.
func (p *MockPort) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Written returns every command written so far, one per line.
func (p *MockPort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := strings.TrimRight(p.written.String(), "\r\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\r\n")
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending.Len() == 0 && !p.closed && !p.eof {
		p.cond.Wait()
	}
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.pending.Len() == 0 {
		return 0, io.EOF
	}
	return p.pending.Read(b)
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}
