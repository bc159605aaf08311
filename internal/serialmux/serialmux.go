// Package serialmux shares one serial device, such as an NMEA GPS receiver,
// between many readers. Every line read from the port is fanned out to all
// subscribers, and commands from any caller are written one at a time.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// LineStats counts the lines a mux has read and the deliveries it skipped
// because a subscriber was full.
type LineStats struct {
	Lines    int64 `json:"lines"`
	Dropped  int64 `json:"dropped"`
	Disabled bool  `json:"disabled"`
}

// SerialMuxInterface is what the location source and admin routes need from
// a mux. *SerialMux and *DisabledSerialMux implement it.
type SerialMuxInterface interface {
	// Subscribe returns an id and a channel receiving every cleaned line.
	Subscribe() (string, chan string)
	// Unsubscribe closes and forgets the channel for id.
	Unsubscribe(string)
	// SendCommand writes one command line to the device.
	SendCommand(string) error
	// Monitor reads the device until ctx is done or the device stops.
	Monitor(context.Context) error
	// Stats reports the line counters.
	Stats() LineStats
	// Close closes every subscriber and the device.
	Close() error

	// AttachAdminRoutes mounts debug endpoints under /debug/. They are only
	// reachable from localhost or over Tailscale.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux multiplexes a single port.
type SerialMux[T SerialPorter] struct {
	port T
	subs *registry

	writeMu sync.Mutex
	lines   atomic.Int64
	dropped atomic.Int64
}

func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, subs: newRegistry()}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) { return s.subs.add() }

func (s *SerialMux[T]) Unsubscribe(id string) { s.subs.remove(id) }

// SendCommand writes command terminated by CRLF, which NMEA receivers
// require. A trailing line ending already present is not doubled.
func (s *SerialMux[T]) SendCommand(command string) error {
	line := []byte(strings.TrimRight(command, "\r\n") + "\r\n")

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write(line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads the port line by line. It returns ctx.Err() on
// cancellation, nil when the port reaches EOF or the mux is closed, and the
// read error otherwise.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	// Scan blocks in the port read, so it runs apart from the select below.
	go func() {
		defer close(lines)
		scan := bufio.NewScanner(s.port)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if s.subs.isClosed() {
						return nil
					}
					return err
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if s.subs.isClosed() {
				return nil
			}
			line := CleanLine(raw)
			if line == "" {
				continue
			}
			s.lines.Add(1)
			if n := s.subs.publish(line); n > 0 {
				s.dropped.Add(int64(n))
			}
		}
	}
}

func (s *SerialMux[T]) Stats() LineStats {
	return LineStats{Lines: s.lines.Load(), Dropped: s.dropped.Load()}
}

func (s *SerialMux[T]) Close() error {
	s.subs.closeAll()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}
