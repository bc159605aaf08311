package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate most consumer GPS receivers ship with. Older
// NMEA 0183 devices use 4800.
const DefaultBaudRate = 9600

// DefaultFraming is eight data bits, no parity and one stop bit.
const DefaultFraming = "8N1"

// baudRates are the rates GPS receivers are configured for in practice.
var baudRates = map[int]bool{4800: true, 9600: true, 19200: true, 38400: true, 57600: true, 115200: true}

// PortOptions configures the serial line. Zero values take the defaults.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// ParseFraming reads framing shorthand such as "8N1" or "7E2" into opts.
func ParseFraming(opts PortOptions, framing string) (PortOptions, error) {
	f := strings.ToUpper(strings.TrimSpace(framing))
	if len(f) != 3 || f[0] < '5' || f[0] > '8' || f[2] < '1' || f[2] > '2' {
		return opts, fmt.Errorf("invalid framing %q: want data bits, parity and stop bits such as %s", framing, DefaultFraming)
	}
	opts.DataBits = int(f[0] - '0')
	opts.Parity = f[1:2]
	opts.StopBits = int(f[2] - '0')
	if _, err := parity(opts.Parity); err != nil {
		return opts, err
	}
	return opts, nil
}

func parity(p string) (serial.Parity, error) {
	switch strings.ToUpper(strings.TrimSpace(p)) {
	case "", "N", "NONE":
		return serial.NoParity, nil
	case "E", "EVEN":
		return serial.EvenParity, nil
	case "O", "ODD":
		return serial.OddParity, nil
	}
	return serial.NoParity, fmt.Errorf("unsupported parity %q: expected N, E or O", p)
}

// SerialMode validates the options and converts them for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: o.BaudRate, DataBits: o.DataBits, StopBits: serial.OneStopBit}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if !baudRates[mode.BaudRate] {
		return nil, fmt.Errorf("unsupported baud rate %d", mode.BaudRate)
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d: must be between 5 and 8", mode.DataBits)
	}
	switch o.StopBits {
	case 0, 1:
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	p, err := parity(o.Parity)
	if err != nil {
		return nil, err
	}
	mode.Parity = p
	return mode, nil
}

// String formats the options as "9600 8N1".
func (o PortOptions) String() string {
	mode, err := o.SerialMode()
	if err != nil {
		return fmt.Sprintf("invalid(%d %d%s%d)", o.BaudRate, o.DataBits, o.Parity, o.StopBits)
	}
	p := map[serial.Parity]string{serial.NoParity: "N", serial.EvenParity: "E", serial.OddParity: "O"}[mode.Parity]
	stop := 1
	if mode.StopBits == serial.TwoStopBits {
		stop = 2
	}
	return fmt.Sprintf("%d %d%s%d", mode.BaudRate, mode.DataBits, p, stop)
}
