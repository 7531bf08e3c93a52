package gridnav

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialBrick talks to the motor and sensor microcontroller over a
// newline-delimited ASCII protocol. One request is in flight at a time.
//
//	T                    -> T <left> <right>
//	Z                    -> OK
//	M <ls> <ld> <rs> <rd> -> OK      (direction 0 forward, 1 backward)
//	U <lo|hi>            -> U <cm>
//	L <left|right>       -> L <value>
//	F <left|right> <0|1> -> OK
//
// Any request may instead be answered with "ERR <message>".
type SerialBrick struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	reader *bufio.Reader
}

// OpenSerialBrick opens the configured serial port
func OpenSerialBrick(cfg SerialConfig) (*SerialBrick, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(500 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", cfg.Port, err)
	}
	return NewSerialBrick(port), nil
}

// NewSerialBrick wraps an already open connection
func NewSerialBrick(port io.ReadWriteCloser) *SerialBrick {
	return &SerialBrick{port: port, reader: bufio.NewReader(port)}
}

// Close releases the port
func (b *SerialBrick) Close() error {
	return b.port.Close()
}

func (b *SerialBrick) request(format string, args ...interface{}) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cmd := fmt.Sprintf(format, args...)
	if _, err := io.WriteString(b.port, cmd+"\n"); err != nil {
		return nil, fmt.Errorf("writing %q: %w", cmd, err)
	}
	line, err := b.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading reply to %q: %w", cmd, err)
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty reply to %q", cmd)
	}
	if fields[0] == "ERR" {
		return nil, fmt.Errorf("brick rejected %q: %s", cmd, strings.Join(fields[1:], " "))
	}
	return fields, nil
}

func (b *SerialBrick) expectOK(format string, args ...interface{}) error {
	fields, err := b.request(format, args...)
	if err != nil {
		return err
	}
	if fields[0] != "OK" {
		return fmt.Errorf("unexpected reply %q", strings.Join(fields, " "))
	}
	return nil
}

func (b *SerialBrick) ints(tag string, n int, format string, args ...interface{}) ([]int, error) {
	fields, err := b.request(format, args...)
	if err != nil {
		return nil, err
	}
	if fields[0] != tag || len(fields) != n+1 {
		return nil, fmt.Errorf("unexpected reply %q", strings.Join(fields, " "))
	}
	out := make([]int, n)
	for i := range out {
		v, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", fields[i+1], err)
		}
		out[i] = v
	}
	return out, nil
}

// SetWheels implements WheelDrive
func (b *SerialBrick) SetWheels(left, right WheelCommand) error {
	return b.expectOK("M %d %d %d %d", left.Speed, left.Direction, right.Speed, right.Direction)
}

// TachoCounts implements Encoders
func (b *SerialBrick) TachoCounts() (int, int, error) {
	v, err := b.ints("T", 2, "T")
	if err != nil {
		return 0, 0, err
	}
	return v[0], v[1], nil
}

// ResetTachos implements Encoders
func (b *SerialBrick) ResetTachos() error {
	return b.expectOK("Z")
}

// Hardware returns device handles backed by the brick
func (b *SerialBrick) Hardware() Hardware {
	return Hardware{
		Drive:      b,
		Encoders:   b,
		LowRange:   serialRange{brick: b, name: "lo"},
		HighRange:  serialRange{brick: b, name: "hi"},
		LeftLight:  serialLight{brick: b, name: "left"},
		RightLight: serialLight{brick: b, name: "right"},
	}
}

type serialRange struct {
	brick *SerialBrick
	name  string
}

func (s serialRange) Distance() (int, error) {
	v, err := s.brick.ints("U", 1, "U %s", s.name)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

type serialLight struct {
	brick *SerialBrick
	name  string
}

func (s serialLight) NormalizedValue() (int, error) {
	v, err := s.brick.ints("L", 1, "L %s", s.name)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (s serialLight) SetFloodlight(on bool) error {
	flag := 0
	if on {
		flag = 1
	}
	return s.brick.expectOK("F %s %d", s.name, flag)
}
