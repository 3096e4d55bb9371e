package gateway

import (
	"fmt"
	"io"
	"log/slog"

	"go.bug.st/serial"
)

// serialMode is the line configuration expected by the relay dongle. The
// exact wire protocol spoken over the line is opaque to this system
// (spec.md §6); only the line discipline needs fixing.
var serialMode = &serial.Mode{
	BaudRate: 115200,
}

// SerialBackend drives a real relay gateway connected over a serial port,
// using go.bug.st/serial. It mirrors original_source/src/serial.rs's
// `plugwise::Device::Serial(path)` variant, translated from a dedicated
// protocol library (`plugwise`) to a minimal line-oriented framing, since no
// such protocol library is part of this system's scope.
type SerialBackend struct {
	path string
	port io.ReadWriteCloser
}

// NewSerialBackend returns a Backend that will open the serial device at
// path when Open is called.
func NewSerialBackend(path string) *SerialBackend {
	return &SerialBackend{path: path}
}

// Open implements Backend.
func (b *SerialBackend) Open() error {
	port, err := serial.Open(b.path, serialMode)
	if err != nil {
		return fmt.Errorf("gateway: opening serial port %s: %w", b.path, err)
	}
	b.port = port
	slog.Info("gateway: serial device connected", "path", b.path)
	return nil
}

// RegisterCircle implements Backend.
func (b *SerialBackend) RegisterCircle(alias string, mac uint64) error {
	return b.writeFrame(fmt.Sprintf("REG %s %012X\n", alias, mac))
}

// SwitchOn implements Backend.
func (b *SerialBackend) SwitchOn(alias string) error {
	return b.writeFrame(fmt.Sprintf("SW %s ON\n", alias))
}

// SwitchOff implements Backend.
func (b *SerialBackend) SwitchOff(alias string) error {
	return b.writeFrame(fmt.Sprintf("SW %s OFF\n", alias))
}

// Close implements Backend.
func (b *SerialBackend) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

func (b *SerialBackend) writeFrame(frame string) error {
	if b.port == nil {
		return fmt.Errorf("gateway: serial port not open")
	}
	_, err := io.WriteString(b.port, frame)
	return err
}
