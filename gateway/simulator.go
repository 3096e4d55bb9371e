package gateway

import "log/slog"

// Simulator is an in-memory Backend that just logs the transitions it's
// asked to perform, standing in for a physical gateway in development and
// tests. It mirrors original_source/src/serial.rs's
// `plugwise::Device::Simulator`.
type Simulator struct {
	circles map[string]uint64
}

// NewSimulator returns a ready-to-use Simulator backend.
func NewSimulator() *Simulator {
	return &Simulator{circles: make(map[string]uint64)}
}

// Open implements Backend.
func (s *Simulator) Open() error {
	slog.Info("gateway: simulator connected")
	return nil
}

// RegisterCircle implements Backend.
func (s *Simulator) RegisterCircle(alias string, mac uint64) error {
	s.circles[alias] = mac
	slog.Info("gateway: simulator registered circle", "alias", alias, "mac", mac)
	return nil
}

// SwitchOn implements Backend.
func (s *Simulator) SwitchOn(alias string) error {
	slog.Info("gateway: simulator switch_on", "alias", alias)
	return nil
}

// SwitchOff implements Backend.
func (s *Simulator) SwitchOff(alias string) error {
	slog.Info("gateway: simulator switch_off", "alias", alias)
	return nil
}

// Close implements Backend.
func (s *Simulator) Close() error {
	slog.Info("gateway: simulator disconnected")
	return nil
}
