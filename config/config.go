// Package config loads the TOML configuration file describing the device
// connection and the circles it drives, translated from
// original_source/src/config.rs.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/hwio/circlekeeper/event"
)

// Sentinel errors, one per original_source/src/config.rs Error variant that
// can arise from a malformed (as opposed to unreadable) file.
var (
	ErrInvalidToml           = errors.New("config: invalid toml")
	ErrMissingLocation       = errors.New("config: [config] section missing latitude/longitude")
	ErrMissingNTP            = errors.New("config: [config] section missing ntp server")
	ErrMissingEventSpecifier = errors.New("config: toggle key has no event specifier suffix")
	ErrUnrecognizedSuffix    = errors.New("config: unrecognized event specifier")
	ErrMalformedEvent        = errors.New("config: malformed event value")
	ErrMissingStart          = errors.New("config: toggle missing a start_* key")
	ErrMissingEnd            = errors.New("config: toggle missing an end_* key")
	ErrScheduleExpected      = errors.New("config: expected a table for toggle")
	ErrInvalidMAC            = errors.New("config: invalid mac")
	ErrInvalidDefault        = errors.New("config: invalid default setting")
)

// CircleDefault is the state a circle starts in before any toggle fires.
type CircleDefault string

const (
	CircleOff      CircleDefault = "off"
	CircleOn       CircleDefault = "on"
	CircleSchedule CircleDefault = "schedule"
)

func parseCircleDefault(s string) (CircleDefault, bool) {
	switch CircleDefault(s) {
	case CircleOff, CircleOn, CircleSchedule:
		return CircleDefault(s), true
	default:
		return "", false
	}
}

// Toggle is one start/end pair of events driving a circle's on/off cycle.
type Toggle struct {
	Start event.Event
	End   event.Event
}

// Circle is one configured relay module.
type Circle struct {
	Alias   string
	MAC     uint64
	Default CircleDefault
	Toggles []Toggle
}

// DeviceConfig is the [config] section: where to find the gateway and NTP
// server, and where the installation physically is.
type DeviceConfig struct {
	// SerialDevice is nil when absent, meaning "use the simulator backend"
	// per spec.md §3.
	SerialDevice *string
	Latitude     float64
	Longitude    float64
	NTPServer    string
}

// Config is a fully parsed configuration file.
type Config struct {
	Device  DeviceConfig
	Circles []Circle
}

// Load reads and parses the TOML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var raw map[string]interface{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidToml, err)
	}

	var cfg Config
	var sawDevice bool

	for key, value := range raw {
		table, ok := value.(map[string]interface{})
		if !ok {
			continue
		}

		if key == "config" {
			dc, err := parseDevice(table)
			if err != nil {
				return Config{}, err
			}
			cfg.Device = dc
			sawDevice = true
			continue
		}

		circle, err := parseCircle(key, table)
		if err != nil {
			return Config{}, err
		}
		cfg.Circles = append(cfg.Circles, circle)
	}

	if !sawDevice {
		return Config{}, ErrMissingLocation
	}

	// map iteration order is random; sort for deterministic startup logging
	// and test output.
	sort.Slice(cfg.Circles, func(i, j int) bool {
		return cfg.Circles[i].Alias < cfg.Circles[j].Alias
	})

	return cfg, nil
}

func parseDevice(table map[string]interface{}) (DeviceConfig, error) {
	var dc DeviceConfig

	if v, ok := table["device"]; ok {
		if s, ok := v.(string); ok {
			dc.SerialDevice = &s
		}
	}

	lat, ok := asFloat64(table["latitude"])
	if !ok {
		return DeviceConfig{}, ErrMissingLocation
	}
	lon, ok := asFloat64(table["longitude"])
	if !ok {
		return DeviceConfig{}, ErrMissingLocation
	}
	dc.Latitude, dc.Longitude = lat, lon

	ntp, ok := table["ntp"].(string)
	if !ok {
		return DeviceConfig{}, ErrMissingNTP
	}
	dc.NTPServer = ntp

	return dc, nil
}

func parseCircle(alias string, table map[string]interface{}) (Circle, error) {
	circle := Circle{Alias: alias}
	var sawMAC, sawDefault bool

	for key, value := range table {
		switch key {
		case "mac":
			s, ok := value.(string)
			if !ok {
				return Circle{}, fmt.Errorf("%w: circle %q", ErrInvalidMAC, alias)
			}
			mac, err := strconv.ParseUint(s, 16, 64)
			if err != nil {
				return Circle{}, fmt.Errorf("%w: circle %q: %v", ErrInvalidMAC, alias, err)
			}
			circle.MAC = mac
			sawMAC = true

		case "default":
			s, ok := value.(string)
			if !ok {
				return Circle{}, fmt.Errorf("%w: circle %q", ErrInvalidDefault, alias)
			}
			def, ok := parseCircleDefault(s)
			if !ok {
				return Circle{}, fmt.Errorf("%w: circle %q: %q", ErrInvalidDefault, alias, s)
			}
			circle.Default = def
			sawDefault = true

		default:
			toggleTable, ok := value.(map[string]interface{})
			if !ok {
				return Circle{}, fmt.Errorf("%w: circle %q key %q", ErrScheduleExpected, alias, key)
			}
			toggle, err := parseToggle(alias, toggleTable)
			if err != nil {
				return Circle{}, err
			}
			circle.Toggles = append(circle.Toggles, toggle)
		}
	}

	if !sawMAC {
		return Circle{}, fmt.Errorf("%w: circle %q missing mac", ErrInvalidMAC, alias)
	}
	if !sawDefault {
		return Circle{}, fmt.Errorf("%w: circle %q missing default", ErrInvalidDefault, alias)
	}

	return circle, nil
}

// parseToggle finds this toggle's start_* and end_* keys, in no particular
// order (a circle may register any number of toggle tables, each keyed
// arbitrarily, per original_source/src/config.rs's Toggle::new).
func parseToggle(alias string, table map[string]interface{}) (Toggle, error) {
	var startKey, endKey string
	for key := range table {
		switch {
		case strings.HasPrefix(key, "start_"):
			startKey = key
		case strings.HasPrefix(key, "end_"):
			endKey = key
		}
	}

	if startKey == "" {
		return Toggle{}, fmt.Errorf("%w: circle %q", ErrMissingStart, alias)
	}
	if endKey == "" {
		return Toggle{}, fmt.Errorf("%w: circle %q", ErrMissingEnd, alias)
	}

	start, err := parseEvent(startKey, table[startKey])
	if err != nil {
		return Toggle{}, fmt.Errorf("circle %q: %w", alias, err)
	}
	end, err := parseEvent(endKey, table[endKey])
	if err != nil {
		return Toggle{}, fmt.Errorf("circle %q: %w", alias, err)
	}

	return Toggle{Start: start, End: end}, nil
}

// parseEvent dispatches on key's suffix after the last underscore, exactly
// as original_source/src/config.rs's Event::new does.
func parseEvent(key string, value interface{}) (event.Event, error) {
	idx := strings.LastIndex(key, "_")
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingEventSpecifier, key)
	}
	specifier := key[idx+1:]

	switch specifier {
	case "fixed":
		h, m, ok := timeInADay(value)
		if !ok {
			return nil, fmt.Errorf("%w: %q must hold an array of two integers", ErrMalformedEvent, key)
		}
		ev, err := event.NewFixed(h, m)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return ev, nil

	case "fuzzy":
		pair, ok := value.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("%w: %q must hold an array of two arrays of two integers", ErrMalformedEvent, key)
		}
		sh, sm, ok1 := timeInADay(pair[0])
		eh, em, ok2 := timeInADay(pair[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: %q must hold an array of two arrays of two integers", ErrMalformedEvent, key)
		}
		ev, err := event.NewFuzzy(sh, sm, eh, em)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return ev, nil

	case "sunrise":
		i, ok := asDelta(value)
		if !ok {
			return nil, fmt.Errorf("%w: %q must hold one non-negative integer (variance in minutes)", ErrMalformedEvent, key)
		}
		return event.Sunrise{Delta: i}, nil

	case "sunset":
		i, ok := asDelta(value)
		if !ok {
			return nil, fmt.Errorf("%w: %q must hold one non-negative integer (variance in minutes)", ErrMalformedEvent, key)
		}
		return event.Sunset{Delta: i}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedSuffix, specifier)
	}
}

func timeInADay(value interface{}) (hour, minute int, ok bool) {
	arr, isArr := value.([]interface{})
	if !isArr || len(arr) != 2 {
		return 0, 0, false
	}
	h, ok1 := asInt64(arr[0])
	m, ok2 := asInt64(arr[1])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	if h < 0 || h >= 24 || m < 0 || m >= 60 {
		return 0, 0, false
	}
	return int(h), int(m), true
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func asDelta(value interface{}) (uint16, bool) {
	i, ok := asInt64(value)
	if !ok || i < 0 || i > 65535 {
		return 0, false
	}
	return uint16(i), true
}

func asFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
