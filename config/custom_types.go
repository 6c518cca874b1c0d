/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes for configuration structures. It decodes from
// a plain integer as well as from a human-readable string like "256MB" or
// "2Gi", and always encodes back to the human-readable form.
type ByteSize uint64

// String implements fmt.Stringer.
func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// MarshalText implements encoding.TextMarshaler.
func (b *ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalYAML implements yaml.Marshaler.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler,
// which mapstructure.TextUnmarshallerHookFunc relies on.
func (b *ByteSize) UnmarshalText(text []byte) error {
	return b.parse(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.parse(strings.Trim(string(data), `"`))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var num uint64
	if err := value.Decode(&num); err == nil {
		*b = ByteSize(num)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid byte size format: %v", value)
	}
	return b.parse(raw)
}

func (b *ByteSize) parse(raw string) error {
	if num, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if num < 0 {
			return fmt.Errorf("negative value is not allowed: %d", num)
		}
		*b = ByteSize(num)
		return nil
	}

	num, err := parseByteSize(raw)
	if err != nil {
		return err
	}
	*b = ByteSize(num)
	return nil
}

// parseByteSize parses a human-readable byte size with a unit suffix.
// bytefmt does not understand the k8s power-of-two suffixes (Ki, Mi, ...),
// but dropping the trailing "i" maps them onto the ones it does.
func parseByteSize(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	for _, suffix := range [...]string{"Ki", "Mi", "Gi", "Ti", "Pi", "Ei"} {
		if strings.HasSuffix(trimmed, suffix) {
			trimmed = trimmed[:len(trimmed)-1]
			break
		}
	}
	num, err := bytefmt.ToBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", raw, err)
	}
	return num, nil
}

// TimeDuration is a time duration for configuration structures. It decodes
// from a plain integer (nanoseconds) as well as from a human-readable string
// like "1h30m", and always encodes back to the human-readable form.
type TimeDuration time.Duration

// String implements fmt.Stringer.
func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d TimeDuration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalYAML implements yaml.Marshaler.
func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler,
// which mapstructure.TextUnmarshallerHookFunc relies on.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	return d.parse(strings.Trim(string(data), `"`))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	var num int64
	if err := value.Decode(&num); err == nil {
		if num < 0 {
			return fmt.Errorf("negative value is not allowed: %d", num)
		}
		*d = TimeDuration(num)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid time duration format: %v", value)
	}
	return d.parse(raw)
}

func (d *TimeDuration) parse(raw string) error {
	if num, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if num < 0 {
			return fmt.Errorf("negative value is not allowed: %d", num)
		}
		*d = TimeDuration(num)
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid time duration format (%s): %w", raw, err)
	}
	*d = TimeDuration(dur)
	return nil
}
