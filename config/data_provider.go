/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DataType names a configuration data format.
type DataType string

// Supported data formats.
const (
	DataTypeJSON DataType = "json"
	DataTypeYAML DataType = "yaml"
)

// DataProvider abstracts the source of configuration data: files, readers
// and environment variables, with typed accessors over string keys.
type DataProvider interface {
	// Sources.
	UseEnvVars(prefix string)
	SetFromFile(path string, format DataType) error
	SetFromReader(reader io.Reader, format DataType) error

	// Direct writes, mostly for defaults and tests.
	Set(key string, value interface{})
	SetDefault(key string, value interface{})

	// Typed reads.
	IsSet(key string) bool
	Get(key string) interface{}
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetFloat64(key string) (float64, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, allowed []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetDuration(key string) (time.Duration, error)
	GetSizeInBytes(key string) (uint64, error)
	GetStringMapString(key string) (map[string]string, error)

	// Struct decoding via mapstructure.
	Unmarshal(target interface{}, opts ...DecoderConfigOption) error
	UnmarshalKey(key string, target interface{}, opts ...DecoderConfigOption) error

	WrapKeyErr(key string, err error) error
}

// A DecoderConfigOption tweaks the mapstructure.DecoderConfig used by
// Unmarshal and UnmarshalKey.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// WrapKeyErr annotates an error with the key it belongs to.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}

// WrapKeyErrIfNeeded is WrapKeyErr that passes a nil error through.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}
