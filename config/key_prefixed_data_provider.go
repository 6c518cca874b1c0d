/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"strings"
	"time"
)

// KeyPrefixedDataProvider wraps a DataProvider, namespacing every key access
// under a fixed prefix. It lets a Config declare keys relative to its own
// section ("enabled" instead of "ratelimit.enabled").
type KeyPrefixedDataProvider struct {
	delegate DataProvider
	prefix   string
}

var _ DataProvider = (*KeyPrefixedDataProvider)(nil)

// NewKeyPrefixedDataProvider creates a new KeyPrefixedDataProvider.
func NewKeyPrefixedDataProvider(delegate DataProvider, keyPrefix string) *KeyPrefixedDataProvider {
	return &KeyPrefixedDataProvider{delegate: delegate, prefix: keyPrefix}
}

func (p *KeyPrefixedDataProvider) prefixed(key string) string {
	return strings.Trim(p.prefix+"."+key, ".")
}

// UseEnvVars delegates to the wrapped provider; the env prefix is unrelated
// to the key prefix.
func (p *KeyPrefixedDataProvider) UseEnvVars(prefix string) {
	p.delegate.UseEnvVars(prefix)
}

// SetFromFile delegates to the wrapped provider.
func (p *KeyPrefixedDataProvider) SetFromFile(path string, dataType DataType) error {
	return p.delegate.SetFromFile(path, dataType)
}

// SetFromReader delegates to the wrapped provider.
func (p *KeyPrefixedDataProvider) SetFromReader(reader io.Reader, dataType DataType) error {
	return p.delegate.SetFromReader(reader, dataType)
}

// Set stores the value under the prefixed key.
func (p *KeyPrefixedDataProvider) Set(key string, value interface{}) {
	p.delegate.Set(p.prefixed(key), value)
}

// SetDefault stores the fallback value under the prefixed key.
func (p *KeyPrefixedDataProvider) SetDefault(key string, value interface{}) {
	p.delegate.SetDefault(p.prefixed(key), value)
}

// IsSet reports whether the prefixed key is present.
func (p *KeyPrefixedDataProvider) IsSet(key string) bool {
	return p.delegate.IsSet(p.prefixed(key))
}

// Get returns the raw value under the prefixed key.
func (p *KeyPrefixedDataProvider) Get(key string) interface{} {
	return p.delegate.Get(p.prefixed(key))
}

// GetBool returns the value under the prefixed key as a bool.
func (p *KeyPrefixedDataProvider) GetBool(key string) (bool, error) {
	return p.delegate.GetBool(p.prefixed(key))
}

// GetInt returns the value under the prefixed key as an int.
func (p *KeyPrefixedDataProvider) GetInt(key string) (int, error) {
	return p.delegate.GetInt(p.prefixed(key))
}

// GetFloat64 returns the value under the prefixed key as a float64.
func (p *KeyPrefixedDataProvider) GetFloat64(key string) (float64, error) {
	return p.delegate.GetFloat64(p.prefixed(key))
}

// GetString returns the value under the prefixed key as a string.
func (p *KeyPrefixedDataProvider) GetString(key string) (string, error) {
	return p.delegate.GetString(p.prefixed(key))
}

// GetStringFromSet returns the value under the prefixed key as a string,
// requiring it to be one of the given set.
func (p *KeyPrefixedDataProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return p.delegate.GetStringFromSet(p.prefixed(key), set, ignoreCase)
}

// GetStringSlice returns the value under the prefixed key as a slice of strings.
func (p *KeyPrefixedDataProvider) GetStringSlice(key string) ([]string, error) {
	return p.delegate.GetStringSlice(p.prefixed(key))
}

// GetDuration returns the value under the prefixed key as a time.Duration.
func (p *KeyPrefixedDataProvider) GetDuration(key string) (time.Duration, error) {
	return p.delegate.GetDuration(p.prefixed(key))
}

// GetSizeInBytes returns the value under the prefixed key as a size in bytes.
func (p *KeyPrefixedDataProvider) GetSizeInBytes(key string) (uint64, error) {
	return p.delegate.GetSizeInBytes(p.prefixed(key))
}

// GetStringMapString returns the value under the prefixed key as a map of strings.
func (p *KeyPrefixedDataProvider) GetStringMapString(key string) (map[string]string, error) {
	return p.delegate.GetStringMapString(p.prefixed(key))
}

// Unmarshal decodes the subtree under the prefix into the given struct.
func (p *KeyPrefixedDataProvider) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.delegate.UnmarshalKey(p.prefixed(""), rawVal, opts...)
}

// UnmarshalKey decodes the subtree under the prefixed key into the given struct.
func (p *KeyPrefixedDataProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.delegate.UnmarshalKey(p.prefixed(key), rawVal, opts...)
}

// WrapKeyErr annotates an error with the prefixed key it belongs to.
func (p *KeyPrefixedDataProvider) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(p.prefixed(key), err)
}
