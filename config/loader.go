/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package config

import (
	"io"
)

// Loader reads configuration data into a provider and distributes it over
// one or more Config objects, applying their defaults first.
type Loader struct {
	DataProvider DataProvider
}

// NewLoader creates a Loader on top of the given provider.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// NewDefaultLoader creates a viper-backed Loader that also reads
// environment variables with the given prefix.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	dp := NewViperAdapter()
	dp.UseEnvVars(envVarsPrefix)
	return NewLoader(dp)
}

// LoadFromFile reads the file and populates the given configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.populate(append([]Config{cfg}, cfgs...))
}

// LoadFromReader reads from the reader and populates the given configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.populate(append([]Config{cfg}, cfgs...))
}

// populate applies all defaults before setting any values, so one config's
// Set never observes another's missing defaults.
func (l *Loader) populate(cfgs []Config) error {
	providers := make([]DataProvider, len(cfgs))
	for i, cfg := range cfgs {
		providers[i] = l.DataProvider
		if prefixed, ok := cfg.(KeyPrefixProvider); ok && prefixed.KeyPrefix() != "" {
			providers[i] = NewKeyPrefixedDataProvider(l.DataProvider, prefixed.KeyPrefix())
		}
	}
	for i, cfg := range cfgs {
		cfg.SetProviderDefaults(providers[i])
	}
	for i, cfg := range cfgs {
		if err := cfg.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}
