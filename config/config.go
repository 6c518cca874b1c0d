/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package config

import "reflect"

// Config is implemented by configuration objects the Loader can fill in:
// first defaults through SetProviderDefaults, then values through Set.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider reports the key prefix under which a configuration
// object reads its parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// CallSetProviderDefaultsForFields walks the exported fields of obj and calls
// SetProviderDefaults on every non-nil field implementing Config.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	_ = forEachConfigField(obj, dp, func(c Config, fieldDp DataProvider) error {
		c.SetProviderDefaults(fieldDp)
		return nil
	})
}

// CallSetForFields walks the exported fields of obj and calls Set on every
// non-nil field implementing Config, stopping at the first error.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	return forEachConfigField(obj, dp, func(c Config, fieldDp DataProvider) error {
		return c.Set(fieldDp)
	})
}

// forEachConfigField visits obj's exported Config fields, handing each one a
// data provider scoped to its key prefix when the field declares one.
func forEachConfigField(obj interface{}, dp DataProvider, fn func(c Config, fieldDp DataProvider) error) error {
	objVal := reflect.ValueOf(obj).Elem()
	objType := objVal.Type()
	for i := 0; i < objVal.NumField(); i++ {
		if !objType.Field(i).IsExported() {
			continue
		}
		fieldVal := objVal.Field(i).Interface()
		rv := reflect.ValueOf(fieldVal)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			continue
		}
		c, ok := fieldVal.(Config)
		if !ok {
			continue
		}
		fieldDp := dp
		if kp, ok := fieldVal.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
			fieldDp = NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
		}
		if err := fn(c, fieldDp); err != nil {
			return err
		}
	}
	return nil
}
