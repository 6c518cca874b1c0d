/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package log

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"unsafe"

	"github.com/ssgreg/logf"
)

// StringMasker masks secrets in a string.
type StringMasker interface {
	Mask(s string) string
}

// MaskingLogger runs every logged message and field through a StringMasker
// before handing them to the underlying logger. Typical leaks it guards
// against: dumped HTTP requests in debug mode, and secrets embedded in URLs
// (like &api_key=<secret>) surfacing through connectivity errors.
type MaskingLogger struct {
	log    FieldLogger
	masker StringMasker
}

// NewMaskingLogger returns a new logger that masks all logged messages and fields using the passed masker.
func NewMaskingLogger(l FieldLogger, m StringMasker) FieldLogger {
	return MaskingLogger{l, m}
}

// With returns a new logger with the given additional fields.
func (l MaskingLogger) With(fs ...Field) FieldLogger {
	return MaskingLogger{l.log.With(l.maskFields(fs)...), l.masker}
}

// Debug logs a message at "debug" level.
func (l MaskingLogger) Debug(text string, fs ...Field) {
	l.log.Debug(l.masker.Mask(text), l.maskFields(fs)...)
}

// Info logs a message at "info" level.
func (l MaskingLogger) Info(text string, fs ...Field) {
	l.log.Info(l.masker.Mask(text), l.maskFields(fs)...)
}

// Warn logs a message at "warn" level.
func (l MaskingLogger) Warn(text string, fs ...Field) {
	l.log.Warn(l.masker.Mask(text), l.maskFields(fs)...)
}

// Error logs a message at "error" level.
func (l MaskingLogger) Error(text string, fs ...Field) {
	l.log.Error(l.masker.Mask(text), l.maskFields(fs)...)
}

// Debugf logs a formatted message at "debug" level.
func (l MaskingLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at "info" level.
func (l MaskingLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at "warn" level.
func (l MaskingLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at "error" level.
func (l MaskingLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// AtLevel invokes fn only when the level is enabled, masking everything the
// handed-in LogFunc writes.
func (l MaskingLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.log.AtLevel(level, func(logFunc LogFunc) {
		fn(func(msg string, fs ...Field) {
			logFunc(l.masker.Mask(msg), l.maskFields(fs)...)
		})
	})
}

// WithLevel returns a new logger with an additional level check
// (see LogfAdapter.WithLevel).
func (l MaskingLogger) WithLevel(level Level) FieldLogger {
	return MaskingLogger{l.log.WithLevel(level), l.masker}
}

// maskFields masks secrets in log fields. The passed slice is never modified:
// a copy is made lazily, on the first field that actually changes.
func (l MaskingLogger) maskFields(fields []Field) []Field {
	var out []Field
	for i := range fields {
		masked, changed := l.maskField(fields[i])
		if !changed {
			continue
		}
		if out == nil {
			out = make([]Field, len(fields))
			copy(out, fields)
		}
		out[i] = masked
	}
	if out == nil {
		return fields
	}
	return out
}

var stringSliceType = reflect.TypeOf([]string{})

func (l MaskingLogger) maskField(field Field) (Field, bool) {
	switch field.Type {
	case logf.FieldTypeBytesToString:
		s := *(*string)(unsafe.Pointer(&field.Bytes)) // nolint: gosec
		if masked := l.masker.Mask(s); masked != s {
			return String(field.Key, masked), true
		}

	case logf.FieldTypeError:
		err, ok := field.Any.(error)
		if !ok {
			break
		}
		s := err.Error()
		if masked := l.masker.Mask(s); masked != s {
			return NamedError(field.Key, maskError(err, l.masker, masked)), true
		}

	case logf.FieldTypeBytes, logf.FieldTypeRawBytes:
		if field.Bytes == nil {
			break
		}
		s := string(field.Bytes)
		if masked := l.masker.Mask(s); masked != s {
			return logf.ConstBytes(field.Key, []byte(masked)), true
		}

	case logf.FieldTypeArray:
		if field.Any == nil {
			break
		}
		value := reflect.ValueOf(field.Any)
		if !value.CanConvert(stringSliceType) {
			break
		}
		ss := value.Convert(stringSliceType).Interface().([]string)
		masked := make([]string, len(ss))
		var changed bool
		for j, s := range ss {
			masked[j] = l.masker.Mask(s)
			changed = changed || masked[j] != s
		}
		if changed {
			return Strings(field.Key, masked), true
		}

	case logf.FieldTypeAny:
		// arbitrary values pass through unmasked
	}
	return field, false
}

func maskError(err error, m StringMasker, masked string) error {
	if _, ok := err.(fmt.Formatter); ok {
		return maskedError{
			text:    masked,
			verbose: m.Mask(fmt.Sprintf("%+v", err)),
		}
	}
	return errors.New(masked)
}

// maskedError keeps the verbose representation so logf can still emit the
// "error_verbose" field for errors that implement fmt.Formatter.
type maskedError struct {
	text    string
	verbose string
}

func (e maskedError) Error() string {
	return e.text
}

func (e maskedError) Format(f fmt.State, verb rune) {
	_, _ = io.WriteString(f, e.verbose)
}
