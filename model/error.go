package model

import (
	"github.com/pkg/errors"
)

// Error sentinels. Test for them with errors.Is: everything returned by this
// module wraps one of these when the category matters to a caller.
var (
	// ErrConfiguration is fatal and always happens before sampling starts
	ErrConfiguration = errors.New("configuration error")

	// ErrCycle means the extended child relation is not acyclic
	ErrCycle = errors.Wrap(ErrConfiguration, "cyclic extended child relation")

	// ErrNumericFault is a NaN/Inf that is not a zero-probability outcome
	ErrNumericFault = errors.New("numeric fault")
)

// ConfigErrorf builds an error that wraps ErrConfiguration
func ConfigErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}
