package domain

import "errors"

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrUnknownMarket is returned when a market id is not registered.
	ErrUnknownMarket = errors.New("unknown market")

	// ErrDuplicateMarket is returned when two markets share an id.
	ErrDuplicateMarket = errors.New("duplicate market id")

	// ErrInvalidValue is wrapped by ConfigError for out-of-range settings.
	ErrInvalidValue = errors.New("invalid value")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrCertificateNotFound is returned when a certificate id is unknown.
	ErrCertificateNotFound = errors.New("certificate not found")

	// ErrCertificateInactive is returned when a certificate was used or expired.
	ErrCertificateInactive = errors.New("certificate not active")

	// ErrNotOwner is returned when a transfer names the wrong current owner.
	ErrNotOwner = errors.New("certificate not owned by agent")

	// ErrInsufficientCertificates is returned when certificates do not cover an import.
	ErrInsufficientCertificates = errors.New("insufficient certificate value for import")
)
