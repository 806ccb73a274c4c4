package sound

import "errors"

var (
	ErrBackendUnavailable   = errors.New("audio backend unavailable")
	ErrNoDevices            = errors.New("no audio devices found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrInsufficientChannels = errors.New("device doesn't have enough channels")
	ErrFormatNotSupported   = errors.New("format not supported")
	ErrNotResponding        = errors.New("audio callback not responding")
)
