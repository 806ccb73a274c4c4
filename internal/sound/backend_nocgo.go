//go:build !cgo

package sound

import "fmt"

func newPortAudio() (Backend, error) {
	return nil, fmt.Errorf("%w: %s requires cgo", ErrBackendUnavailable, BackendPortAudio)
}

func newMalgo() (Backend, error) {
	return nil, fmt.Errorf("%w: %s requires cgo", ErrBackendUnavailable, BackendMalgo)
}

func newOto() (Backend, error) {
	return nil, fmt.Errorf("%w: %s requires cgo", ErrBackendUnavailable, BackendOto)
}
