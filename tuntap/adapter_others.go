// +build !windows,!darwin,!linux

package tuntap

import "errors"

// NewTapAdapter instantiates a new tap adapter.
func NewTapAdapter(config *AdapterConfig) (Adapter, error) {
	return nil, errors.New("not implemented on this platform")
}

// NewTunAdapter instantiates a new tun adapter.
func NewTunAdapter(config *AdapterConfig) (Adapter, error) {
	return nil, errors.New("not implemented on this platform")
}
