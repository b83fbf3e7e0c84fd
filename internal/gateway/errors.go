package gateway

import "errors"

// Domain errors for the gateway package, checked with errors.Is.
var (
	// ErrDeviceNotConnected is returned when a command targets a token with no
	// live connection. HTTP callers map this to a 503-class response.
	ErrDeviceNotConnected = errors.New("gateway: device not connected")

	// ErrUnknownToken is returned when a handshake token does not resolve to a
	// known device. The socket is closed immediately, no retry.
	ErrUnknownToken = errors.New("gateway: unknown device token")

	// ErrTransportFailed is returned when a socket write fails mid-send.
	// Delivery is fire-and-forget; the caller may retry, this core does not.
	ErrTransportFailed = errors.New("gateway: transport write failed")
)
