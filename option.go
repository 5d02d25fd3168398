package blehci

import (
	"time"
)

// DeviceOption is an interface which the device should implement to allow using configuration options
type DeviceOption interface {
	SetTransportH4Socket(addr string, timeout time.Duration) error
	SetTransportH4Uart(path string, baudRate uint) error
	SetCaptureFile(path string) error
	SetErrorHandler(handler func(error)) error
	SetCommandTimeout(time.Duration) error
	SetReadTimeout(time.Duration) error
}

// An Option is a configuration function, which configures the device.
type Option func(DeviceOption) error

// OptTransportH4Socket sets an h4 socket transport, addr is host:port.
func OptTransportH4Socket(addr string, timeout time.Duration) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportH4Socket(addr, timeout)
	}
}

// OptTransportH4Uart sets an h4 uart transport
func OptTransportH4Uart(path string, baudRate uint) Option {
	return func(opt DeviceOption) error {
		return opt.SetTransportH4Uart(path, baudRate)
	}
}

// OptCaptureFile records every frame to a pcap file at path.
func OptCaptureFile(path string) Option {
	return func(opt DeviceOption) error {
		return opt.SetCaptureFile(path)
	}
}

// OptErrorHandler sets error handler
func OptErrorHandler(handler func(error)) Option {
	return func(opt DeviceOption) error {
		return opt.SetErrorHandler(handler)
	}
}

// OptCommandTimeout bounds how long a synchronous command waits for its completion.
func OptCommandTimeout(d time.Duration) Option {
	return func(opt DeviceOption) error {
		return opt.SetCommandTimeout(d)
	}
}

// OptReadTimeout bounds how long the transport waits for the rest of a frame once its
// packet type byte arrived.
func OptReadTimeout(d time.Duration) Option {
	return func(opt DeviceOption) error {
		return opt.SetReadTimeout(d)
	}
}
