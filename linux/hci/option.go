package hci

import (
	"time"

	"github.com/pkg/errors"
)

// SetTransportH4Socket sets h4 socket server
func (h *HCI) SetTransportH4Socket(addr string, timeout time.Duration) error {
	h.transport = transport{
		h4socket: &transportH4Socket{addr, timeout},
	}
	_, err := getEndpoint(h.transport)
	return err
}

// SetTransportH4Uart sets h4 uart path
func (h *HCI) SetTransportH4Uart(path string, baudRate uint) error {
	if path == "" {
		return errors.New("empty uart path")
	}
	h.transport = transport{
		h4uart: &transportH4Uart{path, baudRate},
	}
	return nil
}

// SetCaptureFile records all traffic to a pcap file created at Init.
func (h *HCI) SetCaptureFile(path string) error {
	h.capturePath = path
	return nil
}

// SetErrorHandler ...
func (h *HCI) SetErrorHandler(handler func(error)) error {
	h.errorHandler = handler
	return nil
}

// SetCommandTimeout bounds the wait of Send for a completion.
func (h *HCI) SetCommandTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("invalid command timeout %v", d)
	}
	h.cmdTimeout = d
	return nil
}

// SetReadTimeout bounds the wait for the remainder of an incoming frame.
func (h *HCI) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("invalid read timeout %v", d)
	}
	h.readTimeout = d
	return nil
}
