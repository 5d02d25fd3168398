package hci

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrClosed         = errors.New("hci: closed")
	ErrNoTransport    = errors.New("hci: no valid transport found")
	ErrCommandTimeout = errors.New("hci: no response to command")
	ErrHardware       = errors.New("hci: controller hardware error")
	ErrInvalidEvent   = errors.New("hci: invalid event packet")
)

// ErrCommand is a non-zero status returned for a command [Vol 1, Part F, 1.3].
type ErrCommand byte

var errCommandNames = map[ErrCommand]string{
	0x01: "unknown HCI command",
	0x02: "unknown connection identifier",
	0x03: "hardware failure",
	0x07: "memory capacity exceeded",
	0x0C: "command disallowed",
	0x11: "unsupported feature or parameter value",
	0x12: "invalid HCI command parameters",
	0x1F: "unspecified error",
	0x3A: "controller busy",
}

func (e ErrCommand) Error() string {
	if s, ok := errCommandNames[e]; ok {
		return fmt.Sprintf("hci: command failed: %s (0x%02X)", s, byte(e))
	}
	return fmt.Sprintf("hci: command failed: status 0x%02X", byte(e))
}
