package h4

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Endpoint is something a Driver can be opened on. Connect returns a connected descriptor
// owned by the caller.
type Endpoint interface {
	Connect(ctx context.Context) (int, error)
	String() string
}

// TCPEndpoint is an H4 stream server, typically an emulated controller.
type TCPEndpoint struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// ParseTCPEndpoint splits a host:port address.
func ParseTCPEndpoint(addr string, timeout time.Duration) (TCPEndpoint, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return TCPEndpoint{}, errors.Wrapf(err, "invalid h4 socket address %q", addr)
	}

	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 0xffff {
		return TCPEndpoint{}, errors.Errorf("invalid h4 socket port %q", port)
	}

	return TCPEndpoint{Host: host, Port: p, Timeout: timeout}, nil
}

func (e TCPEndpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// UARTEndpoint is a serial line speaking H4.
type UARTEndpoint struct {
	Path        string
	BaudRate    uint
	FlowControl bool
}

const defaultBaudRate = 115200

func (e UARTEndpoint) String() string {
	return fmt.Sprintf("%s@%d", e.Path, e.baudRate())
}

func (e UARTEndpoint) baudRate() uint {
	if e.BaudRate == 0 {
		return defaultBaudRate
	}
	return e.BaudRate
}
