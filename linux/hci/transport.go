package hci

import (
	"time"

	"github.com/rigado/blehci/linux/hci/h4"
)

type transportH4Socket struct {
	addr    string
	timeout time.Duration
}

type transportH4Uart struct {
	path     string
	baudRate uint
}

type transport struct {
	h4uart   *transportH4Uart
	h4socket *transportH4Socket
}

func getEndpoint(t transport) (h4.Endpoint, error) {
	switch {
	case t.h4socket != nil:
		return h4.ParseTCPEndpoint(t.h4socket.addr, t.h4socket.timeout)

	case t.h4uart != nil:
		return h4.UARTEndpoint{Path: t.h4uart.path, BaudRate: t.h4uart.baudRate}, nil

	default:
		return nil, ErrNoTransport
	}
}

// sender is the part of the transport driver the host writes through.
type sender interface {
	Send(t h4.PacketType, payload []byte) error
	Close() error
}
