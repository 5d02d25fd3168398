package h4

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blehci"
	"github.com/rigado/blehci/linux/hci/snoop"
)

// PacketType is the leading H4 byte selecting the HCI packet kind.
type PacketType uint8

const (
	Command PacketType = 0x01
	ACL     PacketType = 0x02
	SCO     PacketType = 0x03
	Event   PacketType = 0x04
)

func (t PacketType) String() string {
	switch t {
	case Command:
		return "cmd"
	case ACL:
		return "acl"
	case SCO:
		return "sco"
	case Event:
		return "evt"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(t))
	}
}

const (
	tagLength       = 1
	aclHeaderLength = 4
	scoHeaderLength = 3
	evtHeaderLength = 2

	// MaxFrameSize bounds tag + header + payload of any incoming frame.
	MaxFrameSize = 1024

	defaultReadTimeout = 500 * time.Millisecond
)

var (
	ErrClosed            = errors.New("h4: transport closed")
	ErrPeerClosed        = errors.New("h4: peer closed the connection")
	ErrShortRead         = errors.New("h4: short read")
	ErrFrameTooLarge     = errors.New("h4: frame exceeds maximum size")
	ErrUnknownPacketType = errors.New("h4: unknown packet type")
	ErrInvalidPacketType = errors.New("h4: packet type can't be sent to the controller")
	ErrNoReceiver        = errors.New("h4: no receiver")
)

// Receiver consumes decoded packets. Methods run on the transport's event loop and must
// not block; b holds the HCI header and payload without the H4 byte and is owned by the
// receiver.
type Receiver interface {
	HandleEvent(b []byte)
	HandleACL(b []byte)
	HandleSCO(b []byte)
}

// Options tune a Driver.
type Options struct {
	// Capture records every frame. Closed together with the driver.
	Capture snoop.Sink

	// ErrorHandler receives fatal transport errors. Called at most once, from the event
	// loop. Defaults to blehci.DefaultErrorHandler.
	ErrorHandler func(error)

	// ReadTimeout bounds the wait for the remainder of a frame after its type byte arrived.
	ReadTimeout time.Duration

	Logger blehci.Logger
}

func DefaultOptions() Options {
	return Options{
		Capture:      snoop.Discard(),
		ErrorHandler: blehci.DefaultErrorHandler,
		ReadTimeout:  defaultReadTimeout,
	}
}

func (o *Options) fill() {
	d := DefaultOptions()
	if o.Capture == nil {
		o.Capture = d.Capture
	}
	if o.ErrorHandler == nil {
		o.ErrorHandler = d.ErrorHandler
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.Logger == nil {
		o.Logger = blehci.ComponentLogger("h4")
	}
}
