package h4

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// source is a byte stream positioned on a frame boundary.
type source interface {
	// readTag reads the packet type byte. It returns ErrPeerClosed when the stream ended and
	// errWouldBlock when nothing is available yet.
	readTag() (byte, error)

	// readFull fills p or fails with ErrShortRead.
	readFull(p []byte) error
}

var errWouldBlock = errors.New("h4: no data available")

// readFrame reads one complete frame from src and returns its type together with the HCI
// header and payload.
func readFrame(src source) (PacketType, []byte, error) {
	tag, err := src.readTag()
	if err != nil {
		return 0, nil, err
	}

	t := PacketType(tag)
	var hl int
	switch t {
	case Event:
		hl = evtHeaderLength
	case ACL:
		hl = aclHeaderLength
	case SCO:
		hl = scoHeaderLength
	default:
		return t, nil, errors.Wrapf(ErrUnknownPacketType, "0x%02X", tag)
	}

	hdr := make([]byte, hl)
	if err := src.readFull(hdr); err != nil {
		return t, nil, errors.Wrapf(err, "%v header: expected %d bytes", t, hl)
	}

	pl := payloadLength(t, hdr)
	if total := tagLength + hl + pl; total > MaxFrameSize {
		return t, nil, errors.Wrapf(ErrFrameTooLarge, "%v frame: %d > %d bytes", t, total, MaxFrameSize)
	}

	b := make([]byte, hl+pl)
	copy(b, hdr)
	if err := src.readFull(b[hl:]); err != nil {
		return t, nil, errors.Wrapf(err, "%v payload: expected %d bytes", t, pl)
	}
	return t, b, nil
}

func payloadLength(t PacketType, hdr []byte) int {
	switch t {
	case Event:
		return int(hdr[1])
	case ACL:
		return int(binary.LittleEndian.Uint16(hdr[2:4]))
	case SCO:
		return int(hdr[2])
	default:
		return 0
	}
}

// frame prepends the H4 packet type to payload.
func frame(t PacketType, payload []byte) []byte {
	b := make([]byte, tagLength+len(payload))
	b[0] = byte(t)
	copy(b[tagLength:], payload)
	return b
}
