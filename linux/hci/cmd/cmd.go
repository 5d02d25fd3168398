// Package cmd encodes the HCI commands issued by this module [Vol 4, Part E, 7].
package cmd

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Command is an HCI command. Marshal writes the parameters only; the opcode and parameter
// length header is added by Bytes.
type Command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

// CommandRP is the return parameters of a command, starting with the status byte.
type CommandRP interface {
	Unmarshal(b []byte) error
}

// HeaderLength is the size of the command packet header: opcode and parameter length.
const HeaderLength = 3

// Bytes returns the complete command packet without the H4 packet type.
func Bytes(c Command) ([]byte, error) {
	if c.Len() > 0xff {
		return nil, errors.Errorf("command 0x%04X: %d parameter bytes", c.OpCode(), c.Len())
	}

	b := make([]byte, HeaderLength+c.Len())
	b[0] = byte(c.OpCode())
	b[1] = byte(c.OpCode() >> 8)
	b[2] = byte(c.Len())
	if err := c.Marshal(b[HeaderLength:]); err != nil {
		return nil, errors.Wrapf(err, "can't marshal command 0x%04X", c.OpCode())
	}
	return b, nil
}

// OpCode builds an opcode from its group and command fields.
func OpCode(ogf, ocf int) int {
	return ogf<<10 | ocf
}

func marshal(c interface{}, b []byte) error {
	buf := bytes.NewBuffer(b[:0])
	if err := binary.Write(buf, binary.LittleEndian, c); err != nil {
		return err
	}
	if buf.Len() > len(b) {
		return io.ErrShortBuffer
	}
	return nil
}

func unmarshal(c interface{}, b []byte) error {
	if len(b) < binary.Size(c) {
		return errors.Wrapf(io.ErrUnexpectedEOF, "return parameters: %d bytes", len(b))
	}
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, c)
}
