package evt

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrIndex = errors.New("evt: index out of range")

func (e CommandComplete) NumHCICommandPacketsWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e CommandComplete) CommandOpcodeWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e CommandComplete) ReturnParametersWErr() ([]byte, error) {
	return getBytes(e, 3, -1)
}

func (e CommandComplete) StatusWErr() (uint8, error) {
	return getByte(e, 3, 0xff)
}

func (e CommandStatus) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e CommandStatus) NumHCICommandPacketsWErr() (uint8, error) {
	return getByte(e, 1, 0)
}

func (e CommandStatus) CommandOpcodeWErr() (uint16, error) {
	return getUint16LE(e, 2, 0xffff)
}

func (e HardwareError) HardwareCodeWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

// get or default
func getByte(b []byte, i int, def byte) (byte, error) {
	bb, err := getBytes(b, i, 1)
	if err != nil {
		return def, err
	}
	return bb[0], nil
}

// get or default
func getUint16LE(b []byte, i int, def uint16) (uint16, error) {
	bb, err := getBytes(b, i, 2)
	if err != nil {
		return def, err
	}
	return binary.LittleEndian.Uint16(bb), nil
}

func getBytes(b []byte, start int, count int) ([]byte, error) {
	if b == nil || start >= len(b) {
		return nil, errors.Wrapf(ErrIndex, "offset %d, length %d", start, len(b))
	}

	if count < 0 {
		return b[start:], nil
	}

	// end is non-inclusive
	end := start + count
	if end > len(b) {
		return nil, errors.Wrapf(ErrIndex, "offset %d+%d, length %d", start, count, len(b))
	}

	return b[start:end], nil
}
