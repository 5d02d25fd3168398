//go:build linux

package h4

import (
	"context"
	"net"
	"os"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func (e TCPEndpoint) Connect(ctx context.Context) (int, error) {
	d := net.Dialer{Timeout: e.Timeout}
	c, err := d.DialContext(ctx, "tcp", e.String())
	if err != nil {
		return -1, errors.Wrapf(err, "can't connect to %v", e)
	}
	defer c.Close()

	tc, ok := c.(*net.TCPConn)
	if !ok {
		return -1, errors.Errorf("unexpected connection type %T", c)
	}

	f, err := tc.File()
	if err != nil {
		return -1, errors.Wrap(err, "can't get socket descriptor")
	}
	defer f.Close()

	return takeFd(f)
}

func (e UARTEndpoint) Connect(ctx context.Context) (int, error) {
	opts := serial.OpenOptions{
		PortName:          e.Path,
		BaudRate:          e.baudRate(),
		DataBits:          8,
		StopBits:          1,
		MinimumReadSize:   1,
		RTSCTSFlowControl: e.FlowControl,
	}

	p, err := serial.Open(opts)
	if err != nil {
		return -1, errors.Wrapf(err, "can't open %v", e)
	}

	f, ok := p.(*os.File)
	if !ok {
		p.Close()
		return -1, errors.Errorf("serial port %v has no descriptor", e)
	}
	defer f.Close()

	return takeFd(f)
}

// takeFd duplicates the descriptor behind f in non-blocking mode. f stays owned by the caller.
func takeFd(f *os.File) (int, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return -1, errors.Wrap(err, "can't dup descriptor")
	}
	unix.CloseOnExec(fd)

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "can't set descriptor non-blocking")
	}
	return fd, nil
}
