//go:build linux

package h4

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blehci"
	"github.com/rigado/blehci/linux/hci/snoop"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Driver exchanges H4 frames with a controller over a non-blocking descriptor. Reads and
// writes run on the driver's own event loop; Send may be called from any goroutine.
type Driver struct {
	ep     Endpoint
	opts   Options
	logger blehci.Logger

	fd   int
	src  *fdSource
	loop *reactor

	mu     sync.Mutex
	reg    *registration
	queue  [][]byte
	rx     Receiver
	closed bool
	failed bool

	failOnce sync.Once
}

// Open connects ep and starts delivering decoded packets to rx, which stays the only
// receiver for the lifetime of the driver.
func Open(ctx context.Context, ep Endpoint, rx Receiver, opts Options) (*Driver, error) {
	if rx == nil {
		return nil, ErrNoReceiver
	}
	opts.fill()

	fd, err := ep.Connect(ctx)
	if err != nil {
		return nil, err
	}

	loop, err := newReactor()
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't start event loop")
	}

	d := &Driver{
		ep:     ep,
		opts:   opts,
		logger: opts.Logger,
		fd:     fd,
		src:    &fdSource{fd: fd, timeout: opts.ReadTimeout},
		loop:   loop,
		rx:     rx,
	}

	d.mu.Lock()
	d.reg, err = loop.Register(fd, d.onReadable, nil)
	d.mu.Unlock()
	if err != nil {
		loop.Stop()
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't register h4 descriptor")
	}

	d.logger.Infof("h4 transport opened on %v", ep)
	return d, nil
}

// Send queues payload behind the H4 byte for t. Frames leave in call order.
func (d *Driver) Send(t PacketType, payload []byte) error {
	switch t {
	case Command, ACL, SCO:
	default:
		return errors.Wrapf(ErrInvalidPacketType, "%v", t)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.failed {
		return ErrClosed
	}

	d.opts.Capture.Capture(snoop.Outgoing, uint8(t), payload)
	d.queue = append(d.queue, frame(t, payload))
	if len(d.queue) == 1 {
		if err := d.loop.SetWriteCallback(d.reg, d.onWritable); err != nil {
			return errors.Wrap(err, "can't arm h4 write")
		}
	}
	return nil
}

// Close stops the event loop and releases the descriptor and the capture sink. No receiver
// method runs after Close returns.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	reg := d.reg
	d.mu.Unlock()

	err := d.loop.Unregister(reg)
	d.loop.Stop()

	d.mu.Lock()
	d.queue = nil
	d.rx = nil
	d.mu.Unlock()

	err = multierr.Append(err, errors.Wrap(unix.Close(d.fd), "can't close h4"))
	err = multierr.Append(err, d.opts.Capture.Close())

	d.logger.Infof("h4 transport on %v closed", d.ep)
	return err
}

func (d *Driver) onReadable() {
	t, b, err := readFrame(d.src)
	switch {
	case errors.Is(err, errWouldBlock):
		return
	case err != nil:
		d.fail(err)
		return
	}

	d.opts.Capture.Capture(snoop.Incoming, uint8(t), b)

	d.mu.Lock()
	rx := d.rx
	d.mu.Unlock()
	if rx == nil {
		return
	}

	switch t {
	case Event:
		rx.HandleEvent(b)
	case ACL:
		rx.HandleACL(b)
	case SCO:
		rx.HandleSCO(b)
	}
}

// onWritable writes the head of the queue; one frame per readiness notification.
func (d *Driver) onWritable() {
	d.mu.Lock()

	if len(d.queue) == 0 {
		d.loop.SetWriteCallback(d.reg, nil)
		d.mu.Unlock()
		return
	}

	b := d.queue[0]
	n, err := unix.Write(d.fd, b)
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		d.mu.Unlock()
		return
	case err != nil:
		d.mu.Unlock()
		d.fail(errors.Wrap(err, "can't write h4"))
		return
	case n < len(b):
		d.queue[0] = b[n:]
		d.mu.Unlock()
		return
	}

	d.queue[0] = nil
	d.queue = d.queue[1:]
	if len(d.queue) == 0 {
		d.loop.SetWriteCallback(d.reg, nil)
	}
	d.mu.Unlock()
}

// fail stops the driver after an unrecoverable error and reports it once.
func (d *Driver) fail(err error) {
	d.failOnce.Do(func() {
		d.mu.Lock()
		d.failed = true
		d.queue = nil
		reg := d.reg
		d.mu.Unlock()

		d.loop.Unregister(reg)
		d.logger.Errorf("h4 transport on %v failed: %v", d.ep, err)
		d.opts.ErrorHandler(err)
	})
}

// fdSource reads frames from a non-blocking descriptor.
type fdSource struct {
	fd      int
	timeout time.Duration
}

func (s *fdSource) readTag() (byte, error) {
	var b [1]byte
	for {
		n, err := unix.Read(s.fd, b[:])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, errWouldBlock
		case err != nil:
			return 0, errors.Wrap(err, "can't read h4")
		case n == 0:
			return 0, ErrPeerClosed
		}
		return b[0], nil
	}
}

func (s *fdSource) readFull(p []byte) error {
	deadline := time.Now().Add(s.timeout)
	got := 0
	for got < len(p) {
		n, err := unix.Read(s.fd, p[got:])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return errors.Wrapf(ErrShortRead, "got %d bytes", got)
			}
			pfds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
			if _, err := unix.Poll(pfds, int(remaining/time.Millisecond)+1); err != nil && !errors.Is(err, unix.EINTR) {
				return errors.Wrap(err, "can't poll h4")
			}
			continue
		case err != nil:
			return errors.Wrap(err, "can't read h4")
		case n == 0:
			return errors.Wrapf(ErrShortRead, "peer closed after %d bytes", got)
		}
		got += n
	}
	return nil
}
