// Package hci is the host side of the Host Controller Interface: it owns the H4 transport,
// paces commands with the controller's command credits and routes completions back to
// whoever submitted the command.
package hci

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blehci"
	"github.com/rigado/blehci/linux/hci/cmd"
	"github.com/rigado/blehci/linux/hci/evt"
	"github.com/rigado/blehci/linux/hci/h4"
	"github.com/rigado/blehci/linux/hci/snoop"
)

type handlerFn func(b []byte) error

type pkt struct {
	cmd        cmd.Command
	b          []byte
	onComplete func(evt.CommandComplete)
}

func (p *pkt) String() string {
	if s, ok := p.cmd.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("command 0x%04X", p.cmd.OpCode())
}

// NewHCI returns a hci device.
func NewHCI(opts ...blehci.Option) (*HCI, error) {
	h := &HCI{
		errorHandler: blehci.DefaultErrorHandler,
		cmdTimeout:   defaultCommandTimeout,
		logger:       blehci.ComponentLogger("hci"),

		credits: initialCommandCredits,
		sent:    make(map[int][]*pkt),
		done:    make(chan struct{}),
	}
	h.evth = map[int]handlerFn{
		evt.CommandCompleteCode: h.handleCommandComplete,
		evt.CommandStatusCode:   h.handleCommandStatus,
		evt.HardwareErrorCode:   h.handleHardwareError,
		evt.LEMetaCode:          h.handleLEMeta,
	}

	if err := h.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}
	return h, nil
}

// HCI ...
type HCI struct {
	transport    transport
	capturePath  string
	errorHandler func(error)
	cmdTimeout   time.Duration
	readTimeout  time.Duration
	logger       blehci.Logger

	// evtHub
	evth map[int]handlerFn

	mu sync.Mutex
	tp sender

	// Host to Controller command flow control [Vol 4, Part E, 4.4]
	credits int
	pending []*pkt
	sent    map[int][]*pkt

	aclHandler func([]byte)
	scoHandler func([]byte)

	// Device information, read by Init.
	addr                 blehci.Address
	filterAcceptListSize uint8
	resolvingListSize    uint8

	closeOnce sync.Once
	done      chan struct{}
}

// Option sets the options specified.
func (h *HCI) Option(opts ...blehci.Option) error {
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return err
		}
	}
	return nil
}

// Init opens the transport, resets the controller and reads its address and list sizes.
func (h *HCI) Init(ctx context.Context) error {
	ep, err := getEndpoint(h.transport)
	if err != nil {
		return err
	}

	capture := snoop.Discard()
	if h.capturePath != "" {
		if capture, err = snoop.NewFile(h.capturePath); err != nil {
			return err
		}
	}

	drv, err := h4.Open(ctx, ep, h, h4.Options{
		Capture:      capture,
		ErrorHandler: h.dispatchError,
		ReadTimeout:  h.readTimeout,
		Logger:       h.logger.ChildLogger(map[string]interface{}{"transport": ep.String()}),
	})
	if err != nil {
		capture.Close()
		return err
	}

	h.mu.Lock()
	h.tp = drv
	h.mu.Unlock()

	return h.init()
}

func (h *HCI) init() error {
	h.logger.Info("hci reset")
	if err := h.Send(&cmd.Reset{}, nil); err != nil {
		return errors.Wrap(err, "can't reset controller")
	}

	ReadBDADDRRP := cmd.ReadBDADDRRP{}
	if err := h.Send(&cmd.ReadBDADDR{}, &ReadBDADDRRP); err != nil {
		return errors.Wrap(err, "can't read bd_addr")
	}

	LEReadFilterAcceptListSizeRP := cmd.LEReadFilterAcceptListSizeRP{}
	if err := h.Send(&cmd.LEReadFilterAcceptListSize{}, &LEReadFilterAcceptListSizeRP); err != nil {
		return errors.Wrap(err, "can't read filter accept list size")
	}

	LEReadResolvingListSizeRP := cmd.LEReadResolvingListSizeRP{}
	if err := h.Send(&cmd.LEReadResolvingListSize{}, &LEReadResolvingListSizeRP); err != nil {
		return errors.Wrap(err, "can't read resolving list size")
	}

	h.mu.Lock()
	h.addr = ReadBDADDRRP.BDADDR
	h.filterAcceptListSize = LEReadFilterAcceptListSizeRP.FilterAcceptListSize
	h.resolvingListSize = LEReadResolvingListSizeRP.ResolvingListSize
	h.mu.Unlock()

	h.logger.Infof("controller %v: filter accept list %d, resolving list %d",
		blehci.Address(ReadBDADDRRP.BDADDR),
		LEReadFilterAcceptListSizeRP.FilterAcceptListSize,
		LEReadResolvingListSizeRP.ResolvingListSize)
	return nil
}

// Addr is the controller's public address.
func (h *HCI) Addr() blehci.Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

func (h *HCI) FilterAcceptListSize() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filterAcceptListSize
}

func (h *HCI) ResolvingListSize() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resolvingListSize
}

// SetACLHandler installs the consumer of incoming ACL data. It runs on the transport's event
// loop and must not block.
func (h *HCI) SetACLHandler(fn func([]byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aclHandler = fn
}

// SetSCOHandler installs the consumer of incoming SCO data, with the same constraints as
// SetACLHandler.
func (h *HCI) SetSCOHandler(fn func([]byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scoHandler = fn
}

// SendACL writes an ACL data packet, header included.
func (h *HCI) SendACL(b []byte) error {
	h.mu.Lock()
	tp := h.tp
	h.mu.Unlock()

	if tp == nil || !h.isOpen() {
		return ErrClosed
	}
	return tp.Send(h4.ACL, b)
}

// EnqueueCommand submits c without waiting. onComplete, if not nil, receives the Command
// Complete event for c on the transport's event loop and must not block. Commands with the
// same opcode complete in submission order.
func (h *HCI) EnqueueCommand(c cmd.Command, onComplete func(evt.CommandComplete)) error {
	b, err := cmd.Bytes(c)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.isOpen() {
		return ErrClosed
	}
	h.pending = append(h.pending, &pkt{cmd: c, b: b, onComplete: onComplete})
	return h.flushLocked()
}

// Send submits c and waits for its completion, unmarshaling the return parameters into r.
// It must not be called from an event callback.
func (h *HCI) Send(c cmd.Command, r cmd.CommandRP) error {
	done := make(chan evt.CommandComplete, 1)
	if err := h.EnqueueCommand(c, func(e evt.CommandComplete) { done <- e }); err != nil {
		return err
	}

	var e evt.CommandComplete
	select {
	case e = <-done:
	case <-h.done:
		return ErrClosed
	case <-time.After(h.cmdTimeout):
		err := errors.Wrapf(ErrCommandTimeout, "opcode 0x%04X after %v", c.OpCode(), h.cmdTimeout)
		h.dispatchError(err)
		return err
	}

	b, err := e.ReturnParametersWErr()
	if err != nil {
		return errors.Wrapf(err, "completion of opcode 0x%04X", c.OpCode())
	}
	if b[0] != 0x00 {
		return ErrCommand(b[0])
	}
	if r != nil {
		return r.Unmarshal(b)
	}
	return nil
}

// Close stops the transport. Pending synchronous commands return ErrClosed.
func (h *HCI) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		close(h.done)
		tp := h.tp
		h.pending = nil
		h.sent = make(map[int][]*pkt)
		h.mu.Unlock()

		if tp != nil {
			err = tp.Close()
		}
		h.logger.Info("hci closed")
	})
	return err
}

func (h *HCI) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// flushLocked writes pending commands while the controller has credits.
func (h *HCI) flushLocked() error {
	for h.credits > 0 && len(h.pending) > 0 && h.tp != nil {
		p := h.pending[0]
		h.pending[0] = nil
		h.pending = h.pending[1:]

		h.credits--
		op := p.cmd.OpCode()
		h.sent[op] = append(h.sent[op], p)

		h.logger.Debugf("send %v: % X", p, p.b)
		if err := h.tp.Send(h4.Command, p.b); err != nil {
			return errors.Wrapf(err, "can't send %v", p)
		}
	}
	return nil
}

func (h *HCI) popSentLocked(op int) *pkt {
	q := h.sent[op]
	if len(q) == 0 {
		return nil
	}
	p := q[0]
	if len(q) == 1 {
		delete(h.sent, op)
	} else {
		q[0] = nil
		h.sent[op] = q[1:]
	}
	return p
}

// complete updates the command credits and pops the command answered by op.
func (h *HCI) complete(credits uint8, op int) *pkt {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.credits = int(credits)

	var p *pkt
	// opcode 0 only returns credits [Vol 4, Part E, 4.4]
	if op != 0x0000 {
		if p = h.popSentLocked(op); p == nil {
			h.logger.Warnf("no command pending for opcode 0x%04X", op)
		}
	}

	if err := h.flushLocked(); err != nil {
		// the transport reports its own failure
		h.logger.Errorf("%v", err)
	}
	return p
}

func (h *HCI) dispatchError(e error) {
	switch {
	case e == nil:
	case h.errorHandler == nil:
		h.logger.Error(e)
	case !h.isOpen():
		// don't dispatch
		h.logger.Debugf("hci closing: %v", e)
	default:
		h.errorHandler(e)
	}
}

// HandleEvent implements h4.Receiver.
func (h *HCI) HandleEvent(b []byte) {
	if len(b) < evt.HeaderLength || int(b[1]) != len(b)-evt.HeaderLength {
		h.dispatchError(errors.Wrapf(ErrInvalidEvent, "% X", b))
		return
	}

	code := int(b[0])
	if f := h.evth[code]; f != nil {
		if err := f(b[evt.HeaderLength:]); err != nil {
			h.dispatchError(err)
		}
		return
	}
	if code == evt.VendorCode {
		// Ignore vendor events
		return
	}
	h.logger.Debugf("unhandled event 0x%02X: % X", code, b[evt.HeaderLength:])
}

// HandleACL implements h4.Receiver.
func (h *HCI) HandleACL(b []byte) {
	h.mu.Lock()
	fn := h.aclHandler
	h.mu.Unlock()

	if fn == nil {
		h.logger.Debugf("dropped acl packet: % X", b)
		return
	}
	fn(b)
}

// HandleSCO implements h4.Receiver.
func (h *HCI) HandleSCO(b []byte) {
	h.mu.Lock()
	fn := h.scoHandler
	h.mu.Unlock()

	if fn == nil {
		h.logger.Debugf("dropped sco packet: % X", b)
		return
	}
	fn(b)
}

func (h *HCI) handleCommandComplete(b []byte) error {
	e := evt.CommandComplete(b)

	op, err := e.CommandOpcodeWErr()
	if err != nil {
		return errors.Wrapf(ErrInvalidEvent, "command complete: % X", b)
	}

	p := h.complete(e.NumHCICommandPackets(), int(op))
	if p != nil && p.onComplete != nil {
		p.onComplete(e)
	}
	return nil
}

// handleCommandStatus answers the pending command with its status, shaped as a Command
// Complete carrying only the status as return parameter.
func (h *HCI) handleCommandStatus(b []byte) error {
	e := evt.CommandStatus(b)
	if !e.Valid() {
		return errors.Wrapf(ErrInvalidEvent, "command status: % X", b)
	}

	op := e.CommandOpcode()
	p := h.complete(e.NumHCICommandPackets(), int(op))
	if p != nil && p.onComplete != nil {
		p.onComplete(evt.CommandComplete{e.NumHCICommandPackets(), byte(op), byte(op >> 8), e.Status()})
	}
	return nil
}

func (h *HCI) handleHardwareError(b []byte) error {
	code, err := evt.HardwareError(b).HardwareCodeWErr()
	if err != nil {
		return errors.Wrapf(ErrInvalidEvent, "hardware error: % X", b)
	}
	return errors.Wrapf(ErrHardware, "code 0x%02X", code)
}

func (h *HCI) handleLEMeta(b []byte) error {
	if len(b) == 0 {
		return errors.Wrap(ErrInvalidEvent, "empty LE meta event")
	}
	h.logger.Debugf("unhandled LE event 0x%02X: % X", b[0], b[1:])
	return nil
}

var _ h4.Receiver = (*HCI)(nil)
var _ blehci.DeviceOption = (*HCI)(nil)

// IsClosed reports whether err means the host or its transport shut down.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, h4.ErrClosed)
}
