// Package privacy manages the LE random address of a controller. It applies the configured
// address policy, rotates private addresses and serializes every privacy-sensitive
// controller command behind a barrier that pauses all registered clients first.
package privacy

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rigado/blehci"
	"github.com/rigado/blehci/linux/hci/cmd"
	"github.com/rigado/blehci/linux/hci/evt"
	"github.com/rigado/blehci/linux/hci/handler"
)

var (
	ErrPolicyAlreadySet        = errors.New("privacy: policy already set")
	ErrInvalidPolicy           = errors.New("privacy: invalid policy")
	ErrInvalidStaticAddress    = errors.New("privacy: invalid static address")
	ErrInvalidRotationInterval = errors.New("privacy: invalid rotation interval")
	ErrPolicyNotSet            = errors.New("privacy: policy not set")
	ErrPolicyNotRotating       = errors.New("privacy: policy does not rotate addresses")
	ErrUnknownClient           = errors.New("privacy: unknown client")
	ErrCommandFailed           = errors.New("privacy: controller command failed")
)

var setRandomAddressOpCode = (&cmd.LESetRandomAddress{}).OpCode()

type commandKind uint8

const (
	rotateRandomAddress commandKind = iota
	controllerCommand
)

type cachedCommand struct {
	kind commandKind
	cmd  cmd.Command
}

func (c cachedCommand) String() string {
	if c.kind == rotateRandomAddress {
		return "rotate random address"
	}
	if s, ok := c.cmd.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("command 0x%04X", c.cmd.OpCode())
}

type settings struct {
	policy Policy
	irk    [16]byte
	min    time.Duration
	max    time.Duration
}

// Manager owns the random address policy of one controller. All state changes run on the
// handler it was created with; the exported methods may be called from any goroutine, but
// the ones documented as waiting must not be called from a handler task.
type Manager struct {
	enqueue           func(cmd.Command)
	h                 *handler.Handler
	public            blehci.Address
	connectListSize   uint8
	resolvingListSize uint8

	clock        clock.Clock
	rnd          *randSource
	errorHandler func(error)
	logger       blehci.Logger

	mu      sync.Mutex
	cfg     settings
	current blehci.AddressWithType

	// owned by h
	alarm    *alarm
	clients  []*registration
	queue    []cachedCommand
	inFlight bool
	closed   bool
}

// New returns a Manager submitting controller commands through enqueue. The completion of
// every submitted command must be reported back through OnCommandComplete.
func New(enqueue func(cmd.Command), h *handler.Handler, public blehci.Address, connectListSize, resolvingListSize uint8, opts ...Option) *Manager {
	m := &Manager{
		enqueue:           enqueue,
		h:                 h,
		public:            public,
		connectListSize:   connectListSize,
		resolvingListSize: resolvingListSize,
		clock:             clock.New(),
		rnd:               &randSource{r: rand.Reader},
		errorHandler:      blehci.DefaultErrorHandler,
		logger:            blehci.ComponentLogger("privacy"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.alarm = newAlarm(m.clock, h)
	return m
}

// SetPrivacyPolicy applies policy. It succeeds once; fixed is the address used by the public
// and static policies, irk and the [min, max) interval drive the rotating ones.
func (m *Manager) SetPrivacyPolicy(policy Policy, fixed blehci.AddressWithType, irk [16]byte, min, max time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.policy != PolicyNotSet {
		return errors.Wrapf(ErrPolicyAlreadySet, "%v", m.cfg.policy)
	}

	switch policy {
	case UsePublicAddress:
		m.current = fixed

	case UseStaticAddress:
		if !validStatic(fixed.Address) {
			return errors.Wrapf(ErrInvalidStaticAddress, "%v", fixed.Address)
		}
		m.current = fixed
		c := &cmd.LESetRandomAddress{RandomAddress: fixed.Address}
		if err := m.h.Post(func() { m.enqueue(c) }); err != nil {
			return err
		}

	case UseNonResolvableAddress, UseResolvableAddress:
		if min <= 0 || min > max {
			return errors.Wrapf(ErrInvalidRotationInterval, "[%v, %v)", min, max)
		}
		m.cfg.irk = irk
		m.cfg.min, m.cfg.max = min, max

	default:
		return errors.Wrapf(ErrInvalidPolicy, "%v", policy)
	}

	m.cfg.policy = policy
	m.logger.Infof("privacy policy %v", policy)
	return nil
}

func (m *Manager) Policy() Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.policy
}

func (m *Manager) settings() settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Register adds c in the resumed state. Under a rotating policy the first rotation starts
// right away, so c is asked to pause before it uses the controller.
func (m *Manager) Register(c Client) (Policy, error) {
	policy := m.Policy()
	if policy == PolicyNotSet {
		return policy, ErrPolicyNotSet
	}
	return policy, m.h.Post(func() { m.register(c) })
}

func (m *Manager) Unregister(c Client) error {
	return m.h.Post(func() { m.unregister(c) })
}

// AckPause confirms that c stopped using the controller.
func (m *Manager) AckPause(c Client) error {
	return m.h.Post(func() { m.ackPause(c) })
}

// AckResume confirms that c resumed after OnResume.
func (m *Manager) AckResume(c Client) error {
	return m.h.Post(func() { m.ackResume(c) })
}

func (m *Manager) GetCurrentAddress() (blehci.AddressWithType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.policy == PolicyNotSet {
		return blehci.AddressWithType{}, ErrPolicyNotSet
	}
	return m.current, nil
}

// GetAnotherAddress returns a fresh private address of the configured kind without
// changing the current one.
func (m *Manager) GetAnotherAddress() (blehci.AddressWithType, error) {
	s := m.settings()

	var a blehci.Address
	var err error
	switch s.policy {
	case PolicyNotSet:
		return blehci.AddressWithType{}, ErrPolicyNotSet
	case UseResolvableAddress:
		a, err = generateRPA(s.irk, m.rnd)
	case UseNonResolvableAddress:
		a, err = generateNRPA(m.public, m.rnd)
	default:
		return blehci.AddressWithType{}, errors.Wrapf(ErrPolicyNotRotating, "%v", s.policy)
	}
	if err != nil {
		return blehci.AddressWithType{}, err
	}
	return blehci.AddressWithType{Address: a, Type: blehci.RandomDeviceAddress}, nil
}

func (m *Manager) AddDeviceToConnectList(t blehci.AddressType, a blehci.Address) error {
	return m.cache(&cmd.LEAddDeviceToFilterAcceptList{AddressType: listAddressType(t), Address: a})
}

func (m *Manager) RemoveDeviceFromConnectList(t blehci.AddressType, a blehci.Address) error {
	return m.cache(&cmd.LERemoveDeviceFromFilterAcceptList{AddressType: listAddressType(t), Address: a})
}

func (m *Manager) ClearConnectList() error {
	return m.cache(&cmd.LEClearFilterAcceptList{})
}

func (m *Manager) AddDeviceToResolvingList(t blehci.AddressType, a blehci.Address, peerIRK, localIRK [16]byte) error {
	return m.cache(&cmd.LEAddDeviceToResolvingList{
		PeerIdentityAddressType: listAddressType(t),
		PeerIdentityAddress:     a,
		PeerIRK:                 peerIRK,
		LocalIRK:                localIRK,
	})
}

func (m *Manager) RemoveDeviceFromResolvingList(t blehci.AddressType, a blehci.Address) error {
	return m.cache(&cmd.LERemoveDeviceFromResolvingList{PeerIdentityAddressType: listAddressType(t), PeerIdentityAddress: a})
}

func (m *Manager) ClearResolvingList() error {
	return m.cache(&cmd.LEClearResolvingList{})
}

func (m *Manager) ConnectListSize() uint8 {
	return m.connectListSize
}

func (m *Manager) ResolvingListSize() uint8 {
	return m.resolvingListSize
}

// OnCommandComplete reports the completion of a command submitted by the manager.
func (m *Manager) OnCommandComplete(e evt.CommandComplete) error {
	return m.h.Post(func() { m.onCommandComplete(e) })
}

// NextRotation reports when the rotation alarm fires next. It waits for the handler.
func (m *Manager) NextRotation() (time.Time, bool, error) {
	var at time.Time
	var armed bool
	err := m.h.Call(func() {
		at, armed = m.alarm.Armed()
	})
	return at, armed, err
}

// Close cancels the rotation alarm and drops pending commands. It waits for the handler.
func (m *Manager) Close() error {
	return m.h.Call(func() {
		m.closed = true
		m.alarm.Cancel()
		m.queue = nil
	})
}

func listAddressType(t blehci.AddressType) uint8 {
	switch t {
	case blehci.RandomDeviceAddress, blehci.RandomIdentityAddress:
		return 0x01
	default:
		return 0x00
	}
}

func (m *Manager) fatal(err error) {
	m.logger.Errorf("%v", err)
	m.errorHandler(err)
}

func (m *Manager) find(c Client) *registration {
	for _, r := range m.clients {
		if r.client == c {
			return r
		}
	}
	return nil
}

func (m *Manager) apply(r *registration, e clientEvent) {
	next, notify := step(r.state, e)
	if next != r.state {
		m.logger.Debugf("client %T: %v -> %v (%v)", r.client, r.state, next, e)
	}
	r.state = next
	if notify != nil {
		notify(r.client)
	}
}

func (m *Manager) register(c Client) {
	if m.closed {
		return
	}
	if m.find(c) != nil {
		m.logger.Warnf("client %T registered twice", c)
		return
	}

	r := &registration{client: c, state: resumed}
	m.clients = append(m.clients, r)

	_, armed := m.alarm.Armed()
	switch {
	case m.Policy().Rotates() && !armed && !m.rotationQueued():
		m.prepareToRotate()
	case len(m.queue) > 0:
		m.apply(r, pauseRequested)
	}
}

func (m *Manager) unregister(c Client) {
	for i, r := range m.clients {
		if r.client != c {
			continue
		}
		m.clients = append(m.clients[:i], m.clients[i+1:]...)
		if len(m.clients) == 0 {
			m.alarm.Cancel()
			m.dropRotations()
		}
		m.advance()
		return
	}
	m.logger.Debugf("unregister of unknown client %T", c)
}

func (m *Manager) ackPause(c Client) {
	r := m.find(c)
	if r == nil {
		m.fatal(errors.Wrapf(ErrUnknownClient, "pause acknowledged by %T", c))
		return
	}
	m.apply(r, pauseAcked)
	m.advance()
}

func (m *Manager) ackResume(c Client) {
	r := m.find(c)
	if r == nil {
		m.fatal(errors.Wrapf(ErrUnknownClient, "resume acknowledged by %T", c))
		return
	}
	m.apply(r, resumeAcked)
}

func (m *Manager) cache(c cmd.Command) error {
	return m.h.Post(func() {
		if m.closed {
			return
		}
		m.queue = append(m.queue, cachedCommand{kind: controllerCommand, cmd: c})
		m.pauseAll()
		m.advance()
	})
}

func (m *Manager) onAlarm() {
	if m.closed || len(m.clients) == 0 {
		return
	}
	m.prepareToRotate()
}

func (m *Manager) prepareToRotate() {
	m.queue = append(m.queue, cachedCommand{kind: rotateRandomAddress})
	m.pauseAll()
	m.advance()
}

func (m *Manager) rotationQueued() bool {
	for _, c := range m.queue {
		if c.kind == rotateRandomAddress {
			return true
		}
	}
	return false
}

func (m *Manager) dropRotations() {
	q := m.queue[:0]
	for _, c := range m.queue {
		if c.kind != rotateRandomAddress {
			q = append(q, c)
		}
	}
	m.queue = q
}

func (m *Manager) pauseAll() {
	for _, r := range m.clients {
		m.apply(r, pauseRequested)
	}
}

func (m *Manager) allPaused() bool {
	for _, r := range m.clients {
		if r.state != paused {
			return false
		}
	}
	return true
}

// advance issues the next cached command once every client paused, or resumes the clients
// when no work is left. At most one command is in flight.
func (m *Manager) advance() {
	if m.closed || m.inFlight {
		return
	}

	if len(m.queue) > 0 {
		if m.allPaused() {
			m.issueNext()
		}
		return
	}

	for _, r := range m.clients {
		m.apply(r, resumeRequested)
	}
}

func (m *Manager) issueNext() {
	next := m.queue[0]
	m.queue[0] = cachedCommand{}
	m.queue = m.queue[1:]

	m.logger.Debugf("issuing %v", next)
	if next.kind == rotateRandomAddress {
		m.rotate()
		return
	}
	m.inFlight = true
	m.enqueue(next.cmd)
}

func (m *Manager) rotate() {
	s := m.settings()

	d, err := m.rnd.interval(s.min, s.max)
	if err != nil {
		m.fatal(err)
		return
	}
	m.alarm.Schedule(d, m.onAlarm)

	var a blehci.Address
	if s.policy == UseResolvableAddress {
		a, err = generateRPA(s.irk, m.rnd)
	} else {
		a, err = generateNRPA(m.public, m.rnd)
	}
	if err != nil {
		m.fatal(err)
		return
	}

	m.inFlight = true
	m.enqueue(&cmd.LESetRandomAddress{RandomAddress: a})

	m.mu.Lock()
	m.current = blehci.AddressWithType{Address: a, Type: blehci.RandomDeviceAddress}
	m.mu.Unlock()

	m.logger.Infof("rotated random address to %v, next rotation in %v", a, d)
}

func (m *Manager) onCommandComplete(e evt.CommandComplete) {
	if m.closed {
		return
	}

	if !e.Valid() {
		m.fatal(errors.Wrapf(ErrCommandFailed, "malformed command complete: % X", []byte(e)))
		return
	}
	if e.Status() != 0x00 {
		m.fatal(errors.Wrapf(ErrCommandFailed, "opcode 0x%04X: expected status 0x00, got 0x%02X", e.CommandOpcode(), e.Status()))
		return
	}

	// The static address is set before any client registered; there is no barrier to release.
	if int(e.CommandOpcode()) == setRandomAddressOpCode && m.Policy() == UseStaticAddress {
		m.logger.Debugf("static random address set")
		return
	}

	if !m.inFlight {
		m.logger.Warnf("unexpected completion of opcode 0x%04X", e.CommandOpcode())
		return
	}
	m.inFlight = false
	m.advance()
}
