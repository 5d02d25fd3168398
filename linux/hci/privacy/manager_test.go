package privacy

import (
	mrand "math/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rigado/blehci"
	"github.com/rigado/blehci/linux/hci/cmd"
	"github.com/rigado/blehci/linux/hci/evt"
	"github.com/rigado/blehci/linux/hci/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPublic = blehci.MustParseAddress("00:1B:DC:07:32:EF")

type fakeClient struct {
	mu      sync.Mutex
	pauses  int
	resumes int

	// autoAck answers pause and resume requests right away.
	autoAck bool
	m       *Manager
}

func (c *fakeClient) OnPause() {
	c.mu.Lock()
	c.pauses++
	c.mu.Unlock()
	if c.autoAck {
		c.m.AckPause(c)
	}
}

func (c *fakeClient) OnResume() {
	c.mu.Lock()
	c.resumes++
	c.mu.Unlock()
	if c.autoAck {
		c.m.AckResume(c)
	}
}

func (c *fakeClient) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauses, c.resumes
}

type harness struct {
	t     *testing.T
	m     *Manager
	h     *handler.Handler
	clock *clock.Mock
	cmds  chan cmd.Command
	errs  chan error
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:     t,
		h:     handler.New(),
		clock: clock.NewMock(),
		cmds:  make(chan cmd.Command, 64),
		errs:  make(chan error, 8),
	}
	h.m = New(
		func(c cmd.Command) { h.cmds <- c },
		h.h, testPublic, 16, 8,
		WithClock(h.clock),
		WithRand(mrand.New(mrand.NewSource(1))),
		WithErrorHandler(func(err error) { h.errs <- err }),
	)
	t.Cleanup(func() {
		h.m.Close()
		h.h.Close()
	})
	return h
}

func (h *harness) client(autoAck bool) *fakeClient {
	return &fakeClient{autoAck: autoAck, m: h.m}
}

// flush lets every task queued so far, and the acks they trigger, run.
func (h *harness) flush() {
	h.t.Helper()
	for i := 0; i < 4; i++ {
		require.NoError(h.t, h.h.Call(func() {}))
	}
}

func (h *harness) next() cmd.Command {
	h.t.Helper()
	select {
	case c := <-h.cmds:
		return c
	case <-time.After(2 * time.Second):
		h.t.Fatal("no command submitted")
		return nil
	}
}

func (h *harness) noCommand() {
	h.t.Helper()
	h.flush()
	select {
	case c := <-h.cmds:
		h.t.Fatalf("unexpected command %v", c)
	default:
	}
}

func (h *harness) complete(c cmd.Command, status uint8) {
	h.t.Helper()
	op := c.OpCode()
	require.NoError(h.t, h.m.OnCommandComplete(evt.CommandComplete{0x01, byte(op), byte(op >> 8), status}))
	h.flush()
}

func (h *harness) state(c Client) clientState {
	h.t.Helper()
	var r *registration
	var s clientState
	require.NoError(h.t, h.h.Call(func() {
		if r = h.m.find(c); r != nil {
			s = r.state
		}
	}))
	require.NotNil(h.t, r, "client not registered")
	return s
}

func (h *harness) fatal() error {
	h.t.Helper()
	select {
	case err := <-h.errs:
		return err
	case <-time.After(2 * time.Second):
		h.t.Fatal("no fatal error reported")
		return nil
	}
}

func randomAddressOf(t *testing.T, c cmd.Command) blehci.Address {
	t.Helper()
	sra, ok := c.(*cmd.LESetRandomAddress)
	require.True(t, ok, "expected LE Set Random Address, got %T", c)
	return sra.RandomAddress
}

func TestSetPrivacyPolicyValidation(t *testing.T) {
	h := newHarness(t)
	var irk [16]byte
	static := func(s string) blehci.AddressWithType {
		return blehci.AddressWithType{Address: blehci.MustParseAddress(s), Type: blehci.RandomDeviceAddress}
	}

	_, err := h.m.GetCurrentAddress()
	assert.Equal(t, ErrPolicyNotSet, err)
	_, err = h.m.Register(h.client(true))
	assert.Equal(t, ErrPolicyNotSet, err)
	_, err = h.m.GetAnotherAddress()
	assert.Equal(t, ErrPolicyNotSet, err)

	err = h.m.SetPrivacyPolicy(PolicyNotSet, blehci.AddressWithType{}, irk, 0, 0)
	assert.True(t, errors.Is(err, ErrInvalidPolicy))

	for _, s := range []string{"40:11:22:33:44:55", "C0:00:00:00:00:00", "FF:FF:FF:FF:FF:FF"} {
		err = h.m.SetPrivacyPolicy(UseStaticAddress, static(s), irk, 0, 0)
		assert.True(t, errors.Is(err, ErrInvalidStaticAddress), s)
	}

	err = h.m.SetPrivacyPolicy(UseResolvableAddress, blehci.AddressWithType{}, irk, 0, time.Second)
	assert.True(t, errors.Is(err, ErrInvalidRotationInterval))
	err = h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, irk, 2*time.Second, time.Second)
	assert.True(t, errors.Is(err, ErrInvalidRotationInterval))

	assert.Equal(t, PolicyNotSet, h.m.Policy())
	h.noCommand()

	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, irk, time.Second, 2*time.Second))
	err = h.m.SetPrivacyPolicy(UsePublicAddress, blehci.AddressWithType{Address: testPublic}, irk, 0, 0)
	assert.True(t, errors.Is(err, ErrPolicyAlreadySet))
	assert.Equal(t, UseNonResolvableAddress, h.m.Policy())
}

func TestPublicPolicy(t *testing.T) {
	h := newHarness(t)
	fixed := blehci.AddressWithType{Address: testPublic, Type: blehci.PublicDeviceAddress}
	require.NoError(t, h.m.SetPrivacyPolicy(UsePublicAddress, fixed, [16]byte{}, 0, 0))

	c := h.client(true)
	policy, err := h.m.Register(c)
	require.NoError(t, err)
	assert.Equal(t, UsePublicAddress, policy)
	h.noCommand()

	assert.Equal(t, resumed, h.state(c))
	cur, err := h.m.GetCurrentAddress()
	require.NoError(t, err)
	assert.Equal(t, fixed, cur)

	_, err = h.m.GetAnotherAddress()
	assert.True(t, errors.Is(err, ErrPolicyNotRotating))

	_, armed, err := h.m.NextRotation()
	require.NoError(t, err)
	assert.False(t, armed)
}

func TestStaticPolicy(t *testing.T) {
	h := newHarness(t)
	fixed := blehci.AddressWithType{Address: blehci.MustParseAddress("C6:05:04:03:02:01"), Type: blehci.RandomDeviceAddress}
	require.NoError(t, h.m.SetPrivacyPolicy(UseStaticAddress, fixed, [16]byte{}, 0, 0))

	c := h.next()
	assert.Equal(t, fixed.Address, randomAddressOf(t, c))

	client := h.client(true)
	_, err := h.m.Register(client)
	require.NoError(t, err)
	h.noCommand()

	h.complete(c, 0x00)
	pauses, resumes := client.counts()
	assert.Zero(t, pauses)
	assert.Zero(t, resumes)
	assert.Equal(t, resumed, h.state(client))

	cur, err := h.m.GetCurrentAddress()
	require.NoError(t, err)
	assert.Equal(t, fixed, cur)
}

func TestNonResolvableRotation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, [16]byte{}, 1000*time.Millisecond, 2000*time.Millisecond))

	c := h.client(true)
	policy, err := h.m.Register(c)
	require.NoError(t, err)
	assert.Equal(t, UseNonResolvableAddress, policy)

	first := h.next()
	a := randomAddressOf(t, first)
	assert.True(t, a.IsNonResolvable())
	assert.NotEqual(t, testPublic, a)

	pauses, resumes := c.counts()
	assert.Equal(t, 1, pauses)
	assert.Zero(t, resumes)
	assert.Equal(t, paused, h.state(c))

	// the new address is visible before the controller confirmed it
	cur, err := h.m.GetCurrentAddress()
	require.NoError(t, err)
	assert.Equal(t, blehci.AddressWithType{Address: a, Type: blehci.RandomDeviceAddress}, cur)

	at, armed, err := h.m.NextRotation()
	require.NoError(t, err)
	require.True(t, armed)
	delay := at.Sub(h.clock.Now())
	assert.True(t, delay >= 1000*time.Millisecond && delay < 2000*time.Millisecond, "%v", delay)

	h.complete(first, 0x00)
	pauses, resumes = c.counts()
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 1, resumes)
	assert.Equal(t, resumed, h.state(c))
	h.noCommand()

	// the alarm starts the next cycle
	h.clock.Add(delay)
	var second cmd.Command
	require.Eventually(t, func() bool {
		select {
		case second = <-h.cmds:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	b := randomAddressOf(t, second)
	assert.NotEqual(t, a, b)
	assert.True(t, b.IsNonResolvable())

	h.complete(second, 0x00)
	pauses, resumes = c.counts()
	assert.Equal(t, 2, pauses)
	assert.Equal(t, 2, resumes)
}

func TestResolvableRotation(t *testing.T) {
	h := newHarness(t)
	irk := testIRK(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseResolvableAddress, blehci.AddressWithType{}, irk, time.Minute, time.Minute))

	_, err := h.m.Register(h.client(true))
	require.NoError(t, err)

	c := h.next()
	a := randomAddressOf(t, c)
	assert.True(t, ResolveAddress(irk, a))

	at, armed, err := h.m.NextRotation()
	require.NoError(t, err)
	require.True(t, armed)
	assert.Equal(t, time.Minute, at.Sub(h.clock.Now()))

	another, err := h.m.GetAnotherAddress()
	require.NoError(t, err)
	assert.Equal(t, blehci.RandomDeviceAddress, another.Type)
	assert.True(t, ResolveAddress(irk, another.Address))
	assert.NotEqual(t, a, another.Address)

	cur, err := h.m.GetCurrentAddress()
	require.NoError(t, err)
	assert.Equal(t, a, cur.Address)
	h.noCommand()
}

func TestBarrierWaitsForEveryClient(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, [16]byte{}, time.Second, 2*time.Second))

	fast, slow := h.client(false), h.client(false)
	_, err := h.m.Register(fast)
	require.NoError(t, err)
	_, err = h.m.Register(slow)
	require.NoError(t, err)
	h.flush()

	// registered during the pause cycle, so it is asked to pause too
	assert.Equal(t, waitingForPause, h.state(fast))
	assert.Equal(t, waitingForPause, h.state(slow))

	require.NoError(t, h.m.AckPause(fast))
	require.NoError(t, h.m.AckPause(fast))
	h.noCommand()
	assert.Equal(t, paused, h.state(fast))

	_, resumes := fast.counts()
	assert.Zero(t, resumes)

	require.NoError(t, h.m.AckPause(slow))
	c := h.next()
	h.noCommand()

	h.complete(c, 0x00)
	for _, cl := range []*fakeClient{fast, slow} {
		pauses, resumes := cl.counts()
		assert.Equal(t, 1, pauses)
		assert.Equal(t, 1, resumes)
		assert.Equal(t, waitingForResume, h.state(cl))
	}

	require.NoError(t, h.m.AckResume(fast))
	require.NoError(t, h.m.AckResume(slow))
	h.flush()
	assert.Equal(t, resumed, h.state(fast))
	assert.Equal(t, resumed, h.state(slow))
}

func TestRegisterWhileCommandInFlight(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, [16]byte{}, time.Second, 2*time.Second))

	first := h.client(false)
	_, err := h.m.Register(first)
	require.NoError(t, err)
	h.flush()
	require.NoError(t, h.m.AckPause(first))
	c := h.next()

	// nothing is queued behind the rotation, so the newcomer is left running
	late := h.client(false)
	_, err = h.m.Register(late)
	require.NoError(t, err)
	h.flush()
	assert.Equal(t, resumed, h.state(late))

	h.complete(c, 0x00)
	h.flush()
	_, resumes := first.counts()
	assert.Equal(t, 1, resumes)
	assert.Equal(t, waitingForResume, h.state(first))

	pauses, resumes := late.counts()
	assert.Zero(t, pauses)
	assert.Zero(t, resumes)
	assert.Equal(t, resumed, h.state(late))
}

func TestRegisterWhileCommandQueued(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, [16]byte{}, time.Second, 2*time.Second))

	first := h.client(false)
	_, err := h.m.Register(first)
	require.NoError(t, err)
	h.flush()
	require.NoError(t, h.m.AckPause(first))
	rotation := h.next()

	require.NoError(t, h.m.ClearConnectList())
	late := h.client(false)
	_, err = h.m.Register(late)
	require.NoError(t, err)
	h.flush()
	assert.Equal(t, waitingForPause, h.state(late))

	// the queued command waits for the newcomer
	h.complete(rotation, 0x00)
	h.noCommand()
	require.NoError(t, h.m.AckPause(late))
	c := h.next()
	assert.IsType(t, &cmd.LEClearFilterAcceptList{}, c)

	h.complete(c, 0x00)
	h.flush()
	for _, cl := range []*fakeClient{first, late} {
		_, resumes := cl.counts()
		assert.Equal(t, 1, resumes)
	}
}

func TestCachedCommandsRunInOrder(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, [16]byte{}, time.Second, 2*time.Second))

	client := h.client(false)
	_, err := h.m.Register(client)
	require.NoError(t, err)

	peer := blehci.MustParseAddress("C1:22:33:44:55:66")
	require.NoError(t, h.m.AddDeviceToConnectList(blehci.RandomDeviceAddress, peer))
	h.noCommand()

	require.NoError(t, h.m.AckPause(client))
	first := h.next()
	randomAddressOf(t, first)
	h.noCommand()

	h.complete(first, 0x00)
	second := h.next()
	add, ok := second.(*cmd.LEAddDeviceToFilterAcceptList)
	require.True(t, ok, "got %T", second)
	assert.Equal(t, uint8(0x01), add.AddressType)
	assert.Equal(t, [6]byte(peer), add.Address)

	// no resume while work is pending
	_, resumes := client.counts()
	assert.Zero(t, resumes)
	h.noCommand()

	h.complete(second, 0x00)
	pauses, resumes := client.counts()
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 1, resumes)
}

func TestOneCommandInFlight(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseResolvableAddress, blehci.AddressWithType{}, testIRK(t), time.Hour, time.Hour))

	clients := []*fakeClient{h.client(true), h.client(true), h.client(true)}
	for _, c := range clients {
		_, err := h.m.Register(c)
		require.NoError(t, err)
	}

	peer := blehci.MustParseAddress("00:AA:BB:CC:DD:EE")
	var irk [16]byte
	require.NoError(t, h.m.ClearConnectList())
	require.NoError(t, h.m.AddDeviceToConnectList(blehci.PublicDeviceAddress, peer))
	require.NoError(t, h.m.RemoveDeviceFromConnectList(blehci.PublicDeviceAddress, peer))
	require.NoError(t, h.m.ClearResolvingList())
	require.NoError(t, h.m.AddDeviceToResolvingList(blehci.PublicIdentityAddress, peer, irk, irk))
	require.NoError(t, h.m.RemoveDeviceFromResolvingList(blehci.PublicIdentityAddress, peer))
	require.NoError(t, h.m.AddDeviceToConnectList(blehci.PublicDeviceAddress, peer))

	want := []int{0x2005, 0x2010, 0x2011, 0x2012, 0x2029, 0x2027, 0x2028, 0x2011}
	for i, op := range want {
		c := h.next()
		require.Equal(t, op, c.OpCode(), "command %d", i)
		h.noCommand()
		h.complete(c, 0x00)
	}

	for _, c := range clients {
		_, resumes := c.counts()
		assert.Equal(t, 1, resumes)
		assert.Equal(t, resumed, h.state(c))
	}
}

func TestListCommandWithoutClients(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UsePublicAddress, blehci.AddressWithType{Address: testPublic}, [16]byte{}, 0, 0))

	require.NoError(t, h.m.ClearResolvingList())
	c := h.next()
	assert.Equal(t, 0x2029, c.OpCode())
	h.complete(c, 0x00)
	h.noCommand()
}

func TestFailedCompletionIsFatal(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, [16]byte{}, time.Second, time.Second))
	_, err := h.m.Register(h.client(true))
	require.NoError(t, err)

	c := h.next()
	h.complete(c, 0x12)
	err = h.fatal()
	assert.True(t, errors.Is(err, ErrCommandFailed))
	assert.Contains(t, err.Error(), "0x2005")

	require.NoError(t, h.m.OnCommandComplete(evt.CommandComplete{0x01, 0x05}))
	assert.True(t, errors.Is(h.fatal(), ErrCommandFailed))
}

func TestUnknownClientIsFatal(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UsePublicAddress, blehci.AddressWithType{Address: testPublic}, [16]byte{}, 0, 0))

	require.NoError(t, h.m.AckPause(h.client(false)))
	assert.True(t, errors.Is(h.fatal(), ErrUnknownClient))

	require.NoError(t, h.m.AckResume(h.client(false)))
	assert.True(t, errors.Is(h.fatal(), ErrUnknownClient))

	// unregistering an unknown client is harmless
	require.NoError(t, h.m.Unregister(h.client(false)))
	h.flush()
	assert.Empty(t, h.errs)
}

func TestUnregisterLastClientCancelsRotation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, [16]byte{}, time.Second, time.Second))

	c := h.client(true)
	_, err := h.m.Register(c)
	require.NoError(t, err)
	h.complete(h.next(), 0x00)

	require.NoError(t, h.m.Unregister(c))
	h.flush()
	_, armed, err := h.m.NextRotation()
	require.NoError(t, err)
	assert.False(t, armed)

	h.clock.Add(5 * time.Second)
	assert.Never(t, func() bool { return len(h.cmds) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	// a new client starts a fresh cycle
	_, err = h.m.Register(c)
	require.NoError(t, err)
	randomAddressOf(t, h.next())
}

func TestUnregisterReleasesBarrier(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, [16]byte{}, time.Second, time.Second))

	ready, gone := h.client(true), h.client(false)
	_, err := h.m.Register(ready)
	require.NoError(t, err)
	_, err = h.m.Register(gone)
	require.NoError(t, err)
	h.noCommand()

	require.NoError(t, h.m.Unregister(gone))
	h.complete(h.next(), 0x00)

	_, resumes := ready.counts()
	assert.Equal(t, 1, resumes)
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.SetPrivacyPolicy(UseNonResolvableAddress, blehci.AddressWithType{}, [16]byte{}, time.Second, time.Second))

	_, err := h.m.Register(h.client(true))
	require.NoError(t, err)
	h.complete(h.next(), 0x00)

	require.NoError(t, h.m.Close())
	h.clock.Add(5 * time.Second)
	assert.Never(t, func() bool { return len(h.cmds) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, uint8(16), h.m.ConnectListSize())
	assert.Equal(t, uint8(8), h.m.ResolvingListSize())
}
