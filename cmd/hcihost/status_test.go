package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rigado/blehci"
	"github.com/rigado/blehci/keystore"
	"github.com/rigado/blehci/linux/hci/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keystoreIdentity() keystore.Identity {
	return keystore.Identity{
		IRK:           blehci.Key{0x9b, 0x7d, 0x39, 0x0a},
		StaticAddress: blehci.MustParseAddress("C1:02:03:04:05:06"),
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeManager struct {
	paused, resumed int
	addr            blehci.AddressWithType
	next            time.Time
}

func (f *fakeManager) AckPause(privacy.Client) error  { f.paused++; return nil }
func (f *fakeManager) AckResume(privacy.Client) error { f.resumed++; return nil }

func (f *fakeManager) GetCurrentAddress() (blehci.AddressWithType, error) {
	return f.addr, nil
}

func (f *fakeManager) NextRotation() (time.Time, bool, error) {
	return f.next, !f.next.IsZero(), nil
}

func TestStatusClientAcks(t *testing.T) {
	m := &fakeManager{}
	s := newStatusClient(m, privacy.UseResolvableAddress)

	s.OnPause()
	s.OnPause()
	s.OnResume()
	assert.Equal(t, 2, m.paused)
	assert.Equal(t, 1, m.resumed)
	assert.Equal(t, "paused", <-s.events)
	assert.Equal(t, "paused", <-s.events)
	assert.Equal(t, "resumed", <-s.events)
}

func TestStatusClientDropsOnBacklog(t *testing.T) {
	m := &fakeManager{}
	s := newStatusClient(m, privacy.UseResolvableAddress)
	for i := 0; i < cap(s.events)+5; i++ {
		s.OnPause()
	}
	assert.Len(t, s.events, cap(s.events))
	assert.Equal(t, cap(s.events)+5, m.paused)
}

func TestStatusLine(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := &fakeManager{
		addr: blehci.AddressWithType{Address: blehci.MustParseAddress("4A:01:02:03:04:05"), Type: blehci.RandomDeviceAddress},
		next: now.Add(time.Minute),
	}
	s := newStatusClient(m, privacy.UseResolvableAddress)
	s.now = func() time.Time { return now }

	var buf bytes.Buffer
	require.NoError(t, s.write(&buf, "resumed"))
	assert.Equal(t,
		`{"time":"2024-01-02T03:04:05Z","event":"resumed","policy":"resolvable",`+
			`"address":{"address":"4A:01:02:03:04:05","type":"random"},"nextRotation":"2024-01-02T03:05:05Z"}`+"\n",
		buf.String())

	m.next = time.Time{}
	buf.Reset()
	require.NoError(t, s.write(&buf, "paused"))
	assert.NotContains(t, buf.String(), "nextRotation")
}

func TestStatusRun(t *testing.T) {
	m := &fakeManager{}
	s := newStatusClient(m, privacy.UsePublicAddress)

	var buf lockedBuffer
	done := make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- s.run(done, &buf) }()

	s.OnPause()
	s.OnResume()
	require.Eventually(t, func() bool { return strings.Count(buf.String(), "\n") == 2 }, time.Second, time.Millisecond)
	close(done)
	require.NoError(t, <-errc)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"event":"paused"`)
	assert.Contains(t, lines[1], `"event":"resumed"`)
}
