package privacy

import (
	"bytes"
	"encoding/hex"
	mrand "math/rand"
	"testing"
	"time"

	"github.com/rigado/blehci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// msbHex decodes a most significant byte first hex string into little-endian order.
func msbHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return swapBuf(b)
}

func testIRK(t *testing.T) [16]byte {
	var irk [16]byte
	copy(irk[:], msbHex(t, "ec0234a357c8ad05341010a60a397d9b"))
	return irk
}

func TestAh(t *testing.T) {
	// sample data [Vol 3, Part H, D.7]
	var prand [3]byte
	copy(prand[:], msbHex(t, "708194"))

	hash := ah(testIRK(t), prand)
	assert.Equal(t, msbHex(t, "0dfbaa"), hash[:])
}

func TestResolveAddress(t *testing.T) {
	irk := testIRK(t)

	a := blehci.MustParseAddress("70:81:94:0D:FB:AA")
	assert.True(t, ResolveAddress(irk, a))

	other := irk
	other[0] ^= 0x01
	assert.False(t, ResolveAddress(other, a))

	// wrong sub-type
	assert.False(t, ResolveAddress(irk, blehci.MustParseAddress("F0:81:94:0D:FB:AA")))
}

func TestSwapBuf(t *testing.T) {
	in := []byte{1, 2, 3, 4, 5}
	assert.Equal(t, []byte{5, 4, 3, 2, 1}, swapBuf(in))
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, in)
	assert.Equal(t, []byte{}, swapBuf([]byte{}))
}

func TestGeneratedAddressesAreNonDegenerate(t *testing.T) {
	rnd := &randSource{r: mrand.New(mrand.NewSource(42))}
	irk := testIRK(t)
	public := blehci.MustParseAddress("00:11:22:33:44:55")

	for i := 0; i < 10000; i++ {
		rpa, err := generateRPA(irk, rnd)
		require.NoError(t, err)
		require.True(t, rpa.IsResolvable(), "%v", rpa)
		require.False(t, degenerate(rpa[3:]), "%v", rpa)
		require.True(t, ResolveAddress(irk, rpa), "%v", rpa)

		nrpa, err := generateNRPA(public, rnd)
		require.NoError(t, err)
		require.True(t, nrpa.IsNonResolvable(), "%v", nrpa)
		require.False(t, degenerate(nrpa[:]), "%v", nrpa)
		require.NotEqual(t, public, nrpa)
	}
}

func TestGenerateRPADegenerateRandom(t *testing.T) {
	irk := testIRK(t)

	// all zero prand, replacement byte 0x10
	rnd := &randSource{r: bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x10})}
	a, err := generateRPA(irk, rnd)
	require.NoError(t, err)
	assert.Equal(t, [3]byte{0x11, 0x00, 0x40}, [3]byte{a[3], a[4], a[5]})

	// all ones once the sub-type bits are masked
	rnd = &randSource{r: bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0x00})}
	a, err = generateRPA(irk, rnd)
	require.NoError(t, err)
	assert.Equal(t, [3]byte{0x01, 0xFF, 0x7F}, [3]byte{a[3], a[4], a[5]})
	assert.True(t, ResolveAddress(irk, a))
}

func TestGenerateNRPA(t *testing.T) {
	public := blehci.Address{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	// the random draw matches the public address, the retry changes the low byte
	rnd := &randSource{r: bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07})}
	a, err := generateNRPA(public, rnd)
	require.NoError(t, err)
	assert.NotEqual(t, public, a)
	assert.Equal(t, blehci.Address{0x08, 0x02, 0x03, 0x04, 0x05, 0x06}, a)

	rnd = &randSource{r: bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x20})}
	a, err = generateNRPA(public, rnd)
	require.NoError(t, err)
	assert.Equal(t, blehci.Address{0x21, 0xFF, 0xFF, 0xFF, 0xFF, 0x3F}, a)

	rnd = &randSource{r: bytes.NewReader([]byte{0x00, 0x00})}
	_, err = generateNRPA(public, rnd)
	assert.Error(t, err)
}

func TestValidStatic(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"C0:11:22:33:44:55", true},
		{"FF:FF:FF:FF:FF:FE", true},
		{"C0:00:00:00:00:01", true},
		{"C0:00:00:00:00:00", false},
		{"FF:FF:FF:FF:FF:FF", false},
		{"40:11:22:33:44:55", false},
		{"80:11:22:33:44:55", false},
		{"00:11:22:33:44:55", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.valid, validStatic(blehci.MustParseAddress(tc.addr)), tc.addr)
	}
}

func TestInterval(t *testing.T) {
	rnd := &randSource{r: mrand.New(mrand.NewSource(7))}

	d, err := rnd.interval(time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	for i := 0; i < 1000; i++ {
		d, err := rnd.interval(time.Second, 2*time.Second)
		require.NoError(t, err)
		require.True(t, d >= time.Second && d < 2*time.Second, "%v", d)
	}
}

func TestGenerateStaticAddress(t *testing.T) {
	r := mrand.New(mrand.NewSource(3))
	for i := 0; i < 1000; i++ {
		a, err := GenerateStaticAddress(r)
		require.NoError(t, err)
		require.True(t, validStatic(a), "%s", a)
	}

	a, err := GenerateStaticAddress(bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0x07}))
	require.NoError(t, err)
	assert.True(t, validStatic(a))

	_, err = GenerateStaticAddress(bytes.NewReader([]byte{0x01}))
	assert.Error(t, err)
}

func TestGenerateIRK(t *testing.T) {
	k, err := GenerateIRK(bytes.NewReader(bytes.Repeat([]byte{0xAB}, 16)))
	require.NoError(t, err)
	assert.Equal(t, "abababababababababababababababab", k.String())

	_, err = GenerateIRK(bytes.NewReader([]byte{0x01}))
	assert.Error(t, err)
}
