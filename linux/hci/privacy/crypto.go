package privacy

import (
	"crypto/aes"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blehci"
)

const (
	subTypeMask       = 0xC0
	subTypeResolvable = 0x40
	subTypeStatic     = 0xC0
)

// swapBuf returns a reversed copy of in. Keys and addresses travel least significant byte
// first while AES works most significant byte first.
func swapBuf(in []byte) []byte {
	a := make([]byte, 0, len(in))
	a = append(a, in...)
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}
	return a
}

// encrypt is the security function e [Vol 3, Part H, 2.2.1]; key and plaintext are
// little-endian.
func encrypt(key [16]byte, plaintext [16]byte) [16]byte {
	// a 16 byte key never fails
	c, _ := aes.NewCipher(swapBuf(key[:]))

	out := make([]byte, 16)
	c.Encrypt(out, swapBuf(plaintext[:]))

	var r [16]byte
	copy(r[:], swapBuf(out))
	return r
}

// ah is the random address hash function [Vol 3, Part H, 2.2.2]; irk, r and the result are
// little-endian.
func ah(irk [16]byte, r [3]byte) [3]byte {
	var p [16]byte
	copy(p[:], r[:])

	out := encrypt(irk, p)
	return [3]byte{out[0], out[1], out[2]}
}

// ResolveAddress reports whether a was generated from irk.
func ResolveAddress(irk [16]byte, a blehci.Address) bool {
	if !a.IsResolvable() {
		return false
	}
	return ah(irk, [3]byte{a[3], a[4], a[5]}) == [3]byte{a[0], a[1], a[2]}
}

// randSource serializes reads from a random reader.
type randSource struct {
	mu sync.Mutex
	r  io.Reader
}

func (s *randSource) read(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.ReadFull(s.r, p)
	return errors.Wrap(err, "can't read random source")
}

func (s *randSource) readByte() (byte, error) {
	var b [1]byte
	err := s.read(b[:])
	return b[0], err
}

// nonZeroByte is uniform-ish in [1, 0xFE].
func (s *randSource) nonZeroByte() (byte, error) {
	b, err := s.readByte()
	return b%0xFE + 1, err
}

func (s *randSource) uint64() (uint64, error) {
	var b [8]byte
	err := s.read(b[:])
	return binary.LittleEndian.Uint64(b[:]), err
}

// interval draws a rotation delay in [min, max); min when they are equal.
func (s *randSource) interval(min, max time.Duration) (time.Duration, error) {
	if max <= min {
		return min, nil
	}
	v, err := s.uint64()
	if err != nil {
		return 0, err
	}
	return min + time.Duration(v%uint64(max-min)), nil
}

// degenerate reports whether the random part of b, b[len(b)-1] masked to its lower six
// bits, is all zeros or all ones.
func degenerate(b []byte) bool {
	last := len(b) - 1
	zeros, ones := b[last]&^subTypeMask == 0, b[last]&^subTypeMask == ^byte(subTypeMask)
	for _, v := range b[:last] {
		zeros = zeros && v == 0x00
		ones = ones && v == 0xFF
	}
	return zeros || ones
}

// generateRPA builds a resolvable private address [Vol 6, Part B, 1.3.2.2].
func generateRPA(irk [16]byte, rnd *randSource) (blehci.Address, error) {
	var prand [3]byte
	if err := rnd.read(prand[:]); err != nil {
		return blehci.Address{}, err
	}
	prand[2] &^= subTypeMask
	if degenerate(prand[:]) {
		b, err := rnd.nonZeroByte()
		if err != nil {
			return blehci.Address{}, err
		}
		prand[0] = b
	}
	prand[2] |= subTypeResolvable

	hash := ah(irk, prand)

	var a blehci.Address
	copy(a[0:3], hash[:])
	copy(a[3:6], prand[:])
	return a, nil
}

// generateNRPA builds a non-resolvable private address distinct from public
// [Vol 6, Part B, 1.3.2.2].
func generateNRPA(public blehci.Address, rnd *randSource) (blehci.Address, error) {
	var a blehci.Address
	if err := rnd.read(a[:]); err != nil {
		return a, err
	}
	a[5] &^= subTypeMask

	if degenerate(a[:]) {
		b, err := rnd.nonZeroByte()
		if err != nil {
			return a, err
		}
		a[0] = b
	}

	for a == public {
		b, err := rnd.nonZeroByte()
		if err != nil {
			return a, err
		}
		a[0] = b
	}
	return a, nil
}

// validStatic checks the static random address format [Vol 6, Part B, 1.3.2.1].
func validStatic(a blehci.Address) bool {
	return a[5]&subTypeMask == subTypeStatic && !degenerate(a[:])
}

// GenerateStaticAddress returns a random static address read from r.
func GenerateStaticAddress(r io.Reader) (blehci.Address, error) {
	rnd := &randSource{r: r}
	var a blehci.Address
	if err := rnd.read(a[:]); err != nil {
		return a, err
	}
	a[5] |= subTypeStatic
	if degenerate(a[:]) {
		b, err := rnd.nonZeroByte()
		if err != nil {
			return a, err
		}
		a[0] = b
	}
	return a, nil
}

// GenerateIRK returns a random identity resolving key read from r.
func GenerateIRK(r io.Reader) (blehci.Key, error) {
	var k blehci.Key
	_, err := io.ReadFull(r, k[:])
	return k, errors.Wrap(err, "can't generate irk")
}
