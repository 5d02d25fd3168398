package blehci

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// Key is a 128-bit key such as an IRK, stored in controller (little-endian) byte order.
type Key [16]byte

// ParseKey parses 32 hex digits, most significant byte first.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, errors.Wrap(err, "invalid key")
	}
	if len(b) != len(k) {
		return k, errors.Errorf("invalid key length %d", len(b))
	}
	for i := range k {
		k[i] = b[len(b)-1-i]
	}
	return k, nil
}

// String returns the key most significant byte first.
func (k Key) String() string {
	b := make([]byte, len(k))
	for i := range k {
		b[i] = k[len(k)-1-i]
	}
	return hex.EncodeToString(b)
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(b []byte) error {
	v, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
