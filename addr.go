package blehci

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Address is a 48-bit Bluetooth device address stored in controller (little-endian) byte
// order: Address[5] holds the most significant byte.
type Address [6]byte

// EmptyAddress is the all-zero address.
var EmptyAddress = Address{}

// ParseAddress parses the colon separated, most significant byte first notation
// ("C0:11:22:33:44:55") into controller byte order.
func ParseAddress(s string) (Address, error) {
	var a Address
	hexStr := strings.Replace(s, ":", "", -1)
	if len(hexStr) != 12 {
		return a, errors.Errorf("invalid address %q", s)
	}

	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return a, errors.Wrapf(err, "invalid address %q", s)
	}

	for i := range a {
		a[i] = b[len(b)-1-i]
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on malformed input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}

// Bytes returns the address most significant byte first.
func (a Address) Bytes() []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[len(a)-1-i]
	}
	return out
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Random address sub-types, selected by the two most significant bits [Vol 6, Part B, 1.3.2].
const (
	addrSubTypeMask          = 0xC0
	addrSubTypeNonResolvable = 0x00
	addrSubTypeResolvable    = 0x40
	addrSubTypeStatic        = 0xC0
)

func (a Address) IsStatic() bool {
	return a[5]&addrSubTypeMask == addrSubTypeStatic
}

func (a Address) IsResolvable() bool {
	return a[5]&addrSubTypeMask == addrSubTypeResolvable
}

func (a Address) IsNonResolvable() bool {
	return a[5]&addrSubTypeMask == addrSubTypeNonResolvable
}

// AddressType is the HCI address type carried alongside an address.
type AddressType uint8

const (
	PublicDeviceAddress   AddressType = 0x00
	RandomDeviceAddress   AddressType = 0x01
	PublicIdentityAddress AddressType = 0x02
	RandomIdentityAddress AddressType = 0x03
)

func (t AddressType) String() string {
	switch t {
	case PublicDeviceAddress:
		return "public"
	case RandomDeviceAddress:
		return "random"
	case PublicIdentityAddress:
		return "public-identity"
	case RandomIdentityAddress:
		return "random-identity"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(t))
	}
}

func (t AddressType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *AddressType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "public":
		*t = PublicDeviceAddress
	case "random":
		*t = RandomDeviceAddress
	case "public-identity":
		*t = PublicIdentityAddress
	case "random-identity":
		*t = RandomIdentityAddress
	default:
		return errors.Errorf("invalid address type %q", string(b))
	}
	return nil
}

// AddressWithType pairs an address with its type.
type AddressWithType struct {
	Address Address     `json:"address" yaml:"address"`
	Type    AddressType `json:"type" yaml:"type"`
}

func (a AddressWithType) String() string {
	return fmt.Sprintf("%s[%s]", a.Address, a.Type)
}
