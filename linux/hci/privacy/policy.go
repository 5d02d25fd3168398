package privacy

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Policy selects the address the host presents when advertising, scanning and initiating.
type Policy uint8

const (
	PolicyNotSet Policy = iota
	UsePublicAddress
	UseStaticAddress
	UseNonResolvableAddress
	UseResolvableAddress
)

func (p Policy) String() string {
	switch p {
	case PolicyNotSet:
		return "not-set"
	case UsePublicAddress:
		return "public"
	case UseStaticAddress:
		return "static"
	case UseNonResolvableAddress:
		return "non-resolvable"
	case UseResolvableAddress:
		return "resolvable"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// Rotates reports whether the policy rotates a private address.
func (p Policy) Rotates() bool {
	return p == UseNonResolvableAddress || p == UseResolvableAddress
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "public":
		*p = UsePublicAddress
	case "static":
		*p = UseStaticAddress
	case "non-resolvable", "nrpa":
		*p = UseNonResolvableAddress
	case "resolvable", "rpa":
		*p = UseResolvableAddress
	default:
		return errors.Errorf("invalid privacy policy %q", string(b))
	}
	return nil
}
