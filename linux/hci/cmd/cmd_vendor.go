package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const ogfVendor = 0x3F

// Vendor is a vendor specific command (0x3F|OCF) with opaque parameters, such as the
// baud rate or patch commands some UART controllers need before use.
type Vendor struct {
	OCF    uint16
	Params []byte
}

func (c *Vendor) String() string {
	return fmt.Sprintf("Vendor Command (0x3f|0x%04x); Params (% x)", c.OCF, c.Params)
}

// OpCode returns the opcode of the command.
func (c *Vendor) OpCode() int { return OpCode(ogfVendor, int(c.OCF&0x3FF)) }

// Len returns the length of the command.
func (c *Vendor) Len() int { return len(c.Params) }

// Marshal serializes the command parameters into binary form.
func (c *Vendor) Marshal(b []byte) error {
	if len(b) < len(c.Params) {
		return errors.Errorf("vendor command 0x%04x: short buffer", c.OCF)
	}
	copy(b, c.Params)
	return nil
}

// ParseVendor parses "OCF" or "OCF:PARAMS", OCF in hex (optionally 0x prefixed) and PARAMS
// as hex bytes, e.g. "0x0018:00c20100".
func ParseVendor(s string) (*Vendor, error) {
	ocf, params := s, ""
	if i := strings.IndexByte(s, ':'); i >= 0 {
		ocf, params = s[:i], s[i+1:]
	}

	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(ocf), "0x"), 16, 16)
	if err != nil || v > 0x3FF {
		return nil, errors.Errorf("invalid vendor ocf %q", ocf)
	}

	c := &Vendor{OCF: uint16(v)}
	if params != "" {
		if c.Params, err = hex.DecodeString(params); err != nil {
			return nil, errors.Wrapf(err, "invalid vendor params %q", params)
		}
	}
	if len(c.Params) > 0xFF {
		return nil, errors.Errorf("vendor command 0x%04x: %d parameter bytes", c.OCF, len(c.Params))
	}
	return c, nil
}

// VendorRP is the return parameters of a vendor command.
type VendorRP struct {
	Status uint8
	Data   []byte
}

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (c *VendorRP) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return errors.New("empty vendor return parameters")
	}
	c.Status = b[0]
	c.Data = append([]byte(nil), b[1:]...)
	return nil
}
